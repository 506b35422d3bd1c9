// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package epd

import (
	"errors"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/pin"
	"periph.io/x/conn/v3/spi"
)

// OpenNarrow implements Narrow.
func (l *Link) OpenNarrow() error {
	if l.pins.SCK == nil || l.pins.SDA == nil {
		return errors.New("epd: the narrow link needs the SCK and SDA pins")
	}
	if l.state == linkNarrow {
		return nil
	}
	// Driving the SPI pins as GPIO detaches them from the SPI controller,
	// which closes the wide link.
	l.state = linkClosed

	eh := errorHandler{l: l}
	eh.out(l.pins.CS, gpio.High)
	eh.out(l.pins.SCK, gpio.Low)
	eh.out(l.pins.SDA, gpio.Low)
	if eh.err != nil {
		return eh.err
	}
	l.state = linkNarrow
	return nil
}

// WriteCommand3 implements Narrow.
func (l *Link) WriteCommand3(cmd byte) error {
	if l.state != linkNarrow {
		return errNarrowClosed
	}
	eh := errorHandler{l: l}

	eh.out(l.pins.DC, gpio.Low)
	eh.out(l.pins.CS, gpio.Low)
	eh.shiftOut(cmd)

	return eh.err
}

// ReadData3 implements Narrow.
func (l *Link) ReadData3() (byte, error) {
	if l.state != linkNarrow {
		return 0, errNarrowClosed
	}
	eh := errorHandler{l: l}

	eh.out(l.pins.DC, gpio.High)
	b := eh.shiftIn()

	return b, eh.err
}

// CloseNarrow implements Narrow.
func (l *Link) CloseNarrow() error {
	if l.state != linkNarrow {
		return nil
	}
	eh := errorHandler{l: l}

	eh.out(l.pins.CS, gpio.High)
	eh.setFunc(l.pins.SCK, spi.CLK)
	eh.setFunc(l.pins.SDA, spi.MOSI)
	l.state = linkClosed

	return eh.err
}

// shiftOut clocks b out on SDA, most significant bit first.
func (eh *errorHandler) shiftOut(b byte) {
	for mask := byte(0x80); mask != 0; mask >>= 1 {
		eh.out(eh.l.pins.SDA, b&mask != 0)
		eh.out(eh.l.pins.SCK, gpio.High)
		eh.out(eh.l.pins.SCK, gpio.Low)
	}
}

// shiftIn turns SDA around and clocks one byte in, most significant bit first.
func (eh *errorHandler) shiftIn() byte {
	if eh.err != nil {
		return 0
	}
	if eh.err = eh.l.pins.SDA.In(gpio.PullNoChange, gpio.NoEdge); eh.err != nil {
		return 0
	}
	var b byte
	for i := 0; i < 8; i++ {
		eh.out(eh.l.pins.SCK, gpio.High)
		b <<= 1
		if eh.l.pins.SDA.Read() == gpio.High {
			b |= 1
		}
		eh.out(eh.l.pins.SCK, gpio.Low)
	}
	return b
}

// setFunc hands p back to the SPI controller when the GPIO driver supports
// pin multiplexing.
func (eh *errorHandler) setFunc(p gpio.PinOut, f pin.Func) {
	if eh.err != nil {
		return
	}
	if pf, ok := p.(pin.PinFunc); ok {
		eh.err = pf.SetFunc(f)
	}
}
