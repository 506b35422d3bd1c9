// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package epd

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/host/v3/rpi"
)

const defaultBusyPoll = time.Millisecond

// Pins is the wiring of a panel to the board.
type Pins struct {
	Reset gpio.PinOut
	DC    gpio.PinOut
	CS    gpio.PinOut
	Busy  gpio.PinIn

	// SCK and SDA are the SPI clock and MOSI lines. They are driven as GPIO
	// while the narrow link is open; leave them nil if the OTP memory is
	// never read.
	SCK gpio.PinOut
	SDA gpio.PinIO
}

// Opts tunes the busy line handling.
type Opts struct {
	// BusyLevel is the level of the busy line while the panel is working.
	// The zero value, gpio.Low, matches the Pervasive Displays panels.
	BusyLevel gpio.Level
	// BusyPoll is the interval between two reads of the busy line.
	BusyPoll time.Duration
	// BusyTimeout bounds WaitBusy. Zero waits forever.
	BusyTimeout time.Duration
}

type linkState uint8

const (
	linkClosed linkState = iota
	linkWide
	linkNarrow
)

func (s linkState) String() string {
	switch s {
	case linkWide:
		return "wide"
	case linkNarrow:
		return "narrow"
	default:
		return "closed"
	}
}

var (
	errWideClosed   = errors.New("epd: wide link is not open")
	errNarrowClosed = errors.New("epd: narrow link is not open")
)

// Link is a Bus on top of a periph.io SPI port and GPIO pins.
type Link struct {
	port spi.Port
	c    spi.Conn
	freq physic.Frequency

	maxTxSize int
	fill      []byte

	pins  Pins
	opts  Opts
	state linkState
	sleep func(time.Duration)
}

// New returns a Link to a panel wired to p and pins.
//
// The SPI port is connected lazily, by the first OpenWide.
func New(p spi.Port, pins *Pins, opts *Opts) (*Link, error) {
	if pins.Reset == nil || pins.DC == nil || pins.CS == nil || pins.Busy == nil {
		return nil, errors.New("epd: reset, dc, cs and busy pins are required")
	}
	if pins.Reset == gpio.INVALID || pins.DC == gpio.INVALID || pins.CS == gpio.INVALID {
		return nil, errors.New("epd: do not use gpio.INVALID")
	}
	l := &Link{
		port:  p,
		pins:  *pins,
		sleep: time.Sleep,
	}
	if opts != nil {
		l.opts = *opts
	}
	if l.opts.BusyPoll <= 0 {
		l.opts.BusyPoll = defaultBusyPoll
	}

	eh := errorHandler{l: l}
	eh.out(l.pins.CS, gpio.High)
	eh.out(l.pins.DC, gpio.High)
	eh.out(l.pins.Reset, gpio.High)
	if eh.err != nil {
		return nil, eh.err
	}
	if err := l.pins.Busy.In(gpio.Float, gpio.NoEdge); err != nil {
		return nil, err
	}
	return l, nil
}

// RaspberryPiPins returns the wiring of the Pervasive Displays extension kit
// on the Raspberry Pi header, SPI0 with CE0.
func RaspberryPiPins() *Pins {
	return &Pins{
		Reset: rpi.P1_11,
		DC:    rpi.P1_22,
		CS:    rpi.P1_24,
		Busy:  rpi.P1_18,
		SCK:   rpi.P1_23,
		SDA:   rpi.P1_19,
	}
}

// Reset implements Lines.
func (l *Link) Reset(p ResetProfile) error {
	eh := errorHandler{l: l}

	eh.delay(p.PowerOn)
	eh.out(l.pins.Reset, gpio.High)
	eh.delay(p.High)
	eh.out(l.pins.Reset, gpio.Low)
	eh.delay(p.Low)
	eh.out(l.pins.Reset, gpio.High)
	eh.delay(p.Settle)
	eh.out(l.pins.CS, gpio.High)
	eh.delay(p.Deselect)

	return eh.err
}

// WaitBusy implements Lines.
func (l *Link) WaitBusy() error {
	var deadline time.Time
	if l.opts.BusyTimeout > 0 {
		deadline = time.Now().Add(l.opts.BusyTimeout)
	}
	for l.pins.Busy.Read() == l.opts.BusyLevel {
		if !deadline.IsZero() && time.Now().After(deadline) {
			return ErrBusyTimeout
		}
		l.sleep(l.opts.BusyPoll)
	}
	return nil
}

// OpenWide implements Wide.
//
// A periph.io SPI port can only be connected once, so the first frequency
// requested is kept for the lifetime of the Link.
func (l *Link) OpenWide(f physic.Frequency) error {
	switch l.state {
	case linkWide:
		return nil
	case linkNarrow:
		if err := l.CloseNarrow(); err != nil {
			return err
		}
	}
	if l.c == nil {
		c, err := l.port.Connect(f, spi.Mode0, 8)
		if err != nil {
			return fmt.Errorf("epd: failed to connect to the panel over spi: %w", err)
		}
		l.c = c
		l.freq = f

		// Get the maxTxSize from the conn if it implements the conn.Limits
		// interface, otherwise use 4096 bytes.
		l.maxTxSize = 0
		if limits, ok := c.(conn.Limits); ok {
			l.maxTxSize = limits.MaxTxSize()
		}
		if l.maxTxSize == 0 {
			l.maxTxSize = 4096
		}
	} else if f != l.freq {
		return fmt.Errorf("epd: spi already connected at %s, cannot reopen at %s", l.freq, f)
	}
	l.state = linkWide
	return nil
}

// SendIndexData implements Wide.
func (l *Link) SendIndexData(index byte, data []byte) error {
	if l.state != linkWide {
		return errWideClosed
	}
	eh := errorHandler{l: l}

	eh.out(l.pins.DC, gpio.Low)
	eh.out(l.pins.CS, gpio.Low)
	eh.tx([]byte{index})
	eh.out(l.pins.DC, gpio.High)
	eh.tx(data)
	eh.out(l.pins.CS, gpio.High)

	return eh.err
}

// SendIndexFixed implements Wide.
func (l *Link) SendIndexFixed(index, value byte, n int) error {
	if l.state != linkWide {
		return errWideClosed
	}
	chunk := min(n, l.maxTxSize)
	if cap(l.fill) < chunk {
		l.fill = make([]byte, chunk)
	}
	buf := l.fill[:chunk]
	for i := range buf {
		buf[i] = value
	}

	eh := errorHandler{l: l}

	eh.out(l.pins.DC, gpio.Low)
	eh.out(l.pins.CS, gpio.Low)
	eh.tx([]byte{index})
	eh.out(l.pins.DC, gpio.High)
	for n > 0 {
		w := min(n, len(buf))
		eh.tx(buf[:w])
		n -= w
	}
	eh.out(l.pins.CS, gpio.High)

	return eh.err
}

// SendCommandData8 implements Wide.
func (l *Link) SendCommandData8(index, data byte) error {
	return l.SendIndexData(index, []byte{data})
}

// Halt implements conn.Resource. The panel keeps its image without power, so
// only the narrow link is released.
func (l *Link) Halt() error {
	if l.state == linkNarrow {
		return l.CloseNarrow()
	}
	return nil
}

// String returns a string containing configuration information.
func (l *Link) String() string {
	return fmt.Sprintf("epd.Link{%s, %s, %s, %s}", l.port, l.pins.DC, l.pins.Busy, l.state)
}

var _ Bus = &Link{}
var _ conn.Resource = &Link{}
