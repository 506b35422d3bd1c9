// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package widemedium

import (
	"time"

	"github.com/GermanBionicSystems/pervasive/epd"
	"periph.io/x/conn/v3/physic"
)

// errorHandler is a wrapper for error management. It implements controller on
// top of an epd.Bus and keeps the first error.
type errorHandler struct {
	bus   epd.Bus
	sleep func(time.Duration)
	err   error
}

func (eh *errorHandler) reset(p epd.ResetProfile) {
	if eh.err != nil {
		return
	}
	eh.err = eh.bus.Reset(p)
}

func (eh *errorHandler) waitBusy() {
	if eh.err != nil {
		return
	}
	eh.err = eh.bus.WaitBusy()
}

func (eh *errorHandler) delay(d time.Duration) {
	if eh.err != nil || d <= 0 {
		return
	}
	eh.sleep(d)
}

func (eh *errorHandler) openWide(f physic.Frequency) {
	if eh.err != nil {
		return
	}
	eh.err = eh.bus.OpenWide(f)
}

func (eh *errorHandler) sendIndexData(index byte, data []byte) {
	if eh.err != nil {
		return
	}
	eh.err = eh.bus.SendIndexData(index, data)
}

func (eh *errorHandler) sendIndexFixed(index, value byte, n int) {
	if eh.err != nil {
		return
	}
	eh.err = eh.bus.SendIndexFixed(index, value, n)
}

func (eh *errorHandler) sendCommandData8(index, data byte) {
	if eh.err != nil {
		return
	}
	eh.err = eh.bus.SendCommandData8(index, data)
}

func (eh *errorHandler) openNarrow() {
	if eh.err != nil {
		return
	}
	eh.err = eh.bus.OpenNarrow()
}

func (eh *errorHandler) writeCommand3(cmd byte) {
	if eh.err != nil {
		return
	}
	eh.err = eh.bus.WriteCommand3(cmd)
}

func (eh *errorHandler) readData3() byte {
	if eh.err != nil {
		return 0
	}
	var b byte
	b, eh.err = eh.bus.ReadData3()
	return b
}

// closeNarrow always releases the link, even after an error.
func (eh *errorHandler) closeNarrow() {
	if err := eh.bus.CloseNarrow(); eh.err == nil {
		eh.err = err
	}
}
