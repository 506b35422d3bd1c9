// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package epd

import (
	"time"

	"periph.io/x/conn/v3/gpio"
)

// errorHandler is a wrapper for error management.
type errorHandler struct {
	l   *Link
	err error
}

func (eh *errorHandler) out(p gpio.PinOut, lvl gpio.Level) {
	if eh.err != nil {
		return
	}
	eh.err = p.Out(lvl)
}

func (eh *errorHandler) tx(w []byte) {
	for len(w) > 0 && eh.err == nil {
		n := min(len(w), eh.l.maxTxSize)
		eh.err = eh.l.c.Tx(w[:n], nil)
		w = w[n:]
	}
}

func (eh *errorHandler) delay(d time.Duration) {
	if eh.err != nil || d <= 0 {
		return
	}
	eh.l.sleep(d)
}
