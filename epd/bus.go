// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package epd

import (
	"errors"
	"time"

	"periph.io/x/conn/v3/physic"
)

// ErrBusyTimeout is returned by WaitBusy when a busy timeout is configured and
// the panel did not release the busy line in time.
var ErrBusyTimeout = errors.New("epd: timed out waiting for the panel busy line")

// ResetProfile is the timing of the pulse on the panel reset line.
//
// The line is driven high after PowerOn, low after High, high again after Low;
// chip select is released after Settle, and Deselect is waited last.
type ResetProfile struct {
	PowerOn  time.Duration
	High     time.Duration
	Low      time.Duration
	Settle   time.Duration
	Deselect time.Duration
}

// Lines controls the panel reset and busy lines.
type Lines interface {
	// Reset pulses the reset line with the given profile.
	Reset(p ResetProfile) error
	// WaitBusy blocks until the panel releases the busy line.
	WaitBusy() error
}

// Wide is the command/data link used to program registers and send image
// planes.
type Wide interface {
	// OpenWide opens the wide link at frequency f, closing the narrow link
	// first if needed. It is a no-op when the wide link is already open.
	OpenWide(f physic.Frequency) error
	// SendIndexData writes the register index followed by data.
	SendIndexData(index byte, data []byte) error
	// SendIndexFixed writes the register index followed by n times value.
	SendIndexFixed(index, value byte, n int) error
	// SendCommandData8 writes the register index followed by one data byte.
	SendCommandData8(index, data byte) error
}

// Narrow is the three-wire link used to read the panel OTP memory.
type Narrow interface {
	// OpenNarrow opens the narrow link. The wide link is closed first.
	OpenNarrow() error
	// WriteCommand3 selects the panel in command mode and shifts out cmd.
	// The panel stays selected.
	WriteCommand3(cmd byte) error
	// ReadData3 switches to data mode and shifts in one byte.
	ReadData3() (byte, error)
	// CloseNarrow releases the panel and hands the pins back to the wide
	// link.
	CloseNarrow() error
}

// Bus is everything a panel family driver needs from the board.
//
// At most one of the wide and narrow links is open at any time.
type Bus interface {
	Lines
	Wide
	Narrow
}
