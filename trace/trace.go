// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package trace implements an epd.Bus that outputs to terminal (stdout)
// instead of driving a panel, using ANSI color codes for the image planes.
//
// Useful to run a panel driver on a host without the panel, or while you are
// waiting for your panel to come by mail.
package trace

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"io"
	"sync"

	"github.com/GermanBionicSystems/pervasive/epd"
	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
)

// Opts represents the options available for the trace.
type Opts struct {
	// W receives the trace. Defaults to a colorable stdout.
	W io.Writer
	// Palette is used for the plane preview. Defaults to ansi256.Default.
	Palette *ansi256.Palette
	// OTP is played back on the narrow link after the dummy byte.
	OTP []byte

	// PreviewIndex is the register whose data is shown as an image, when
	// Width is not 0.
	PreviewIndex byte
	// Width and Height are the plane geometry in pixels.
	Width, Height int
	// Scale keeps one pixel out of Scale in both directions. Defaults to 1.
	Scale int

	_ struct{}
}

// maxBytes is the number of data bytes printed per write.
const maxBytes = 16

var (
	errWideClosed   = errors.New("trace: wide link is not open")
	errNarrowClosed = errors.New("trace: narrow link is not open")
)

// Bus is an epd.Bus that prints every operation.
type Bus struct {
	mu      sync.Mutex
	w       io.Writer
	opts    Opts
	palette *ansi256.Palette

	wide   bool
	narrow bool
	otp    []byte
	dummy  bool
	buf    bytes.Buffer
}

// New returns a Bus that prints at the console.
func New(opts *Opts) (*Bus, error) {
	if opts.Width < 0 || opts.Height < 0 || opts.Scale < 0 {
		return nil, fmt.Errorf("trace: invalid preview geometry %dx%d/%d", opts.Width, opts.Height, opts.Scale)
	}
	if opts.Width%8 != 0 {
		return nil, fmt.Errorf("trace: width %d is not a multiple of 8", opts.Width)
	}
	b := &Bus{w: opts.W, opts: *opts, palette: opts.Palette}
	if b.w == nil {
		b.w = colorable.NewColorableStdout()
	}
	if b.palette == nil {
		b.palette = ansi256.Default
	}
	if b.opts.Scale == 0 {
		b.opts.Scale = 1
	}
	return b, nil
}

func (b *Bus) String() string {
	return "trace.Bus"
}

// Halt implements conn.Resource.
//
// It resets the console colors.
func (b *Bus) Halt() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := io.WriteString(b.w, "\033[0m\n")
	return err
}

// Reset implements epd.Lines.
func (b *Bus) Reset(p epd.ResetProfile) error {
	return b.printf("reset %s/%s/%s/%s/%s\n", p.PowerOn, p.High, p.Low, p.Settle, p.Deselect)
}

// WaitBusy implements epd.Lines.
//
// The panel is never busy.
func (b *Bus) WaitBusy() error {
	return b.printf("busy\n")
}

// OpenWide implements epd.Wide.
func (b *Bus) OpenWide(f physic.Frequency) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.narrow = false
	b.wide = true
	return b.printfLocked("wide %s\n", f)
}

// SendIndexData implements epd.Wide.
func (b *Bus) SendIndexData(index byte, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.wide {
		return errWideClosed
	}
	if len(data) > maxBytes {
		if err := b.printfLocked("0x%02x <- % x ... (%d bytes)\n", index, data[:maxBytes], len(data)); err != nil {
			return err
		}
	} else if err := b.printfLocked("0x%02x <- % x\n", index, data); err != nil {
		return err
	}
	if b.opts.Width != 0 && index == b.opts.PreviewIndex {
		return b.show(data)
	}
	return nil
}

// SendIndexFixed implements epd.Wide.
func (b *Bus) SendIndexFixed(index, value byte, n int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.wide {
		return errWideClosed
	}
	return b.printfLocked("0x%02x <- 0x%02x x %d\n", index, value, n)
}

// SendCommandData8 implements epd.Wide.
func (b *Bus) SendCommandData8(index, data byte) error {
	return b.SendIndexData(index, []byte{data})
}

// OpenNarrow implements epd.Narrow.
func (b *Bus) OpenNarrow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.wide = false
	b.narrow = true
	return b.printfLocked("narrow\n")
}

// WriteCommand3 implements epd.Narrow.
//
// It rewinds the OTP playback.
func (b *Bus) WriteCommand3(cmd byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.narrow {
		return errNarrowClosed
	}
	b.otp = b.opts.OTP
	b.dummy = true
	return b.printfLocked("0x%02x\n", cmd)
}

// ReadData3 implements epd.Narrow.
//
// The first read after a command returns the dummy byte 0x00, then the OTP
// bytes follow. Zeros are returned once they are exhausted.
func (b *Bus) ReadData3() (byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.narrow {
		return 0, errNarrowClosed
	}
	if b.dummy {
		b.dummy = false
		return 0, nil
	}
	if len(b.otp) == 0 {
		return 0, nil
	}
	v := b.otp[0]
	b.otp = b.otp[1:]
	return v, nil
}

// CloseNarrow implements epd.Narrow.
func (b *Bus) CloseNarrow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.narrow = false
	return b.printfLocked("close\n")
}

func (b *Bus) printf(format string, a ...interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.printfLocked(format, a...)
}

func (b *Bus) printfLocked(format string, a ...interface{}) error {
	_, err := fmt.Fprintf(b.w, format, a...)
	return err
}

// show prints a 1 bit per pixel plane, rows first, most significant bit
// first. Set bits are dark.
func (b *Bus) show(plane []byte) error {
	// This code is designed to minimize the amount of memory allocated per call.
	stride := b.opts.Width / 8
	b.buf.Reset()
	for y := 0; y < b.opts.Height; y += b.opts.Scale {
		_, _ = b.buf.WriteString("\033[0m")
		for x := 0; x < b.opts.Width; x += b.opts.Scale {
			c := color.NRGBA{255, 255, 255, 255}
			if i := y*stride + x/8; i < len(plane) && plane[i]&(0x80>>uint(x%8)) != 0 {
				c = color.NRGBA{0, 0, 0, 255}
			}
			_, _ = io.WriteString(&b.buf, b.palette.Block(c))
		}
		_, _ = b.buf.WriteString("\033[0m\n")
	}
	_, err := b.buf.WriteTo(b.w)
	return err
}

var _ epd.Bus = &Bus{}
var _ conn.Resource = &Bus{}
var _ fmt.Stringer = &Bus{}
