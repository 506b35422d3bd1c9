// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package epd

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"periph.io/x/conn/v3/conntest"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi/spitest"
)

// logPin records every level driven on the pin and plays back scripted
// levels on Read.
type logPin struct {
	gpio.PinIO
	name  string
	log   *[]string
	reads []gpio.Level
}

func (p *logPin) Out(l gpio.Level) error {
	*p.log = append(*p.log, fmt.Sprintf("%s=%s", p.name, l))
	return p.PinIO.Out(l)
}

func (p *logPin) Read() gpio.Level {
	if len(p.reads) == 0 {
		return p.PinIO.Read()
	}
	l := p.reads[0]
	p.reads = p.reads[1:]
	return l
}

type testBoard struct {
	log                      []string
	reset, dc, cs, sck, busy *logPin
	sda                      *logPin
	rec                      *spitest.Record
	sleeps                   []time.Duration
}

func newTestBoard(t *testing.T, opts *Opts) (*testBoard, *Link) {
	b := &testBoard{rec: &spitest.Record{}}
	pin := func(name string) *logPin {
		return &logPin{PinIO: &gpiotest.Pin{N: name}, name: name, log: &b.log}
	}
	b.reset, b.dc, b.cs, b.busy, b.sck, b.sda = pin("RST"), pin("DC"), pin("CS"), pin("BUSY"), pin("SCK"), pin("SDA")
	l, err := New(b.rec, &Pins{
		Reset: b.reset,
		DC:    b.dc,
		CS:    b.cs,
		Busy:  b.busy,
		SCK:   b.sck,
		SDA:   b.sda,
	}, opts)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	l.sleep = func(d time.Duration) {
		b.sleeps = append(b.sleeps, d)
	}
	b.log = nil
	return b, l
}

func TestNewMissingPins(t *testing.T) {
	if _, err := New(&spitest.Record{}, &Pins{DC: &gpiotest.Pin{}}, nil); err == nil {
		t.Error("New() without reset/cs/busy pins succeeded")
	}
}

func TestSendIndexData(t *testing.T) {
	b, l := newTestBoard(t, nil)

	if err := l.SendIndexData(0x13, []byte{1, 2}); !errors.Is(err, errWideClosed) {
		t.Fatalf("SendIndexData() before OpenWide = %v, want %v", err, errWideClosed)
	}
	if err := l.OpenWide(16 * physic.MegaHertz); err != nil {
		t.Fatal(err)
	}
	if err := l.SendIndexData(0x13, []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if err := l.SendCommandData8(0xa7, 0x10); err != nil {
		t.Fatal(err)
	}

	want := []conntest.IO{
		{W: []byte{0x13}},
		{W: []byte{1, 2, 3}},
		{W: []byte{0xa7}},
		{W: []byte{0x10}},
	}
	if diff := cmp.Diff(b.rec.Ops, want, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("spi ops difference (-got +want):\n%s", diff)
	}
	wantPins := []string{"DC=Low", "CS=Low", "DC=High", "CS=High", "DC=Low", "CS=Low", "DC=High", "CS=High"}
	if diff := cmp.Diff(b.log, wantPins); diff != "" {
		t.Errorf("pin levels difference (-got +want):\n%s", diff)
	}
}

func TestSendIndexFixed(t *testing.T) {
	b, l := newTestBoard(t, nil)
	if err := l.OpenWide(16 * physic.MegaHertz); err != nil {
		t.Fatal(err)
	}

	const n = 10000
	if err := l.SendIndexFixed(0x11, 0x00, n); err != nil {
		t.Fatal(err)
	}

	if got := b.rec.Ops[0].W; !bytes.Equal(got, []byte{0x11}) {
		t.Errorf("index = %#v, want 0x11", got)
	}
	var data []byte
	for _, op := range b.rec.Ops[1:] {
		if len(op.W) > 4096 {
			t.Errorf("transfer of %d bytes exceeds the 4096 bytes limit", len(op.W))
		}
		data = append(data, op.W...)
	}
	if diff := cmp.Diff(data, make([]byte, n)); diff != "" {
		t.Errorf("plane difference (-got +want):\n%s", diff)
	}
}

func TestOpenWideOtherFrequency(t *testing.T) {
	_, l := newTestBoard(t, nil)
	if err := l.OpenWide(16 * physic.MegaHertz); err != nil {
		t.Fatal(err)
	}
	if err := l.OpenWide(16 * physic.MegaHertz); err != nil {
		t.Errorf("OpenWide() twice failed: %v", err)
	}
	if err := l.OpenNarrow(); err != nil {
		t.Fatal(err)
	}
	if err := l.OpenWide(4 * physic.MegaHertz); err == nil {
		t.Error("OpenWide() at another frequency succeeded")
	}
}

func TestLinkExclusivity(t *testing.T) {
	_, l := newTestBoard(t, nil)
	if err := l.OpenWide(16 * physic.MegaHertz); err != nil {
		t.Fatal(err)
	}
	if err := l.OpenNarrow(); err != nil {
		t.Fatal(err)
	}
	if l.state != linkNarrow {
		t.Fatalf("state = %s, want narrow", l.state)
	}
	if err := l.SendCommandData8(0x05, 0x7d); !errors.Is(err, errWideClosed) {
		t.Errorf("SendCommandData8() with the narrow link open = %v, want %v", err, errWideClosed)
	}
	if err := l.OpenWide(16 * physic.MegaHertz); err != nil {
		t.Fatal(err)
	}
	if _, err := l.ReadData3(); !errors.Is(err, errNarrowClosed) {
		t.Errorf("ReadData3() with the wide link open = %v, want %v", err, errNarrowClosed)
	}
	if err := l.WriteCommand3(0xb9); !errors.Is(err, errNarrowClosed) {
		t.Errorf("WriteCommand3() with the wide link open = %v, want %v", err, errNarrowClosed)
	}
}

func TestThreeWire(t *testing.T) {
	b, l := newTestBoard(t, nil)
	if err := l.OpenNarrow(); err != nil {
		t.Fatal(err)
	}
	b.log = nil

	if err := l.WriteCommand3(0xb9); err != nil {
		t.Fatal(err)
	}
	var sda []string
	for _, e := range b.log {
		if e == "SDA=High" || e == "SDA=Low" {
			sda = append(sda, e[4:])
		}
	}
	// 0xb9 = 1011 1001
	wantBits := []string{"High", "Low", "High", "High", "High", "Low", "Low", "High"}
	if diff := cmp.Diff(sda, wantBits); diff != "" {
		t.Errorf("SDA bits difference (-got +want):\n%s", diff)
	}
	if diff := cmp.Diff(b.log[:2], []string{"DC=Low", "CS=Low"}); diff != "" {
		t.Errorf("command select difference (-got +want):\n%s", diff)
	}

	// 0xa5 = 1010 0101
	b.sda.reads = []gpio.Level{gpio.High, gpio.Low, gpio.High, gpio.Low, gpio.Low, gpio.High, gpio.Low, gpio.High}
	got, err := l.ReadData3()
	if err != nil {
		t.Fatal(err)
	}
	if got != 0xa5 {
		t.Errorf("ReadData3() = %#x, want 0xa5", got)
	}

	b.log = nil
	if err := l.CloseNarrow(); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(b.log, []string{"CS=High"}); diff != "" {
		t.Errorf("CloseNarrow() pin levels difference (-got +want):\n%s", diff)
	}
	if l.state != linkClosed {
		t.Errorf("state = %s, want closed", l.state)
	}
}

func TestOpenNarrowWithoutPins(t *testing.T) {
	l, err := New(&spitest.Record{}, &Pins{
		Reset: &gpiotest.Pin{},
		DC:    &gpiotest.Pin{},
		CS:    &gpiotest.Pin{},
		Busy:  &gpiotest.Pin{},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.OpenNarrow(); err == nil {
		t.Error("OpenNarrow() without SCK and SDA succeeded")
	}
}

func TestReset(t *testing.T) {
	b, l := newTestBoard(t, nil)

	p := ResetProfile{
		PowerOn:  5 * time.Millisecond,
		High:     2 * time.Millisecond,
		Low:      4 * time.Millisecond,
		Settle:   20 * time.Millisecond,
		Deselect: 5 * time.Millisecond,
	}
	if err := l.Reset(p); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(b.log, []string{"RST=High", "RST=Low", "RST=High", "CS=High"}); diff != "" {
		t.Errorf("pin levels difference (-got +want):\n%s", diff)
	}
	wantSleeps := []time.Duration{5 * time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond, 20 * time.Millisecond, 5 * time.Millisecond}
	if diff := cmp.Diff(b.sleeps, wantSleeps); diff != "" {
		t.Errorf("delays difference (-got +want):\n%s", diff)
	}
}

func TestWaitBusy(t *testing.T) {
	b, l := newTestBoard(t, &Opts{BusyPoll: 10 * time.Millisecond})

	b.busy.reads = []gpio.Level{gpio.Low, gpio.Low, gpio.Low, gpio.High}
	if err := l.WaitBusy(); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(b.sleeps, []time.Duration{10 * time.Millisecond, 10 * time.Millisecond, 10 * time.Millisecond}); diff != "" {
		t.Errorf("polls difference (-got +want):\n%s", diff)
	}
}

func TestWaitBusyTimeout(t *testing.T) {
	_, l := newTestBoard(t, &Opts{BusyTimeout: time.Millisecond, BusyPoll: 100 * time.Microsecond})
	l.sleep = time.Sleep

	// The busy pin stays Low.
	if err := l.WaitBusy(); !errors.Is(err, ErrBusyTimeout) {
		t.Errorf("WaitBusy() = %v, want %v", err, ErrBusyTimeout)
	}
}

func TestWaitBusyActiveHigh(t *testing.T) {
	b, l := newTestBoard(t, &Opts{BusyLevel: gpio.High})

	b.busy.reads = []gpio.Level{gpio.High, gpio.Low}
	if err := l.WaitBusy(); err != nil {
		t.Fatal(err)
	}
	if len(b.sleeps) != 1 {
		t.Errorf("got %d polls, want 1", len(b.sleeps))
	}
}
