// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package widemedium

import (
	"time"

	"github.com/GermanBionicSystems/pervasive/epd"
	"periph.io/x/conn/v3/physic"
)

// record is one operation on the link. Register writes only set cmd and
// data, or cmd, fill and n for a fixed plane.
type record struct {
	op    string
	cmd   byte
	data  []byte
	fill  byte
	n     int
	delay time.Duration
}

// fakeController implements controller and records every operation except
// the OTP reads, which are played back from otp.
type fakeController struct {
	records []record
	otp     []byte
}

func (f *fakeController) reset(epd.ResetProfile) {
	f.records = append(f.records, record{op: "reset"})
}

func (f *fakeController) waitBusy() {
	f.records = append(f.records, record{op: "busy"})
}

func (f *fakeController) delay(d time.Duration) {
	f.records = append(f.records, record{op: "delay", delay: d})
}

func (f *fakeController) openWide(physic.Frequency) {
	f.records = append(f.records, record{op: "wide"})
}

func (f *fakeController) sendIndexData(index byte, data []byte) {
	f.records = append(f.records, record{cmd: index, data: append([]byte(nil), data...)})
}

func (f *fakeController) sendIndexFixed(index, value byte, n int) {
	f.records = append(f.records, record{cmd: index, fill: value, n: n})
}

func (f *fakeController) sendCommandData8(index, data byte) {
	f.records = append(f.records, record{cmd: index, data: []byte{data}})
}

func (f *fakeController) openNarrow() {
	f.records = append(f.records, record{op: "narrow"})
}

func (f *fakeController) writeCommand3(cmd byte) {
	f.records = append(f.records, record{op: "command3", cmd: cmd})
}

func (f *fakeController) readData3() byte {
	if len(f.otp) == 0 {
		return 0
	}
	b := f.otp[0]
	f.otp = f.otp[1:]
	return b
}

func (f *fakeController) closeNarrow() {
	f.records = append(f.records, record{op: "close"})
}

// fakeBus implements epd.Bus on top of fakeController. It fails every
// register write once failAfter writes went through, when failAfter > 0.
type fakeBus struct {
	fakeController
	writes    int
	failAfter int
	err       error
	// busyErr is returned by WaitBusy.
	busyErr error
}

func (f *fakeBus) write() error {
	f.writes++
	if f.failAfter > 0 && f.writes > f.failAfter {
		return f.err
	}
	return nil
}

func (f *fakeBus) Reset(p epd.ResetProfile) error {
	f.reset(p)
	return nil
}

func (f *fakeBus) WaitBusy() error {
	f.waitBusy()
	return f.busyErr
}

func (f *fakeBus) OpenWide(freq physic.Frequency) error {
	f.openWide(freq)
	return nil
}

func (f *fakeBus) SendIndexData(index byte, data []byte) error {
	if err := f.write(); err != nil {
		return err
	}
	f.sendIndexData(index, data)
	return nil
}

func (f *fakeBus) SendIndexFixed(index, value byte, n int) error {
	if err := f.write(); err != nil {
		return err
	}
	f.sendIndexFixed(index, value, n)
	return nil
}

func (f *fakeBus) SendCommandData8(index, data byte) error {
	if err := f.write(); err != nil {
		return err
	}
	f.sendCommandData8(index, data)
	return nil
}

func (f *fakeBus) OpenNarrow() error {
	f.openNarrow()
	return nil
}

func (f *fakeBus) WriteCommand3(cmd byte) error {
	f.writeCommand3(cmd)
	return nil
}

func (f *fakeBus) ReadData3() (byte, error) {
	return f.readData3(), nil
}

func (f *fakeBus) CloseNarrow() error {
	f.closeNarrow()
	return nil
}

var _ controller = &fakeController{}
var _ epd.Bus = &fakeBus{}

// otpStream returns what the panel sends after the read command: a dummy
// byte followed by the table.
func otpStream(t *Table) []byte {
	return append([]byte{0xee}, t[:]...)
}

// testTable returns a calibration with distinct values at every field and a
// short soft-start program.
func testTable(chipID byte) *Table {
	t := &Table{}
	for i := range t {
		t[i] = byte(0x80 + i)
	}
	t[offsetChipID] = chipID
	stages := [softStartStages][softStartStride]byte{
		{0x02, 0x10, 0x20, 0x01, 0x02, 0xa1, 0xb1, 0x05},
		{0x81, 0x30, 0x40, 0x03, 0x04, 0xa2, 0xb2, 0x83},
		{0x00, 0x50, 0x60, 0x05, 0x06, 0xa3, 0xb3, 0x01},
		{0x01, 0xff, 0xfe, 0x02, 0x03, 0xa4, 0xb4, 0x00},
	}
	for i, s := range stages {
		copy(t[offsetSoftStart+softStartStride*i:], s[:])
	}
	return t
}
