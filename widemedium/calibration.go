// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package widemedium

import (
	"errors"
	"fmt"
	"time"
)

// TableSize is the size of the OTP memory.
const TableSize = 128

// Offsets of the fields in the calibration table.
const (
	offsetChipID    = 0x00
	offsetTCON      = 0x0b
	offsetDRFW      = 0x0c // 4 bytes
	offsetDCTL      = 0x10
	offsetVCOM      = 0x11
	offsetRAMRW     = 0x12 // 3 bytes
	offsetDUW       = 0x15 // 6 bytes
	offsetSTVDir    = 0x1b
	offsetMSSync    = 0x1c
	offsetBVSS      = 0x1d
	offsetVCOMCtrl  = 0x1f
	offsetSoftStart = 0x28 // 4 stages
	softStartStride = 0x08
	softStartStages = 4
)

var (
	// ErrCalibration matches any calibration rejected by Begin. The panel
	// must not be driven.
	ErrCalibration = errors.New("widemedium: OTP check failed")
	// ErrNotCalibrated is returned by the updates until Begin succeeded.
	ErrNotCalibrated = errors.New("widemedium: no valid calibration, call Begin first")
)

// CalibrationError reports the identity byte found in the OTP memory.
type CalibrationError struct {
	Got  byte
	Want byte
}

func (e *CalibrationError) Error() string {
	return fmt.Sprintf("widemedium: OTP check failed - first byte 0x%02x, expected 0x%02x", e.Got, e.Want)
}

// Unwrap makes errors.Is(err, ErrCalibration) true.
func (e *CalibrationError) Unwrap() error {
	return ErrCalibration
}

// Table is the factory calibration read from the panel OTP memory.
//
// A Table returned by Dev.Calibration has been validated and must not be
// modified.
type Table [TableSize]byte

// ChipID returns the identity byte of the panel.
func (t *Table) ChipID() byte {
	return t[offsetChipID]
}

// check verifies the identity byte.
func (t *Table) check(chipID byte) error {
	if t[offsetChipID] != chipID {
		return &CalibrationError{Got: t[offsetChipID], Want: chipID}
	}
	return nil
}

// readCalibration reads the OTP memory over the narrow link. The link is
// closed again before returning.
func readCalibration(ctrl controller) *Table {
	ctrl.reset(resetProfile)

	ctrl.openNarrow()
	ctrl.writeCommand3(cmdReadOTP)
	ctrl.delay(5 * time.Millisecond)
	_ = ctrl.readData3() // Dummy

	t := &Table{}
	for i := range t {
		t[i] = ctrl.readData3()
	}
	ctrl.closeNarrow()

	return t
}
