// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package widemedium

import "time"

// Window is the image plane geometry, sent verbatim to the panel.
type Window struct {
	// DUW is the display update window.
	DUW [6]byte
	// DRFW is the display refresh window.
	DRFW [4]byte
	// RAMRW is the RAM read/write pointer.
	RAMRW [3]byte
}

// SoftStartStage is one stage of the DC/DC soft-start program.
type SoftStartStage struct {
	// Repeat is the number of iterations, up to 127.
	Repeat byte
	// PHL and PHH are the initial values of the pump phase pair.
	PHL, PHH byte
	// PHLStep and PHHStep are added to the pair on every iteration.
	PHLStep, PHHStep byte
	// BoostA and BoostB are written to the boost switch register before and
	// after the pair.
	BoostA, BoostB byte
	// Delay is waited at the end of every iteration.
	Delay time.Duration
	// Scaled is the delay scale flag. It is not used by this family.
	Scaled bool
}

// Constants are the bias and timing registers of the refresh.
type Constants struct {
	MSSync   byte
	BVSS     byte
	TCON     byte
	STVDir   byte
	VCOM     byte
	VCOMCtrl byte
}

// InitializationRegister returns the display control value.
func (t *Table) InitializationRegister() byte {
	return t[offsetDCTL]
}

// ImageWindow returns the image plane geometry.
func (t *Table) ImageWindow() Window {
	var w Window
	copy(w.DUW[:], t[offsetDUW:])
	copy(w.DRFW[:], t[offsetDRFW:])
	copy(w.RAMRW[:], t[offsetRAMRW:])
	return w
}

// SoftStart returns the soft-start program. The boost switch masks are ANDed
// with filter.
func (t *Table) SoftStart(filter byte) [softStartStages]SoftStartStage {
	var stages [softStartStages]SoftStartStage
	for i := range stages {
		s := t[offsetSoftStart+softStartStride*i:][:softStartStride]
		stages[i] = SoftStartStage{
			Repeat:  s[0] & 0x7f,
			PHL:     s[1],
			PHH:     s[2],
			PHLStep: s[3],
			PHHStep: s[4],
			BoostA:  s[5] & filter,
			BoostB:  s[6] & filter,
			Delay:   time.Duration(s[7]&0x7f) * time.Millisecond,
			Scaled:  s[7]&0x80 != 0,
		}
	}
	return stages
}

// Constants returns the bias and timing registers of the refresh.
func (t *Table) Constants() Constants {
	return Constants{
		MSSync:   t[offsetMSSync],
		BVSS:     t[offsetBVSS],
		TCON:     t[offsetTCON],
		STVDir:   t[offsetSTVDir],
		VCOM:     t[offsetVCOM],
		VCOMCtrl: t[offsetVCOMCtrl],
	}
}
