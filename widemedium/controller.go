// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package widemedium

import (
	"time"

	"github.com/GermanBionicSystems/pervasive/epd"
	"periph.io/x/conn/v3/physic"
)

// Registers
const (
	regDCTL        byte = 0x01
	regVCOM        byte = 0x02
	regVCOMCtrl    byte = 0x03
	regPower       byte = 0x05
	regBoostSwitch byte = 0x09
	regNextFrame   byte = 0x10
	regPrevFrame   byte = 0x11
	regRAMRW       byte = 0x12
	regDUW         byte = 0x13
	regRefresh     byte = 0x15
	regTempSelect  byte = 0x44
	regTempValue   byte = 0x45
	regPHLPHH      byte = 0x51
	regTCON        byte = 0x60
	regSTVDir      byte = 0x61
	regDRFW        byte = 0x90
	regTrigger     byte = 0xa7
	regBVSS        byte = 0xd6
	regMSSync      byte = 0xd8

	cmdReadOTP byte = 0xb9
)

// NextFrameIndex is the register receiving the frame to show, one bit per
// pixel, rows first.
const NextFrameIndex = regNextFrame

// linkFrequency is the clock of the wide link during updates.
const linkFrequency = 16 * physic.MegaHertz

// resetProfile is the reset pulse of the medium size panels.
var resetProfile = epd.ResetProfile{
	PowerOn:  5 * time.Millisecond,
	High:     2 * time.Millisecond,
	Low:      4 * time.Millisecond,
	Settle:   20 * time.Millisecond,
	Deselect: 5 * time.Millisecond,
}

type controller interface {
	reset(p epd.ResetProfile)
	waitBusy()
	delay(d time.Duration)

	openWide(f physic.Frequency)
	sendIndexData(index byte, data []byte)
	sendIndexFixed(index, value byte, n int)
	sendCommandData8(index, data byte)

	openNarrow()
	writeCommand3(cmd byte)
	readData3() byte
	closeNarrow()
}

// initialize programs the display control register.
func initialize(ctrl controller, t *Table) {
	ctrl.sendIndexData(regDCTL, []byte{t.InitializationRegister(), 0x00})
}

// sendImage loads the next plane and the previous plane. A nil previous is
// sent as a plane of zeros, which is what the normal update expects.
func sendImage(ctrl controller, t *Table, next, previous []byte) {
	w := t.ImageWindow()

	ctrl.sendIndexData(regDUW, w.DUW[:])
	ctrl.sendIndexData(regDRFW, w.DRFW[:])

	ctrl.sendIndexData(regRAMRW, w.RAMRW[:])
	ctrl.sendIndexData(regNextFrame, next)

	ctrl.sendIndexData(regRAMRW, w.RAMRW[:])
	if previous == nil {
		ctrl.sendIndexFixed(regPrevFrame, 0x00, len(next))
	} else {
		ctrl.sendIndexData(regPrevFrame, previous)
	}
}

// trigger latches the values written so far. The delays are settle times
// required by the panel.
func trigger(ctrl controller) {
	ctrl.sendCommandData8(regTrigger, 0x10)
	ctrl.delay(2 * time.Millisecond)
	ctrl.sendCommandData8(regTrigger, 0x00)
	ctrl.delay(10 * time.Millisecond)
}

// refresh powers the DC/DC converter up and starts the refresh.
func refresh(ctrl controller, t *Table, mode epd.Mode, celsius int, filter byte) {
	c := t.Constants()

	ctrl.sendCommandData8(regPower, 0x7d)
	ctrl.delay(50 * time.Millisecond)
	ctrl.sendCommandData8(regPower, 0x00)
	ctrl.delay(time.Millisecond)
	ctrl.sendCommandData8(regMSSync, c.MSSync)
	ctrl.sendCommandData8(regBVSS, c.BVSS)
	trigger(ctrl)

	ctrl.sendCommandData8(regTempSelect, 0x00)
	ctrl.sendCommandData8(regTempValue, 0x80)
	trigger(ctrl)

	ctrl.sendCommandData8(regTempSelect, 0x06)
	ctrl.sendCommandData8(regTempValue, TemperatureIndex(celsius, mode))
	trigger(ctrl)

	ctrl.sendCommandData8(regTCON, c.TCON)
	ctrl.sendCommandData8(regSTVDir, c.STVDir)
	ctrl.sendCommandData8(regVCOM, c.VCOM)
	ctrl.sendCommandData8(regVCOMCtrl, c.VCOMCtrl)

	softStart(ctrl, t.SoftStart(filter))

	ctrl.waitBusy()
	ctrl.sendCommandData8(regRefresh, 0x3c)
}

// softStart ramps the DC/DC converter up. The pump phases accumulate over the
// iterations of a stage, wrapping around at 8 bits.
func softStart(ctrl controller, stages [softStartStages]SoftStartStage) {
	for _, s := range stages {
		phl, phh := s.PHL, s.PHH
		for i := byte(0); i < s.Repeat; i++ {
			ctrl.sendCommandData8(regBoostSwitch, s.BoostA)
			phl += s.PHLStep
			phh += s.PHHStep
			ctrl.sendIndexData(regPHLPHH, []byte{phl, phh})
			ctrl.sendCommandData8(regBoostSwitch, s.BoostB)
			ctrl.delay(s.Delay)
		}
	}
}

// powerOff turns the DC/DC converter off once the refresh is over.
func powerOff(ctrl controller, v *variant) {
	ctrl.waitBusy()
	shutdown(ctrl, v)
}

// shutdown turns the DC/DC converter off without waiting for the panel.
func shutdown(ctrl controller, v *variant) {
	ctrl.sendCommandData8(regBoostSwitch, v.boostOff[0])
	ctrl.sendCommandData8(regPower, 0x3d)
	ctrl.sendCommandData8(regBoostSwitch, v.boostOff[1])
	ctrl.delay(60 * time.Millisecond)
	ctrl.sendCommandData8(regBoostSwitch, 0x00)
}
