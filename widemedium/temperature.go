// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package widemedium

import "github.com/GermanBionicSystems/pervasive/epd"

// Temperature index ranges supported by the panel waveforms.
const (
	normalIndexMin = 0x19
	normalIndexMax = 0x64
	fastIndexMin   = 0xa8
	fastIndexMax   = 0xda

	temperatureOffset = 0x28
	fastIndexOffset   = 0x80
)

// TemperatureIndex returns the value of the panel temperature compensation
// register for an ambient temperature in °C.
//
// The result saturates: the fast waveform covers 0 to 50 °C, the normal one
// -15 to 60 °C.
func TemperatureIndex(celsius int, mode epd.Mode) byte {
	if mode == epd.Fast {
		return byte(clamp(celsius+temperatureOffset+fastIndexOffset, fastIndexMin, fastIndexMax))
	}
	return byte(clamp(celsius+temperatureOffset, normalIndexMin, normalIndexMax))
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
