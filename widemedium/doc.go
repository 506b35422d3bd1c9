// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package widemedium drives the Pervasive Displays medium size panels with
// the wide temperature K film and fast update: 3.40", 5.81" and 7.41".
//
// The panel stores its waveform and timing parameters in a 128 bytes OTP
// memory. Dev.Begin reads and validates it; every update is then
// parameterized by the calibration and by the ambient temperature.
//
// A panel whose calibration does not carry the expected identity byte is
// rejected with ErrCalibration and must not be driven: wrong timings can
// damage the display electrodes.
//
// Datasheets
//
// https://www.pervasivedisplays.com/products/
//
package widemedium
