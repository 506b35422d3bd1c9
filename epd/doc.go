// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package epd holds what the Pervasive Displays chip-on-glass drivers have in
// common: the Driver capability implemented by each panel family, the screen
// identities, and the command/data link to the panel.
//
// The link has two mutually exclusive modes. The wide link is the SPI bus
// used for commands and image planes. The narrow link is a three-wire,
// half-duplex bus bit-banged on the SPI clock and data pins, used to read the
// factory calibration out of the panel OTP memory.
//
// Application notes
//
// https://www.pervasivedisplays.com/technical-support/application-notes/
//
package epd
