// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package common contains helpers shared by the panel packages and the tools.
package common

// CRC8 returns the CRC-8 of b with polynomial 0x31 and initial value 0xff.
//
// It fingerprints a calibration table so two dumps can be compared at a
// glance.
func CRC8(b []byte) byte {
	crc := byte(0xff)
	for _, v := range b {
		crc ^= v
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0x31
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
