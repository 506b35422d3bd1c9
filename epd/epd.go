// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package epd

import (
	"fmt"
	"strings"
)

// Driver is implemented by every panel family.
type Driver interface {
	// Begin resets the panel and reads its calibration. It must succeed
	// before any update.
	Begin() error
	// UpdateNormal shows frame with a full refresh.
	UpdateNormal(frame []byte) error
	// UpdateFast shows next with a partial refresh, previous being the frame
	// currently on the panel.
	UpdateFast(next, previous []byte) error
	// Reference returns the driver variant and release.
	Reference() string
}

// Mode is the kind of refresh.
type Mode uint8

const (
	// Normal is the full refresh: the panel flashes and every pixel is driven.
	Normal Mode = iota
	// Fast is the partial refresh: only the pixels that changed between the
	// previous and the next frame are driven.
	Fast
)

func (m Mode) String() string {
	switch m {
	case Normal:
		return "normal"
	case Fast:
		return "fast"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// Set sets the Mode to a value represented by the string s. Set implements the flag.Value interface.
func (m *Mode) Set(s string) error {
	switch strings.ToLower(s) {
	case "normal":
		*m = Normal
	case "fast":
		*m = Fast
	default:
		return fmt.Errorf("unknown mode %q: expected normal or fast", s)
	}
	return nil
}

// Reference formats the variant name and a release number such as 902 into
// "variant v9.0.2".
func Reference(variant string, release int) string {
	return fmt.Sprintf("%s v%d.%d.%d", variant, release/100, (release/10)%10, release%10)
}
