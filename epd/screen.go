// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package epd

import (
	"fmt"
	"strconv"
)

// Film is the frontplane technology of a panel.
type Film byte

// Films in use by the supported panels.
const (
	// FilmK is the wide temperature monochrome film with fast update.
	FilmK Film = 'K'
	// FilmP is the standard monochrome film with fast update.
	FilmP Film = 'P'
	// FilmQ is the wide temperature monochrome film.
	FilmQ Film = 'Q'
	// FilmJ is the black-white-red film.
	FilmJ Film = 'J'
)

// Screen identifies a panel by its diagonal size, film and driver revision,
// as printed on the panel label, e.g. "340-KS-0G".
//
// A Screen is chosen once when a driver is created.
type Screen struct {
	// Size is the diagonal in hundredths of an inch.
	Size int
	Film Film
	// Driver is the chip-on-glass revision.
	Driver byte
}

// String returns the label, e.g. "340-KS-0G".
func (s Screen) String() string {
	if s.Size == 0 {
		return "unknown"
	}
	return fmt.Sprintf("%03d-%cS-0%c", s.Size, s.Film, s.Driver)
}

// ParseScreen parses a panel label such as "340-KS-0G".
func ParseScreen(label string) (Screen, error) {
	if len(label) != 9 || label[3] != '-' || label[5] != 'S' || label[6] != '-' || label[7] != '0' {
		return Screen{}, fmt.Errorf("epd: invalid screen %q: expected a label like 340-KS-0G", label)
	}
	size, err := strconv.Atoi(label[:3])
	if err != nil || size <= 0 {
		return Screen{}, fmt.Errorf("epd: invalid screen size in %q", label)
	}
	return Screen{Size: size, Film: Film(label[4]), Driver: label[8]}, nil
}

// Set sets the Screen to a value represented by the string s. Set implements the flag.Value interface.
func (s *Screen) Set(label string) error {
	v, err := ParseScreen(label)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (s Screen) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Screen) UnmarshalText(text []byte) error {
	return s.Set(string(text))
}
