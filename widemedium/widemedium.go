// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package widemedium

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GermanBionicSystems/pervasive/epd"
	"periph.io/x/conn/v3"
)

const (
	variantName = "Wide medium"
	release     = 902

	// defaultTemperature is the ambient temperature assumed until
	// SetTemperature is called, in °C.
	defaultTemperature = 25
)

// Supported screens.
var (
	EPD340KS0G = epd.Screen{Size: 340, Film: epd.FilmK, Driver: 'G'}
	EPD581KS06 = epd.Screen{Size: 581, Film: epd.FilmK, Driver: '6'}
	EPD741KS06 = epd.Screen{Size: 741, Film: epd.FilmK, Driver: '6'}
)

// variant holds what differs between the screens of the family.
type variant struct {
	screen epd.Screen
	// chipID is the expected first byte of the OTP memory.
	chipID byte
	// filter is ANDed with the soft-start boost switch masks.
	filter byte
	// boostOff are the boost switch values of the DC/DC shutdown.
	boostOff [2]byte
}

var variants = [...]variant{
	{screen: EPD340KS0G, chipID: 0x17, filter: 0xff, boostOff: [2]byte{0x7b, 0x7a}},
	{screen: EPD581KS06, chipID: 0x16, filter: 0xff, boostOff: [2]byte{0x7f, 0x7e}},
	{screen: EPD741KS06, chipID: 0x16, filter: 0xff, boostOff: [2]byte{0x7f, 0x7e}},
}

func lookupVariant(s epd.Screen) (*variant, error) {
	for i := range variants {
		if variants[i].screen == s {
			return &variants[i], nil
		}
	}
	return nil, fmt.Errorf("widemedium: unsupported screen %s", s)
}

// phase is the step of an update in progress.
type phase uint8

const (
	idle phase = iota
	resetting
	linkOpen
	initialized
	imageLoaded
	refreshing
	poweredDown
)

func (p phase) String() string {
	switch p {
	case idle:
		return "idle"
	case resetting:
		return "reset"
	case linkOpen:
		return "link open"
	case initialized:
		return "initialized"
	case imageLoaded:
		return "image loaded"
	case refreshing:
		return "refreshing"
	case poweredDown:
		return "powered down"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// Dev is a handle to a panel of the family.
type Dev struct {
	mu sync.Mutex

	bus     epd.Bus
	variant *variant
	table   *Table
	celsius int
	phase   phase

	sleep   func(time.Duration)
	onPhase func(phase)
}

// New returns a Dev driving screen over bus. Begin must be called before the
// first update.
func New(bus epd.Bus, screen epd.Screen) (*Dev, error) {
	v, err := lookupVariant(screen)
	if err != nil {
		return nil, err
	}
	return &Dev{
		bus:     bus,
		variant: v,
		celsius: defaultTemperature,
		sleep:   time.Sleep,
	}, nil
}

// Begin resets the panel and reads its calibration.
//
// A calibration with an unexpected identity byte returns a
// *CalibrationError matching ErrCalibration; the Dev then refuses every
// update.
func (d *Dev) Begin() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.table = nil
	eh := d.handler()
	eh.reset(resetProfile)
	t := readCalibration(eh)
	if eh.err != nil {
		return fmt.Errorf("widemedium: failed to read the OTP memory: %w", eh.err)
	}
	if err := t.check(d.variant.chipID); err != nil {
		return err
	}
	d.table = t
	return nil
}

// UpdateNormal shows frame with a full refresh. The previous plane is sent
// as zeros.
func (d *Dev) UpdateNormal(frame []byte) error {
	if len(frame) == 0 {
		return errors.New("widemedium: empty frame")
	}
	return d.update(epd.Normal, frame, nil)
}

// UpdateFast shows next with a fast refresh. previous must be the frame
// currently on the panel, of the same size.
func (d *Dev) UpdateFast(next, previous []byte) error {
	if len(next) == 0 {
		return errors.New("widemedium: empty frame")
	}
	if len(next) != len(previous) {
		return fmt.Errorf("widemedium: next frame is %d bytes, previous frame is %d bytes", len(next), len(previous))
	}
	return d.update(epd.Fast, next, previous)
}

func (d *Dev) update(mode epd.Mode, next, previous []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.table == nil {
		return ErrNotCalibrated
	}
	eh := d.handler()
	steps := []struct {
		p   phase
		run func()
	}{
		{resetting, func() { eh.reset(resetProfile) }},
		{linkOpen, func() { eh.openWide(linkFrequency) }},
		{initialized, func() { initialize(eh, d.table) }},
		{imageLoaded, func() { sendImage(eh, d.table, next, previous) }},
		{refreshing, func() { refresh(eh, d.table, mode, d.celsius, d.variant.filter) }},
		{poweredDown, func() { powerOff(eh, d.variant) }},
	}
	for _, s := range steps {
		if eh.err != nil {
			break
		}
		d.enter(s.p)
		s.run()
	}
	if eh.err == nil {
		d.enter(idle)
		return nil
	}
	err := fmt.Errorf("widemedium: %s update failed: %w", mode, eh.err)
	if d.phase < refreshing {
		d.enter(idle)
		return err
	}
	// The DC/DC converter is on.
	if serr := d.powerDown(); serr != nil {
		return fmt.Errorf("%w; DC/DC shutdown failed: %v", err, serr)
	}
	return err
}

// powerDown turns the DC/DC converter off after an interrupted refresh. The
// phase is left as is on failure so Halt tries again.
func (d *Dev) powerDown() error {
	d.enter(poweredDown)
	eh := d.handler()
	shutdown(eh, d.variant)
	if eh.err != nil {
		return eh.err
	}
	d.enter(idle)
	return nil
}

func (d *Dev) handler() *errorHandler {
	return &errorHandler{bus: d.bus, sleep: d.sleep}
}

func (d *Dev) enter(p phase) {
	d.phase = p
	if d.onPhase != nil {
		d.onPhase(p)
	}
}

// SetTemperature sets the ambient temperature in °C used by the next
// updates.
func (d *Dev) SetTemperature(celsius int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.celsius = celsius
}

// Temperature returns the ambient temperature in °C.
func (d *Dev) Temperature() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.celsius
}

// Calibration returns a copy of the validated calibration.
func (d *Dev) Calibration() (Table, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.table == nil {
		return Table{}, ErrNotCalibrated
	}
	return *d.table, nil
}

// Screen returns the screen driven.
func (d *Dev) Screen() epd.Screen {
	return d.variant.screen
}

// Reference returns the driver variant and release.
func (d *Dev) Reference() string {
	return epd.Reference(variantName, release)
}

// Halt implements conn.Resource.
//
// The panel keeps its image without power. Halt only turns the DC/DC
// converter off when an update was interrupted and its shutdown failed.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.phase == idle {
		return nil
	}
	if err := d.powerDown(); err != nil {
		return fmt.Errorf("widemedium: DC/DC shutdown failed: %w", err)
	}
	return nil
}

// String returns a string containing configuration information.
func (d *Dev) String() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fmt.Sprintf("widemedium.Dev{%s, %v, %s}", d.variant.screen, d.bus, d.phase)
}

var _ epd.Driver = &Dev{}
var _ conn.Resource = &Dev{}
