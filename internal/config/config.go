// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package config is the YAML configuration of the command line tool: the
// panel, how it is wired and what to show.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/GermanBionicSystems/pervasive/epd"
	"github.com/GermanBionicSystems/pervasive/internal/log"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Pins are the names of the GPIO lines, as known by gpioreg.
type Pins struct {
	Reset string `yaml:"reset"`
	DC    string `yaml:"dc"`
	CS    string `yaml:"cs"`
	Busy  string `yaml:"busy"`
	// SCK and SDA are the SPI clock and data lines, driven as GPIO to read
	// the calibration.
	SCK string `yaml:"sck"`
	SDA string `yaml:"sda"`
}

// Sensor is a BME280 or BMP280 on I²C.
type Sensor struct {
	// Bus is the I²C bus name, as known by i2creg. Empty selects the first
	// one.
	Bus string `yaml:"bus"`
	// Address is 0x76 or 0x77.
	Address uint16 `yaml:"address"`
}

// Temperature is the ambient temperature source.
type Temperature struct {
	// Celsius is used when there is no sensor, or when it fails.
	Celsius int `yaml:"celsius"`
	// Sensor, if non-nil, is read before each update.
	Sensor *Sensor `yaml:"sensor,omitempty"`
}

// Config is the top-level configuration.
type Config struct {
	// Screen is the panel, e.g. "581-KS-06".
	Screen epd.Screen `yaml:"screen"`
	// SPI is the SPI port name, as known by spireg. Empty selects the first
	// one.
	SPI  string `yaml:"spi"`
	Pins Pins   `yaml:"pins"`

	// BusyPoll is the busy line polling interval.
	BusyPoll time.Duration `yaml:"busy_poll"`
	// BusyTimeout bounds the wait for the panel. Zero waits forever.
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	Temperature Temperature `yaml:"temperature"`

	// Width and Height are the frame geometry in pixels.
	Width  int `yaml:"width"`
	Height int `yaml:"height"`

	// Image is shown by "run" and by default by "show". A PNG, JPEG or a raw
	// plane file (.bin). Empty shows a test card.
	Image string `yaml:"image"`

	// RefreshCron is the "run" schedule, in the standard 5 fields format.
	RefreshCron string `yaml:"refresh"`
	// FullEvery makes every FullEvery-th refresh of "run" a normal update,
	// the others are fast updates.
	FullEvery int `yaml:"full_every"`

	// DryRun traces the link operations on the console instead of driving a
	// panel.
	DryRun bool `yaml:"dry_run"`
	// Calibration is a raw dump of the OTP memory, played back on dry runs.
	// It is written by "otp -o".
	Calibration string `yaml:"calibration"`

	// LogLevel is one of debug, info, error, critical.
	LogLevel string `yaml:"log_level"`
}

// defaultScreen is a panel of the only family supported so far.
var defaultScreen = epd.Screen{Size: 581, Film: epd.FilmK, Driver: '6'}

// geometry is the frame size of the screens with a known resolution.
var geometry = map[epd.Screen][2]int{
	{Size: 581, Film: epd.FilmK, Driver: '6'}: {720, 256},
	{Size: 741, Film: epd.FilmK, Driver: '6'}: {800, 480},
}

// DefaultConfig returns the configuration of a Raspberry Pi wired as the
// Pervasive Displays EXT3 extension board.
func DefaultConfig() *Config {
	return &Config{
		Screen: defaultScreen,
		Pins: Pins{
			Reset: "GPIO17",
			DC:    "GPIO25",
			CS:    "GPIO8",
			Busy:  "GPIO24",
			SCK:   "GPIO11",
			SDA:   "GPIO10",
		},
		BusyPoll:    time.Millisecond,
		Temperature: Temperature{Celsius: 25},
		Width:       720,
		Height:      256,
		RefreshCron: "*/15 * * * *",
		FullEvery:   8,
		LogLevel:    "info",
	}
}

// Normalize fills in missing values so that partially filled files still
// behave.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Screen == (epd.Screen{}) {
		c.Screen = d.Screen
	}
	if c.Pins.Reset == "" {
		c.Pins.Reset = d.Pins.Reset
	}
	if c.Pins.DC == "" {
		c.Pins.DC = d.Pins.DC
	}
	if c.Pins.CS == "" {
		c.Pins.CS = d.Pins.CS
	}
	if c.Pins.Busy == "" {
		c.Pins.Busy = d.Pins.Busy
	}
	if c.Pins.SCK == "" {
		c.Pins.SCK = d.Pins.SCK
	}
	if c.Pins.SDA == "" {
		c.Pins.SDA = d.Pins.SDA
	}
	if c.BusyPoll <= 0 {
		c.BusyPoll = d.BusyPoll
	}
	if c.BusyTimeout < 0 {
		c.BusyTimeout = 0
	}
	if s := c.Temperature.Sensor; s != nil && s.Address == 0 {
		s.Address = 0x76
	}
	if c.Width == 0 && c.Height == 0 {
		if g, ok := geometry[c.Screen]; ok {
			c.Width, c.Height = g[0], g[1]
		}
	}
	if c.RefreshCron == "" {
		c.RefreshCron = d.RefreshCron
	}
	if c.FullEvery <= 0 {
		c.FullEvery = d.FullEvery
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
}

// Validate returns an error for a configuration that cannot be used.
func (c *Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("config: width and height are required for screen %s", c.Screen)
	}
	if c.Width%8 != 0 {
		return fmt.Errorf("config: width %d is not a multiple of 8", c.Width)
	}
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		return fmt.Errorf("config: invalid refresh schedule %q: %w", c.RefreshCron, err)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if s := c.Temperature.Sensor; s != nil && s.Address != 0x76 && s.Address != 0x77 {
		return fmt.Errorf("config: invalid sensor address %#x", s.Address)
	}
	return nil
}

// PlaneSize returns the size in bytes of a frame.
func (c *Config) PlaneSize() int {
	return c.Width / 8 * c.Height
}

// Load loads the configuration from the YAML file at path.
//
// On first run the file does not exist; the default configuration is written
// there with 0600 permissions and returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config: path is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c := DefaultConfig()
			return c, Save(path, c)
		}
		return nil, err
	}
	c := &Config{}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	c.Normalize()
	return c, nil
}

// Save writes c to path atomically with 0600 permissions.
func Save(path string, c *Config) error {
	if path == "" {
		return errors.New("config: path is empty")
	}
	if c == nil {
		return errors.New("config: nil configuration")
	}
	cc := *c
	if s := c.Temperature.Sensor; s != nil {
		sc := *s
		cc.Temperature.Sensor = &sc
	}
	cc.Normalize()
	data, err := yaml.Marshal(&cc)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".pervasive-config-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
