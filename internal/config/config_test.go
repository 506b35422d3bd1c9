// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/GermanBionicSystems/pervasive/epd"
	"github.com/google/go-cmp/cmp"
)

func TestLoadFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "pervasive.yaml")

	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(c, DefaultConfig()); diff != "" {
		t.Errorf("Load() difference (-got +want):\n%s", diff)
	}
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if fi.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", fi.Mode().Perm())
	}

	// The written file loads back to the same configuration.
	again, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(again, c); diff != "" {
		t.Errorf("reload difference (-got +want):\n%s", diff)
	}
}

func TestLoadPartial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pervasive.yaml")
	data := `
screen: 741-KS-06
busy_timeout: 30s
pins:
  busy: GPIO5
temperature:
  celsius: 18
  sensor:
    bus: "1"
refresh: "0 * * * *"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	want := DefaultConfig()
	want.Screen = epd.Screen{Size: 741, Film: epd.FilmK, Driver: '6'}
	want.BusyTimeout = 30 * time.Second
	want.Pins.Busy = "GPIO5"
	want.Temperature = Temperature{Celsius: 18, Sensor: &Sensor{Bus: "1", Address: 0x76}}
	want.Width, want.Height = 800, 480
	want.RefreshCron = "0 * * * *"
	if diff := cmp.Diff(c, want); diff != "" {
		t.Errorf("Load() difference (-got +want):\n%s", diff)
	}
	if err := c.Validate(); err != nil {
		t.Error(err)
	}
	if got := c.PlaneSize(); got != 100*480 {
		t.Errorf("PlaneSize() = %d", got)
	}
}

func TestLoadInvalid(t *testing.T) {
	dir := t.TempDir()
	for name, data := range map[string]string{
		"screen": "screen: 581-KS\n",
		"yaml":   "pins: [\n",
	} {
		path := filepath.Join(dir, name+".yaml")
		if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Errorf("%s: Load() succeeded", name)
		}
	}
	if _, err := Load(""); err == nil {
		t.Error("Load(\"\") succeeded")
	}
}

func TestValidate(t *testing.T) {
	for name, mutate := range map[string]func(c *Config){
		"no geometry": func(c *Config) { c.Width, c.Height = 0, 0 },
		"width":       func(c *Config) { c.Width = 721 },
		"cron":        func(c *Config) { c.RefreshCron = "every minute" },
		"log level":   func(c *Config) { c.LogLevel = "loud" },
		"sensor":      func(c *Config) { c.Temperature.Sensor = &Sensor{Address: 0x40} },
	} {
		c := DefaultConfig()
		mutate(c)
		if err := c.Validate(); err == nil {
			t.Errorf("%s: Validate() succeeded", name)
		}
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestNormalizeUnknownGeometry(t *testing.T) {
	c := &Config{Screen: epd.Screen{Size: 340, Film: epd.FilmK, Driver: 'G'}}
	c.Normalize()
	if c.Width != 0 || c.Height != 0 {
		t.Errorf("geometry %dx%d guessed for %s", c.Width, c.Height, c.Screen)
	}
	if c.BusyPoll != time.Millisecond || c.FullEvery != 8 {
		t.Errorf("defaults not applied: %+v", c)
	}
}

func TestSaveNil(t *testing.T) {
	if err := Save(filepath.Join(t.TempDir(), "c.yaml"), nil); err == nil {
		t.Error("Save(nil) succeeded")
	}
}

func TestSaveKeepsInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pervasive.yaml")
	c := &Config{
		Screen:      epd.Screen{Size: 581, Film: epd.FilmK, Driver: '6'},
		Temperature: Temperature{Celsius: 20, Sensor: &Sensor{Bus: "1"}},
	}
	orig := *c
	sensor := *c.Temperature.Sensor

	if err := Save(path, c); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(*c, orig); diff != "" {
		t.Errorf("Save() changed its input (-got +want):\n%s", diff)
	}
	if diff := cmp.Diff(*c.Temperature.Sensor, sensor); diff != "" {
		t.Errorf("Save() changed the sensor (-got +want):\n%s", diff)
	}

	// The saved file is normalized.
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	want := DefaultConfig()
	want.Screen = c.Screen
	want.Width, want.Height = 720, 256
	want.Temperature = Temperature{Celsius: 20, Sensor: &Sensor{Bus: "1", Address: 0x76}}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("Load() difference (-got +want):\n%s", diff)
	}
}
