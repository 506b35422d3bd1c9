// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// pervasive drives a Pervasive Displays medium size wide panel.
//
// Usage:
//
//	pervasive [-config path] [-screen 581-KS-06] [-dry-run] <command>
//
// Commands:
//
//	otp [-o file]                    read and dump the calibration
//	show [-image path]               normal update
//	fast -image next -previous prev  fast update
//	run                              refresh on the configured schedule
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/GermanBionicSystems/pervasive/common"
	"github.com/GermanBionicSystems/pervasive/epd"
	"github.com/GermanBionicSystems/pervasive/internal/config"
	"github.com/GermanBionicSystems/pervasive/internal/log"
	"github.com/GermanBionicSystems/pervasive/trace"
	"github.com/GermanBionicSystems/pervasive/widemedium"
	"github.com/robfig/cron/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/bmxx80"
	"periph.io/x/host/v3"
)

// panel is an opened panel with what it depends on.
type panel struct {
	dev     *widemedium.Dev
	cfg     *config.Config
	sensor  *bmxx80.Dev
	closers []func() error
}

func (p *panel) Close() error {
	var err error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if e := p.closers[i](); err == nil {
			err = e
		}
	}
	return err
}

// open returns the panel described by cfg, calibrated.
func open(cfg *config.Config) (*panel, error) {
	p := &panel{cfg: cfg}
	var bus epd.Bus
	if cfg.DryRun {
		otp, err := loadCalibration(cfg.Calibration)
		if err != nil {
			return nil, err
		}
		t, err := trace.New(&trace.Opts{
			OTP:          otp,
			PreviewIndex: widemedium.NextFrameIndex,
			Width:        cfg.Width,
			Height:       cfg.Height,
			Scale:        max(1, cfg.Width/160),
		})
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, t.Halt)
		bus = t
	} else {
		if _, err := host.Init(); err != nil {
			return nil, err
		}
		l, err := openLink(cfg, p)
		if err != nil {
			p.Close()
			return nil, err
		}
		bus = l
		if s := cfg.Temperature.Sensor; s != nil {
			if err := p.openSensor(s); err != nil {
				// The configured temperature is used instead.
				log.Error("failed to open the temperature sensor", err, "bus", s.Bus, "address", fmt.Sprintf("%#x", s.Address))
			}
		}
	}

	dev, err := widemedium.New(bus, cfg.Screen)
	if err != nil {
		p.Close()
		return nil, err
	}
	p.dev = dev
	p.closers = append(p.closers, dev.Halt)
	log.Info("panel", "screen", cfg.Screen, "driver", dev.Reference(), "bus", bus)
	if err := dev.Begin(); err != nil {
		var ce *widemedium.CalibrationError
		if errors.As(err, &ce) {
			log.Critical("wrong panel, refusing to drive it", err,
				"screen", cfg.Screen,
				"got", fmt.Sprintf("0x%02x", ce.Got),
				"want", fmt.Sprintf("0x%02x", ce.Want))
		}
		p.Close()
		return nil, err
	}
	t, _ := dev.Calibration()
	log.Debug("calibration", "crc8", fmt.Sprintf("0x%02x", common.CRC8(t[:])))
	return p, nil
}

func openLink(cfg *config.Config, p *panel) (*epd.Link, error) {
	port, err := spireg.Open(cfg.SPI)
	if err != nil {
		return nil, err
	}
	p.closers = append(p.closers, port.Close)

	pins := &epd.Pins{}
	for _, x := range []struct {
		name string
		set  func(gpio.PinIO)
	}{
		{cfg.Pins.Reset, func(g gpio.PinIO) { pins.Reset = g }},
		{cfg.Pins.DC, func(g gpio.PinIO) { pins.DC = g }},
		{cfg.Pins.CS, func(g gpio.PinIO) { pins.CS = g }},
		{cfg.Pins.Busy, func(g gpio.PinIO) { pins.Busy = g }},
		{cfg.Pins.SCK, func(g gpio.PinIO) { pins.SCK = g }},
		{cfg.Pins.SDA, func(g gpio.PinIO) { pins.SDA = g }},
	} {
		g := gpioreg.ByName(x.name)
		if g == nil {
			return nil, fmt.Errorf("unknown pin %q", x.name)
		}
		x.set(g)
	}
	l, err := epd.New(port, pins, &epd.Opts{
		BusyPoll:    cfg.BusyPoll,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return nil, err
	}
	p.closers = append(p.closers, l.Halt)
	return l, nil
}

func (p *panel) openSensor(s *config.Sensor) error {
	b, err := i2creg.Open(s.Bus)
	if err != nil {
		return err
	}
	d, err := bmxx80.NewI2C(b, s.Address, &bmxx80.DefaultOpts)
	if err != nil {
		b.Close()
		return err
	}
	p.closers = append(p.closers, b.Close, d.Halt)
	p.sensor = d
	return nil
}

// senseTemperature updates the ambient temperature of the panel from the
// sensor, if any.
func (p *panel) senseTemperature() {
	celsius := p.cfg.Temperature.Celsius
	if p.sensor != nil {
		var e physic.Env
		if err := p.sensor.Sense(&e); err != nil {
			log.Error("failed to read the temperature", err, "fallback", celsius)
		} else {
			celsius = int((e.Temperature - physic.ZeroCelsius) / physic.Celsius)
		}
	}
	p.dev.SetTemperature(celsius)
	log.Debug("temperature", "celsius", celsius)
}

func loadCalibration(path string) ([]byte, error) {
	if path == "" {
		return nil, errors.New("a dry run needs a calibration file, see \"otp -o\"")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(b) != widemedium.TableSize {
		return nil, fmt.Errorf("%s: %d bytes, want %d", path, len(b), widemedium.TableSize)
	}
	return b, nil
}

func cmdOTP(p *panel, args []string) error {
	fs := flag.NewFlagSet("otp", flag.ExitOnError)
	out := fs.String("o", "", "write the raw calibration to this file")
	fs.Parse(args)

	t, err := p.dev.Calibration()
	if err != nil {
		return err
	}
	fmt.Printf("%s\n%s", p.dev.Reference(), hex.Dump(t[:]))
	fmt.Printf("crc8 0x%02x\n", common.CRC8(t[:]))
	if *out != "" {
		if err := os.WriteFile(*out, t[:], 0o644); err != nil {
			return err
		}
		log.Info("calibration saved", "path", *out)
	}
	return nil
}

func cmdShow(p *panel, args []string) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	path := fs.String("image", p.cfg.Image, "PNG, JPEG or raw .bin plane; a test card when empty")
	fs.Parse(args)

	frame, err := loadFrame(*path, p.cfg.Width, p.cfg.Height, p.dev.Reference())
	if err != nil {
		return err
	}
	p.senseTemperature()
	return p.dev.UpdateNormal(frame)
}

func cmdFast(p *panel, args []string) error {
	fs := flag.NewFlagSet("fast", flag.ExitOnError)
	next := fs.String("image", "", "image to show")
	previous := fs.String("previous", "", "image currently shown")
	fs.Parse(args)
	if *next == "" || *previous == "" {
		return errors.New("fast: -image and -previous are required")
	}

	n, err := loadFrame(*next, p.cfg.Width, p.cfg.Height, "")
	if err != nil {
		return err
	}
	prev, err := loadFrame(*previous, p.cfg.Width, p.cfg.Height, "")
	if err != nil {
		return err
	}
	p.senseTemperature()
	return p.dev.UpdateFast(n, prev)
}

// refresher shows the configured image on each tick.
type refresher struct {
	p *panel

	mu       sync.Mutex
	ticks    int
	previous []byte
}

func (r *refresher) tick() {
	r.mu.Lock()
	defer r.mu.Unlock()

	frame, err := loadFrame(r.p.cfg.Image, r.p.cfg.Width, r.p.cfg.Height, r.p.dev.Reference())
	if err != nil {
		log.Error("failed to load the frame", err, "image", r.p.cfg.Image)
		return
	}
	r.p.senseTemperature()
	mode := epd.Fast
	if r.previous == nil || r.ticks%r.p.cfg.FullEvery == 0 {
		mode = epd.Normal
	}
	if mode == epd.Normal {
		err = r.p.dev.UpdateNormal(frame)
	} else {
		err = r.p.dev.UpdateFast(frame, r.previous)
	}
	r.ticks++
	if err != nil {
		// The panel content is unknown; the next update is a normal one.
		r.previous = nil
		log.Error("update failed", err, "mode", mode)
		return
	}
	r.previous = frame
	log.Info("updated", "mode", mode, "tick", r.ticks)
}

func cmdRun(ctx context.Context, p *panel) error {
	r := &refresher{p: p}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(p.cfg.RefreshCron, r.tick); err != nil {
		return err
	}
	r.tick()
	c.Start()
	log.Info("running", "refresh", p.cfg.RefreshCron, "full_every", p.cfg.FullEvery)
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func mainImpl() error {
	configPath := flag.String("config", "/etc/pervasive/config.yaml", "path to the configuration file")
	var screen epd.Screen
	flag.Var(&screen, "screen", "panel, overrides the configuration, e.g. 581-KS-06")
	dryRun := flag.Bool("dry-run", false, "trace on the console instead of driving the panel")
	var level log.Level
	flag.Var(&level, "log", "log level, overrides the configuration")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: pervasive [flags] otp|show|fast|run [args]\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		return errors.New("missing command")
	}
	args := flag.Args()
	switch args[0] {
	case "otp", "show", "fast", "run":
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if screen != (epd.Screen{}) && screen != cfg.Screen {
		cfg.Screen = screen
		cfg.Width, cfg.Height = 0, 0
		cfg.Normalize()
	}
	if *dryRun {
		cfg.DryRun = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	l, _ := log.ParseLevel(cfg.LogLevel)
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "log" {
			l = level
		}
	})
	log.SetLevel(l)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	p, err := open(cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	switch args[0] {
	case "otp":
		return cmdOTP(p, args[1:])
	case "show":
		return cmdShow(p, args[1:])
	case "fast":
		return cmdFast(p, args[1:])
	case "run":
		return cmdRun(ctx, p)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "pervasive: %s.\n", err)
		os.Exit(1)
	}
}
