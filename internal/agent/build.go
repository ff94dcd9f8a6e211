package agent

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/zulandar/benchyard/internal/config"
	"github.com/zulandar/benchyard/internal/console"
	"github.com/zulandar/benchyard/internal/lock"
	"github.com/zulandar/benchyard/internal/media"
	"github.com/zulandar/benchyard/internal/notify"
	"github.com/zulandar/benchyard/internal/power"
	"github.com/zulandar/benchyard/internal/usb"
	"gorm.io/gorm"
)

// Options carries the pieces FromConfig does not build itself.
type Options struct {
	DB      *gorm.DB
	Console console.Channel
	Log     zerolog.Logger
	// Monitors overrides the monitors built from the notify section.
	Monitors []notify.Monitor
}

// FromConfig builds the backends named in cfg and returns an Agent over
// them. Sections without a variant are left unconfigured.
func FromConfig(cfg *config.Config, opts Options) (*Agent, error) {
	a := &Agent{
		Board:       cfg.Board,
		Hotplug:     cfg.SDMux.Hotplug,
		Console:     opts.Console,
		DB:          opts.DB,
		Scripts:     cfg.Scripts,
		Builds:      cfg.Builds,
		WaitTimeout: cfg.Boot.Timeout,
		Log:         opts.Log,
		Locker: lock.New(lock.Opts{
			DB:     opts.DB,
			Board:  cfg.Board,
			Expiry: cfg.Lock.Expiry,
		}),
	}

	if cfg.Power.Variant != "" {
		p, err := power.New(cfg.Power.Variant, cfg.Power.Settings)
		if err != nil {
			return nil, fmt.Errorf("agent: power: %w", err)
		}
		a.Power = p
	}
	if cfg.SDMux.Variant != "" {
		m, err := media.New(cfg.SDMux.Variant, cfg.SDMux.Settings)
		if err != nil {
			return nil, fmt.Errorf("agent: sdmux: %w", err)
		}
		a.Mux = m
	}
	var ports []usb.Port
	for i, pc := range cfg.USB {
		sw, err := usb.New(pc.Variant, pc.Settings)
		if err != nil {
			return nil, fmt.Errorf("agent: usb[%d]: %w", i, err)
		}
		ports = append(ports, usb.Port{Class: pc.Class, Switch: sw})
	}
	a.USB = usb.NewHub(ports...)

	a.Monitors = opts.Monitors
	if a.Monitors == nil {
		monitors, err := notify.FromConfig(cfg.Notify)
		if err != nil {
			return nil, fmt.Errorf("agent: %w", err)
		}
		a.Monitors = monitors
	}
	return a, nil
}
