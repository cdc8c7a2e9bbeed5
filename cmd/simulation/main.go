// Flock simulator: runs every robot controller of a flock in lockstep inside
// an in-memory arena. Telemetry goes to an embedded monitor, and weight pushes
// to the monitor reset the arena and start the run.
// Use this for local testing when you don't have the e-puck hardware.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"RoboFlock/internal/flock"
	"RoboFlock/internal/model"
	"RoboFlock/internal/monitor"
	"RoboFlock/internal/sim"
	"RoboFlock/internal/util"
)

func main() {
	cfgPath := pflag.StringP("config", "c", "", "configuration file for the flock section (defaults when empty)")
	level := pflag.String("log-level", "info", "log level")
	ticks := pflag.Int("ticks", 0, "number of ticks to simulate, 0 runs until interrupted")
	realtime := pflag.Bool("realtime", false, "pace ticks at the configured tick period")
	localize := pflag.Int("localize-every", 1, "ticks between localizer broadcasts, 0 disables them")
	encoders := pflag.Bool("encoders", false, "integrate wheel encoders instead of trusting the localizer")
	addr := pflag.String("monitor", ":8080", "monitor listen address, empty disables it")
	dbPath := pflag.String("db", "", "telemetry store path, empty keeps no history")
	token := pflag.String("token", "", "bearer token required for weight pushes")
	autostart := pflag.Bool("start", false, "broadcast the configured weights at tick 0")
	pflag.Parse()

	logger, err := util.SetupLogger(*level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(*cfgPath, *ticks, *realtime, *localize, *encoders, *addr, *dbPath, *token, *autostart); err != nil {
		util.Error("[sim] %v", err)
		os.Exit(1)
	}
}

func run(cfgPath string, ticks int, realtime bool, localize int, encoders bool, addr, dbPath, token string, autostart bool) error {
	var fc model.FlockConfig
	if cfgPath != "" {
		cfg, err := model.LoadConfig(cfgPath)
		if err != nil {
			return err
		}
		fc = cfg.Flock
	}
	fc.ApplyDefaults()

	world, err := sim.NewWorld(sim.Options{Flock: fc, LocalizeEvery: localize})
	if err != nil {
		return err
	}
	settings, err := flock.SettingsFromConfig(fc)
	if err != nil {
		return err
	}
	settings.UseEncoders = encoders

	var mon *monitor.Server
	if addr != "" {
		var store *monitor.Store
		if dbPath != "" {
			if store, err = monitor.OpenStore(dbPath); err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
		}
		mon = monitor.NewServer(addr, store, monitor.PushFunc(func(p model.WeightPayload) error {
			if _, err := flock.DecodeWeights(p, settings.DefaultWeights); err != nil {
				return err
			}
			world.BroadcastWeights(p)
			return nil
		}))
		mon.Token = token
		go func() {
			if err := mon.Start(); err != nil {
				util.Error("[monitor] stopped: %v", err)
			}
		}()
		defer mon.Stop()
	}

	ctrls := make([]*flock.Controller, 0, world.Size())
	for i := 0; i < world.Size(); i++ {
		id, err := flock.ParseIdentity(world.Name(i), world.Size())
		if err != nil {
			return err
		}
		hw := world.Hardware(i)
		if mon != nil {
			hw.Telemetry = mon
		}
		c, err := flock.NewController(settings, id, hw)
		if err != nil {
			return err
		}
		ctrls = append(ctrls, c)
	}

	if autostart {
		w := fc.Weights
		world.BroadcastWeights(model.WeightUpdate{
			Cohesion:            w.Cohesion * 10,
			Separation:          w.Separation * 10,
			SeparationThreshold: w.SeparationThreshold,
			Iterations:          w.Iterations,
		}.Payload())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pace <-chan time.Time
	if realtime {
		t := time.NewTicker(settings.Tick)
		defer t.Stop()
		pace = t.C
	}

	util.Info("[sim] %d robots, tick %s", world.Size(), settings.Tick)
	for n := 0; ticks == 0 || n < ticks; n++ {
		if pace != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-pace:
			}
		}
		if err := world.Step(ctx, ctrls); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
	for i := 0; i < world.Size(); i++ {
		p := world.Pose(i)
		util.Info("[sim] %s final pose x=%.3f y=%.3f heading=%.3f", world.Name(i), p.X, p.Y, p.Heading)
	}
	return nil
}
