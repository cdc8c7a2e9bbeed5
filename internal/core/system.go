// Package core contains the runtime orchestration layer of RoboFlock.
// It defines the Robot agents, the telemetry Forwarder, the weight
// coordinators and the System that manages their lifecycle.
package core

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"RoboFlock/internal/flock"
	"RoboFlock/internal/model"
	"RoboFlock/internal/monitor"
	"RoboFlock/internal/parser"
	"RoboFlock/pkg/lorapkg"
)

// System manages the lifecycle of the monitor and every robot configured for
// this host. It loads configuration from a YAML file and constructs the
// components accordingly.
type System struct {
	cfgPath  string
	cfg      *model.Config
	settings flock.Settings

	Monitor    *monitor.Server
	store      *monitor.Store
	Robots     []*Robot
	forwarders []*Forwarder

	started   bool
	startLock sync.Mutex
}

// NewSystem reads the YAML configuration at cfgPath and creates a System.
// Robots whose serial links cannot be opened are logged and skipped.
func NewSystem(cfgPath string) (*System, error) {
	cfg, err := model.LoadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	settings, err := flock.SettingsFromConfig(cfg.Flock)
	if err != nil {
		return nil, err
	}
	s := &System{cfgPath: cfgPath, cfg: cfg, settings: settings}

	var lora *lorapkg.LoRaWANContext
	if cfg.Coordinator.DevAddr != "" {
		ctx, err := lorapkg.ContextFromConfig(cfg.Coordinator)
		if err != nil {
			return nil, fmt.Errorf("coordinator session: %w", err)
		}
		lora = &ctx
	}

	if cfg.Monitor.Addr != "" {
		if cfg.Monitor.DBPath != "" {
			s.store, err = monitor.OpenStore(cfg.Monitor.DBPath)
			if err != nil {
				return nil, err
			}
		}
		s.Monitor = monitor.NewServer(cfg.Monitor.Addr, s.store, s)
		s.Monitor.Token = cfg.Monitor.Token
	}

	for _, rc := range cfg.Robots {
		sink, err := s.sinkFor(rc)
		if err != nil {
			s.abort()
			return nil, err
		}
		r, err := NewRobot(settings, rc, lora, sink)
		if err != nil {
			zap.S().Errorf("[system] skipping robot %s: %v", rc.Name, err)
			continue
		}
		s.Robots = append(s.Robots, r)
	}
	return s, nil
}

func (s *System) sinkFor(rc model.RobotConfig) (flock.TelemetrySink, error) {
	if rc.TelemetryURL != "" {
		p, err := parser.New(s.cfg.Global.WireFormat)
		if err != nil {
			return nil, err
		}
		f := NewForwarder(rc.TelemetryURL, p, 0)
		s.forwarders = append(s.forwarders, f)
		return f, nil
	}
	if s.Monitor != nil {
		return s.Monitor, nil
	}
	return nil, nil
}

// Config returns the loaded configuration.
func (s *System) Config() *model.Config { return s.cfg }

// PushWeights hands p to every robot of this host. It implements
// monitor.WeightPusher.
func (s *System) PushWeights(p model.WeightPayload) error {
	if _, err := flock.DecodeWeights(p, s.settings.DefaultWeights); err != nil {
		return err
	}
	if len(s.Robots) == 0 {
		return errors.New("no robots running")
	}
	for _, r := range s.Robots {
		r.PushWeights(p)
	}
	return nil
}

// StartAll starts the monitor, the forwarders and every robot.
func (s *System) StartAll() error {
	s.startLock.Lock()
	defer s.startLock.Unlock()
	if s.started {
		return nil
	}
	if s.Monitor != nil {
		go func() {
			if err := s.Monitor.Start(); err != nil {
				zap.S().Errorf("[monitor] stopped: %v", err)
			}
		}()
	}
	for _, f := range s.forwarders {
		f.Start()
	}
	for _, r := range s.Robots {
		if err := r.Start(); err != nil {
			zap.S().Errorf("[robot %s] start err: %v", r.Name, err)
		}
	}
	s.started = true
	return nil
}

// StopAll stops every running component and releases the store.
func (s *System) StopAll() {
	s.startLock.Lock()
	defer s.startLock.Unlock()
	if !s.started {
		return
	}
	for _, r := range s.Robots {
		r.Stop()
	}
	for _, f := range s.forwarders {
		f.Stop()
	}
	if s.Monitor != nil {
		s.Monitor.Stop()
	}
	s.Close()
	s.started = false
}

// abort releases every component built by a NewSystem that then failed.
func (s *System) abort() {
	for _, r := range s.Robots {
		r.Stop()
	}
	s.Robots = nil
	for _, f := range s.forwarders {
		f.Stop()
	}
	s.forwarders = nil
	if s.Monitor != nil {
		s.Monitor.Stop()
	}
	s.Close()
}

// Close releases the telemetry store.
func (s *System) Close() {
	if s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		zap.S().Warnf("[system] close store: %v", err)
	}
	s.store = nil
}
