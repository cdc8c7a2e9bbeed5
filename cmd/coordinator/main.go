// Coordinator program: pushes one set of rule weights to the flock, either as
// a LoRa broadcast from the coordinator radio or through a monitor's
// /api/weights endpoint.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"RoboFlock/internal/core"
	"RoboFlock/internal/device"
	"RoboFlock/internal/model"
	"RoboFlock/internal/util"
	"RoboFlock/pkg/lorapkg"
)

func main() {
	cfgPath := pflag.StringP("config", "c", "configs/config.yml", "path to configuration file")
	via := pflag.String("via", "radio", "delivery path: radio or http")
	url := pflag.String("url", "http://127.0.0.1:8080", "monitor base URL for --via http")
	token := pflag.String("token", "", "bearer token for --via http, defaults to monitor.token")
	cohesion := pflag.Float64("cohesion", 0.6, "raw cohesion weight, robots apply 1/10")
	separation := pflag.Float64("separation", 0.02, "raw separation weight, robots apply 1/10")
	threshold := pflag.Float64("threshold", 0.15, "separation threshold [m]")
	iterations := pflag.Int("iterations", 1000, "number of ticks to run")
	pflag.Parse()

	logger, err := util.SetupLogger("info")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := model.LoadConfig(*cfgPath)
	if err != nil {
		util.Error("[coordinator] %v", err)
		os.Exit(1)
	}
	u := model.WeightUpdate{
		Cohesion:            *cohesion,
		Separation:          *separation,
		SeparationThreshold: *threshold,
		Iterations:          *iterations,
	}

	switch *via {
	case "http":
		tok := *token
		if tok == "" {
			tok = cfg.Monitor.Token
		}
		err = core.NewHTTPCoordinator(*url, tok).Push(u)
	case "radio":
		err = pushRadio(cfg.Coordinator, u)
	default:
		err = fmt.Errorf("unknown delivery path %q", *via)
	}
	if err != nil {
		util.Error("[coordinator] push failed: %v", err)
		os.Exit(1)
	}
	util.Info("[coordinator] weights delivered via %s", *via)
}

func pushRadio(cc model.CoordinatorConfig, u model.WeightUpdate) error {
	if cc.RadioDev == "" {
		return fmt.Errorf("coordinator.radio_device is not configured")
	}
	var session *lorapkg.LoRaWANContext
	if cc.DevAddr != "" {
		ctx, err := lorapkg.ContextFromConfig(cc)
		if err != nil {
			return err
		}
		session = &ctx
	}
	dev, err := device.NewSerialDevice(cc.RadioDev, cc.RadioBaud)
	if err != nil {
		return err
	}
	c := core.NewRadioCoordinator(dev, session)
	defer func() {
		if cerr := c.Close(); cerr != nil {
			util.Error("[coordinator] close radio: %v", cerr)
		}
	}()
	return c.PushWeights(u.Payload())
}
