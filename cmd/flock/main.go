// Package main is the entry point of a RoboFlock host.
// It initializes the logger, loads the configuration, constructs the monitor
// and every robot agent configured for this host and runs them until
// interrupted.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"RoboFlock/internal/core"
	"RoboFlock/internal/util"
)

func main() {
	cfgPath := pflag.StringP("config", "c", "configs/config.yml", "path to configuration file")
	level := pflag.String("log-level", "", "log level override (debug/info/warn/error)")
	pflag.Parse()

	lvl := *level
	if lvl == "" {
		lvl = "info"
	}
	logger, err := util.SetupLogger(lvl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	sys, err := core.NewSystem(*cfgPath)
	if err != nil {
		util.Error("[main] failed to create system: %v", err)
		os.Exit(1)
	}
	if *level == "" && sys.Config().Global.LogLevel != lvl {
		if l, err := util.SetupLogger(sys.Config().Global.LogLevel); err != nil {
			util.Error("[main] %v", err)
		} else {
			logger = l
		}
	}

	util.Info("[main] using config %s, %d robots on this host", *cfgPath, len(sys.Robots))
	if err := sys.StartAll(); err != nil {
		util.Error("[main] failed to start system: %v", err)
		os.Exit(1)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	util.Info("[main] shutting down")
	sys.StopAll()
	util.Info("[main] stopped cleanly")
}
