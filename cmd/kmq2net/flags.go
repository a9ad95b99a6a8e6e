package main

import (
	"fmt"
	"log"
	"strings"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"

	"github.com/NeonKnightOA/KMQuake2/internal/config"
	"github.com/NeonKnightOA/KMQuake2/internal/protocol"
	"github.com/NeonKnightOA/KMQuake2/internal/telemetry"
)

type globalFlags struct {
	showNet   int
	features  string
	noDelta   bool
	logSinks  string
	debugAddr string
	profile   string
}

func (f *globalFlags) register(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.IntVar(&f.showNet, "shownet", -1, "trace level: 2 frame headers, 3 every entity merge step")
	pf.StringVar(&f.features, "features", "", "comma separated protocol features, overrides KMQ2_FEATURES")
	pf.BoolVar(&f.noDelta, "nodelta", false, "always request full frames")
	pf.StringVar(&f.logSinks, "log-sinks", "", "comma separated log sinks: console, json, zerolog")
	pf.StringVar(&f.debugAddr, "debug-addr", "", "serve metrics and frame state on this address")
	pf.StringVar(&f.profile, "profile", "", "write a cpu or mem profile to the working directory")
}

// load layers the flags over the environment.
func (f *globalFlags) load(logger telemetry.Logger) (config.Config, error) {
	cfg := config.FromEnv(logger)
	if f.showNet >= 0 {
		cfg.ShowNet = f.showNet
	}
	if f.features != "" {
		features, err := protocol.ParseFeatures(f.features)
		if err != nil {
			return cfg, fmt.Errorf("--features: %w", err)
		}
		cfg.Features = features
	}
	if f.noDelta {
		cfg.NoDelta = true
	}
	if f.logSinks != "" {
		var sinks []string
		for _, name := range strings.Split(f.logSinks, ",") {
			if name = strings.TrimSpace(name); name != "" {
				sinks = append(sinks, name)
			}
		}
		cfg.Logging.EnabledSinks = sinks
	}
	if f.debugAddr != "" {
		cfg.DebugAddr = f.debugAddr
	}
	return cfg, nil
}

// startProfile returns the stop function of the requested profile.
func (f *globalFlags) startProfile() (func(), error) {
	var mode func(*profile.Profile)
	switch f.profile {
	case "":
		return func() {}, nil
	case "cpu":
		mode = profile.CPUProfile
	case "mem":
		mode = profile.MemProfileAllocs
	default:
		return nil, fmt.Errorf("--profile must be cpu or mem, got %q", f.profile)
	}
	p := profile.Start(mode, profile.ProfilePath("."), profile.NoShutdownHook, profile.Quiet)
	return p.Stop, nil
}

func newLogger() telemetry.Logger {
	return telemetry.WrapLogger(log.New(log.Writer(), "[kmq2net] ", log.LstdFlags))
}
