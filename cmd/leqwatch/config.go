package main

import (
	"errors"
	"fmt"
	"io"

	flag "github.com/spf13/pflag"

	"github.com/danmuck/leqctl/internal/config"
)

const usage = "usage: leqwatch [flags]"

var errUsage = errors.New("usage error")

func parseArgs(args []string, stderr io.Writer) (config.WatchSettings, error) {
	fs := flag.NewFlagSet("leqwatch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, usage)
		fs.PrintDefaults()
	}

	configPath := fs.String("config", "", "TOML config file")
	port := fs.String("port", "", "discovery port to listen on (default 37823)")
	metricsAddr := fs.String("metrics-addr", "", "serve prometheus metrics on this address")
	logLevel := fs.String("log-level", "", "log level override")

	if err := fs.Parse(args); err != nil {
		return config.WatchSettings{}, fmt.Errorf("%w: %w", errUsage, err)
	}
	if fs.NArg() != 0 {
		return config.WatchSettings{}, fmt.Errorf("%w: unexpected arguments %v", errUsage, fs.Args())
	}

	settings := config.DefaultWatchSettings()
	if *configPath != "" {
		if err := config.LoadWatchFile(*configPath, &settings); err != nil {
			return config.WatchSettings{}, fmt.Errorf("%w: %w", errUsage, err)
		}
	}
	if fs.Changed("port") {
		p, err := config.ParsePort(*port)
		if err != nil {
			return config.WatchSettings{}, fmt.Errorf("%w: %w", errUsage, err)
		}
		settings.Port = p
	}
	if fs.Changed("metrics-addr") {
		settings.MetricsAddr = *metricsAddr
	}
	if fs.Changed("log-level") {
		settings.LogLevel = *logLevel
	}
	return settings, nil
}
