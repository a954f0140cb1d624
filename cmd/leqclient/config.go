package main

import (
	"errors"
	"fmt"
	"io"

	flag "github.com/spf13/pflag"

	"github.com/danmuck/leqctl/internal/client"
	"github.com/danmuck/leqctl/internal/config"
)

const usage = "usage: leqclient [flags] <host> <port>"

var errUsage = errors.New("usage error")

type options struct {
	settings config.ClientSettings
	session  client.Config
}

func parseArgs(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("leqclient", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, usage)
		fs.PrintDefaults()
	}

	configPath := fs.String("config", "", "TOML config file")
	dialTimeout := fs.Duration("dial-timeout", 0, "connection setup timeout (0 waits for the platform)")
	metricsAddr := fs.String("metrics-addr", "", "serve prometheus metrics on this address while streaming")
	logLevel := fs.String("log-level", "", "log level override")

	if err := fs.Parse(args); err != nil {
		return options{}, fmt.Errorf("%w: %w", errUsage, err)
	}
	if fs.NArg() != 2 {
		return options{}, fmt.Errorf("%w: expected host and port arguments", errUsage)
	}
	host := fs.Arg(0)
	if host == "" {
		return options{}, fmt.Errorf("%w: empty host", errUsage)
	}
	port, err := config.ParsePort(fs.Arg(1))
	if err != nil {
		return options{}, fmt.Errorf("%w: %w", errUsage, err)
	}

	settings := config.DefaultClientSettings()
	if *configPath != "" {
		if err := config.LoadClientFile(*configPath, &settings); err != nil {
			return options{}, fmt.Errorf("%w: %w", errUsage, err)
		}
	}
	if fs.Changed("dial-timeout") {
		settings.DialTimeout = *dialTimeout
	}
	if fs.Changed("metrics-addr") {
		settings.MetricsAddr = *metricsAddr
	}
	if fs.Changed("log-level") {
		settings.LogLevel = *logLevel
	}
	if settings.DialTimeout < 0 {
		return options{}, fmt.Errorf("%w: negative dial timeout %s", errUsage, settings.DialTimeout)
	}

	return options{
		settings: settings,
		session: client.Config{
			Host:        host,
			Port:        port,
			DialTimeout: settings.DialTimeout,
		},
	}, nil
}

