package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/danmuck/leqctl/internal/discovery"
	"github.com/danmuck/leqctl/internal/logging"
	"github.com/danmuck/leqctl/internal/observability"
	"github.com/danmuck/leqctl/internal/protocol"
	"github.com/danmuck/leqctl/internal/server"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "leqserver: %v\n%s\n", err, usage)
		return 2
	}

	logging.ConfigureRuntime("leqserver")
	if opts.settings.LogLevel != "" && !logging.SetLevel(opts.settings.LogLevel) {
		log.Warn().Str("level", opts.settings.LogLevel).Msg("leqserver unknown log level, keeping default")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, opts, stdout); err != nil {
		log.Error().Err(err).Msg("leqserver exiting")
		return 1
	}
	return 0
}

// serve binds the listener, broadcasts one registration, then relays
// connections until ctx is done or a fatal error occurs.
func serve(ctx context.Context, opts options, stdout io.Writer) error {
	s := opts.settings
	srv, err := server.New(s.Server, stdout)
	if err != nil {
		return err
	}
	ln, err := srv.Listen(ctx)
	if err != nil {
		return err
	}

	if s.Register {
		reg := discovery.NewRegistrar(s.Discovery)
		params := discovery.Params{
			Protocol:     s.Transport,
			Port:         boundPort(ln, opts.port),
			AlphaPercent: s.AlphaPercent,
			XPercent:     s.XPercent,
		}
		if _, err := reg.Register(ctx, params); err != nil {
			_ = ln.Close()
			return err
		}
	} else {
		log.Info().Str("transport", protocol.TransportName(s.Transport)).Msg("leqserver registration disabled")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	if s.MetricsAddr != "" {
		g.Go(func() error {
			return observability.Serve(gctx, s.MetricsAddr)
		})
	}
	g.Go(func() error {
		defer cancel()
		return srv.Serve(gctx, ln)
	})
	return g.Wait()
}

// boundPort reports the port the listener actually holds, which differs from
// the requested one when port 0 was asked for.
func boundPort(ln net.Listener, requested uint16) uint16 {
	if addr, ok := ln.Addr().(*net.TCPAddr); ok && addr.Port > 0 {
		return uint16(addr.Port)
	}
	return requested
}
