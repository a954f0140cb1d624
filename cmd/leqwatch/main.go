package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/danmuck/leqctl/internal/config"
	"github.com/danmuck/leqctl/internal/discovery"
	"github.com/danmuck/leqctl/internal/logging"
	"github.com/danmuck/leqctl/internal/observability"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	settings, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "leqwatch: %v\n%s\n", err, usage)
		return 2
	}

	logging.ConfigureRuntime("leqwatch")
	if settings.LogLevel != "" && !logging.SetLevel(settings.LogLevel) {
		log.Warn().Str("level", settings.LogLevel).Msg("leqwatch unknown log level, keeping default")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mon := discovery.NewMonitor(nil, nil)
	if err := watch(ctx, settings, mon); err != nil {
		log.Error().Err(err).Msg("leqwatch exiting")
		return 1
	}
	summarize(mon.Registry())
	return 0
}

func watch(ctx context.Context, settings config.WatchSettings, mon *discovery.Monitor) error {
	g, gctx := errgroup.WithContext(ctx)
	if settings.MetricsAddr != "" {
		g.Go(func() error {
			return observability.Serve(gctx, settings.MetricsAddr)
		})
	}
	g.Go(func() error {
		return mon.ListenAndServe(gctx, settings.Port)
	})
	return g.Wait()
}

// summarize logs the services seen during this run in id order.
func summarize(reg *discovery.Registry) {
	entries := reg.Entries()
	log.Info().Int("services", len(entries)).Msg("leqwatch stopped")
	for _, e := range entries {
		log.Info().
			Int("id", e.ID).
			Str("registration", e.Registration.String()).
			Str("from", e.Source.String()).
			Time("first_seen", e.FirstSeen).
			Msg("leqwatch service")
	}
}
