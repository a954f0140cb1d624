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

	"github.com/danmuck/leqctl/internal/client"
	"github.com/danmuck/leqctl/internal/logging"
	"github.com/danmuck/leqctl/internal/observability"
)

// exitInterrupted is the conventional status for a process ended by SIGINT.
const exitInterrupted = 130

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stderr))
}

func run(args []string, stdin io.Reader, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "leqclient: %v\n%s\n", err, usage)
		return 2
	}

	logging.ConfigureRuntime("leqclient")
	if opts.settings.LogLevel != "" && !logging.SetLevel(opts.settings.LogLevel) {
		log.Warn().Str("level", opts.settings.LogLevel).Msg("leqclient unknown log level, keeping default")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := stream(ctx, opts, stdin); err != nil {
		if ctx.Err() != nil {
			log.Info().Msg("leqclient interrupted")
			return exitInterrupted
		}
		log.Error().Err(err).Msg("leqclient exiting")
		return 1
	}
	return 0
}

func stream(ctx context.Context, opts options, stdin io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	if opts.settings.MetricsAddr != "" {
		g.Go(func() error {
			return observability.Serve(gctx, opts.settings.MetricsAddr)
		})
	}
	g.Go(func() error {
		defer cancel()
		_, err := client.NewSession(opts.session).Run(gctx, stdin)
		return err
	})
	return g.Wait()
}
