package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"

	"github.com/danmuck/leqctl/internal/config"
	"github.com/danmuck/leqctl/internal/logging"
)

func defaultPath(kind string) (string, error) {
	switch kind {
	case "server":
		return "cmd/leqserver/config.toml", nil
	case "client":
		return "cmd/leqclient/config.toml", nil
	case "watch":
		return "cmd/leqwatch/config.toml", nil
	default:
		return "", fmt.Errorf("unknown kind: %s", kind)
	}
}

func main() {
	kind := flag.String("kind", "server", "config kind: server|client|watch")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to per-kind cmd path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	logging.ConfigureRuntime("configgen")

	if *validate {
		path := *input
		if path == "" {
			p, err := defaultPath(*kind)
			if err != nil {
				log.Fatal().Err(err).Msg("configgen")
			}
			path = p
		}
		if err := config.Validate(*kind, path); err != nil {
			log.Error().Err(err).Str("path", path).Msg("configgen validate failed")
			os.Exit(1)
		}
		log.Info().Str("kind", *kind).Str("path", path).Msg("configgen validated")
		return
	}

	target := *output
	if target == "" {
		p, err := defaultPath(*kind)
		if err != nil {
			log.Fatal().Err(err).Msg("configgen")
		}
		target = p
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal().Err(err).Msg("configgen")
	}
	log.Info().Str("kind", *kind).Str("path", target).Msg("configgen wrote template")
}
