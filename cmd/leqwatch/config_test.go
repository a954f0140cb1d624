package main

import (
	"errors"
	"io"
	"testing"

	"github.com/danmuck/leqctl/internal/protocol"
	testlog "github.com/danmuck/leqctl/internal/testutil/testlog"
)

func TestParseArgs(t *testing.T) {
	testlog.Start(t)

	settings, err := parseArgs(nil, io.Discard)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if settings.Port != protocol.DiscoveryPort || settings.MetricsAddr != "" {
		t.Fatalf("unexpected defaults: %+v", settings)
	}

	settings, err = parseArgs([]string{"--config", "ex.config.toml", "--port", "40000"}, io.Discard)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if settings.Port != 40000 {
		t.Fatalf("flag should override port, got %d", settings.Port)
	}
	if settings.MetricsAddr != "127.0.0.1:9464" {
		t.Fatalf("file metrics addr lost: %q", settings.MetricsAddr)
	}
}

func TestParseArgsUsageErrors(t *testing.T) {
	testlog.Start(t)

	for name, args := range map[string][]string{
		"positional": {"37823"},
		"bad port":   {"--port", "x"},
		"unknown":    {"--interval", "1s"},
	} {
		if _, err := parseArgs(args, io.Discard); !errors.Is(err, errUsage) {
			t.Fatalf("%s: expected usage error, got %v", name, err)
		}
	}
}
