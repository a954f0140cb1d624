package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "server":
		return serverTemplate, nil
	case "client":
		return clientTemplate, nil
	case "watch":
		return watchTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

// Validate loads path as the given kind and reports the first problem.
func Validate(kind, path string) error {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "server":
		cfg := DefaultServerSettings()
		if err := LoadServerFile(path, &cfg); err != nil {
			return err
		}
		return ValidateServerSettings(cfg)
	case "client":
		cfg := DefaultClientSettings()
		return LoadClientFile(path, &cfg)
	case "watch":
		cfg := DefaultWatchSettings()
		return LoadWatchFile(path, &cfg)
	default:
		return fmt.Errorf("unknown config kind: %s", kind)
	}
}

const serverTemplate = `# leqserver
listen_host = ""
register = true
transport = "tcp"
alpha_percent = 10
x_percent = 200
on_conn_error = "exit"
backlog = 20
buffer_size = 255
receive_rate_limit = 0
metrics_addr = ""
log_level = "info"

[discovery]
broadcast_addr = "255.255.255.255"
port = 37823
local_addr = ""
address_policy = "first-non-loopback"
`

const clientTemplate = `# leqclient
dial_timeout = "5s"
log_level = "info"
metrics_addr = ""
`

const watchTemplate = `# leqwatch
port = 37823
metrics_addr = ""
log_level = "info"
`
