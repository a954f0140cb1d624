package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/leqctl/internal/discovery"
	"github.com/danmuck/leqctl/internal/protocol"
	"github.com/danmuck/leqctl/internal/server"
)

var ErrInvalidPort = errors.New("config: invalid port number")

// ParsePort accepts a non-empty string of ASCII digits naming a port.
func ParsePort(raw string) (uint16, error) {
	if raw == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidPort)
	}
	value := 0
	for _, c := range raw {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%w: %s", ErrInvalidPort, raw)
		}
		value = value*10 + int(c-'0')
		if value > 65535 {
			return 0, fmt.Errorf("%w: %s", ErrInvalidPort, raw)
		}
	}
	return uint16(value), nil
}

// ServerSettings is the resolved leqserver configuration.
type ServerSettings struct {
	ListenHost   string
	Register     bool
	Transport    uint16
	AlphaPercent uint16
	XPercent     uint16
	Discovery    discovery.Config
	Server       server.Config
	MetricsAddr  string
	LogLevel     string
}

// DefaultServerSettings registers a TCP service with alpha=10% and x=200%.
func DefaultServerSettings() ServerSettings {
	return ServerSettings{
		Register:     true,
		Transport:    protocol.ProtocolTCP,
		AlphaPercent: 10,
		XPercent:     200,
		Discovery:    discovery.DefaultConfig(),
		Server:       server.DefaultConfig(),
	}
}

type ClientSettings struct {
	DialTimeout time.Duration
	LogLevel    string
	MetricsAddr string
}

func DefaultClientSettings() ClientSettings {
	return ClientSettings{}
}

type WatchSettings struct {
	Port        uint16
	MetricsAddr string
	LogLevel    string
}

func DefaultWatchSettings() WatchSettings {
	return WatchSettings{Port: protocol.DiscoveryPort}
}

type discoveryFile struct {
	BroadcastAddr string `toml:"broadcast_addr"`
	Port          int    `toml:"port"`
	LocalAddr     string `toml:"local_addr"`
	AddressPolicy string `toml:"address_policy"`
}

type serverFile struct {
	ListenHost       string        `toml:"listen_host"`
	Register         bool          `toml:"register"`
	Transport        string        `toml:"transport"`
	AlphaPercent     int           `toml:"alpha_percent"`
	XPercent         int           `toml:"x_percent"`
	OnConnError      string        `toml:"on_conn_error"`
	Backlog          int           `toml:"backlog"`
	BufferSize       int           `toml:"buffer_size"`
	ReceiveRateLimit int           `toml:"receive_rate_limit"`
	MetricsAddr      string        `toml:"metrics_addr"`
	LogLevel         string        `toml:"log_level"`
	Discovery        discoveryFile `toml:"discovery"`
}

type clientFile struct {
	DialTimeout string `toml:"dial_timeout"`
	LogLevel    string `toml:"log_level"`
	MetricsAddr string `toml:"metrics_addr"`
}

type watchFile struct {
	Port        int    `toml:"port"`
	MetricsAddr string `toml:"metrics_addr"`
	LogLevel    string `toml:"log_level"`
}

// LoadServerFile applies the keys present in path onto cfg.
func LoadServerFile(path string, cfg *ServerSettings) error {
	var raw serverFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load server config (%s): %w", path, err)
	}
	if err := checkUndecoded(meta); err != nil {
		return fmt.Errorf("load server config (%s): %w", path, err)
	}

	if meta.IsDefined("listen_host") {
		cfg.ListenHost = strings.TrimSpace(raw.ListenHost)
	}
	if meta.IsDefined("register") {
		cfg.Register = raw.Register
	}
	if meta.IsDefined("transport") {
		code, err := protocol.ParseTransport(raw.Transport)
		if err != nil {
			return fmt.Errorf("parse transport: %w", err)
		}
		cfg.Transport = code
	}
	if meta.IsDefined("alpha_percent") {
		v, err := uint16Field("alpha_percent", raw.AlphaPercent)
		if err != nil {
			return err
		}
		cfg.AlphaPercent = v
	}
	if meta.IsDefined("x_percent") {
		v, err := uint16Field("x_percent", raw.XPercent)
		if err != nil {
			return err
		}
		cfg.XPercent = v
	}
	if meta.IsDefined("on_conn_error") {
		p, err := server.ParseConnErrorPolicy(raw.OnConnError)
		if err != nil {
			return err
		}
		cfg.Server.OnConnError = p
	}
	if meta.IsDefined("backlog") {
		cfg.Server.Backlog = raw.Backlog
	}
	if meta.IsDefined("buffer_size") {
		cfg.Server.BufferSize = raw.BufferSize
	}
	if meta.IsDefined("receive_rate_limit") {
		cfg.Server.ReceiveRateLimit = raw.ReceiveRateLimit
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	if meta.IsDefined("discovery", "broadcast_addr") {
		addr, err := parseIPv4("discovery.broadcast_addr", raw.Discovery.BroadcastAddr)
		if err != nil {
			return err
		}
		cfg.Discovery.BroadcastAddr = addr
	}
	if meta.IsDefined("discovery", "port") {
		v, err := uint16Field("discovery.port", raw.Discovery.Port)
		if err != nil {
			return err
		}
		cfg.Discovery.DiscoveryPort = v
	}
	if meta.IsDefined("discovery", "local_addr") && strings.TrimSpace(raw.Discovery.LocalAddr) != "" {
		addr, err := parseIPv4("discovery.local_addr", raw.Discovery.LocalAddr)
		if err != nil {
			return err
		}
		cfg.Discovery.LocalAddr = addr
	}
	if meta.IsDefined("discovery", "address_policy") {
		p, err := discovery.ParseAddressPolicy(raw.Discovery.AddressPolicy)
		if err != nil {
			return err
		}
		cfg.Discovery.Policy = p
	}
	return nil
}

func LoadClientFile(path string, cfg *ClientSettings) error {
	var raw clientFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load client config (%s): %w", path, err)
	}
	if err := checkUndecoded(meta); err != nil {
		return fmt.Errorf("load client config (%s): %w", path, err)
	}
	if meta.IsDefined("dial_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.DialTimeout))
		if err != nil {
			return fmt.Errorf("parse dial_timeout: %w", err)
		}
		cfg.DialTimeout = d
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	return nil
}

func LoadWatchFile(path string, cfg *WatchSettings) error {
	var raw watchFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load watch config (%s): %w", path, err)
	}
	if err := checkUndecoded(meta); err != nil {
		return fmt.Errorf("load watch config (%s): %w", path, err)
	}
	if meta.IsDefined("port") {
		v, err := uint16Field("port", raw.Port)
		if err != nil {
			return err
		}
		cfg.Port = v
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	return nil
}

// ValidateServerSettings checks cross-field constraints before any socket is
// opened.
func ValidateServerSettings(cfg ServerSettings) error {
	if cfg.Server.Backlog < 0 {
		return fmt.Errorf("backlog must not be negative")
	}
	if cfg.Server.BufferSize < 0 {
		return fmt.Errorf("buffer_size must not be negative")
	}
	if cfg.Server.ReceiveRateLimit < 0 {
		return fmt.Errorf("receive_rate_limit must not be negative")
	}
	if cfg.Register && cfg.Discovery.DiscoveryPort == 0 {
		return fmt.Errorf("discovery port is required when register is enabled")
	}
	return nil
}

func checkUndecoded(meta toml.MetaData) error {
	if keys := meta.Undecoded(); len(keys) > 0 {
		names := make([]string, 0, len(keys))
		for _, k := range keys {
			names = append(names, k.String())
		}
		return fmt.Errorf("unknown keys: %s", strings.Join(names, ", "))
	}
	return nil
}

func uint16Field(name string, v int) (uint16, error) {
	if v < 0 || v > 65535 {
		return 0, fmt.Errorf("%s out of range: %d", name, v)
	}
	return uint16(v), nil
}

func parseIPv4(name, raw string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(raw))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("parse %s: %w", name, err)
	}
	if !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("%s must be ipv4: %s", name, raw)
	}
	return addr, nil
}
