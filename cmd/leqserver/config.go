package main

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"strconv"

	flag "github.com/spf13/pflag"

	"github.com/danmuck/leqctl/internal/config"
	"github.com/danmuck/leqctl/internal/discovery"
	"github.com/danmuck/leqctl/internal/protocol"
	"github.com/danmuck/leqctl/internal/server"
)

const usage = "usage: leqserver [flags] <port>"

var errUsage = errors.New("usage error")

type options struct {
	settings config.ServerSettings
	port     uint16
}

func (o options) listenAddr() string {
	return net.JoinHostPort(o.settings.ListenHost, strconv.Itoa(int(o.port)))
}

// parseArgs resolves defaults, then the config file, then explicitly set flags.
func parseArgs(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("leqserver", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, usage)
		fs.PrintDefaults()
	}

	configPath := fs.String("config", "", "TOML config file")
	listenHost := fs.String("listen-host", "", "address to bind (empty binds all)")
	transport := fs.String("transport", "tcp", "advertised transport: tcp|udp")
	alpha := fs.Uint16("alpha", 10, "advertised alpha percentage")
	x := fs.Uint16("x", 200, "advertised x percentage")
	noRegister := fs.Bool("no-register", false, "skip the registration broadcast")
	broadcast := fs.String("broadcast-addr", discovery.DefaultBroadcastAddr.String(), "registration destination address")
	discoveryPort := fs.Uint16("discovery-port", protocol.DiscoveryPort, "registration destination port")
	localAddr := fs.String("local-addr", "", "advertise this IPv4 address instead of enumerating interfaces")
	policy := fs.String("address-policy", discovery.DefaultAddressPolicy().String(), "address selection: first|first-non-loopback|interface:<name>")
	onConnError := fs.String("on-conn-error", string(server.ConnErrorExit), "per-connection error policy: exit|continue")
	backlog := fs.Int("backlog", server.DefaultBacklog, "listen backlog")
	bufferSize := fs.Int("buffer-size", server.DefaultBufferSize, "receive chunk size in bytes")
	rateLimit := fs.Int("rate-limit", 0, "receive throttle in bytes per second (0 disables)")
	metricsAddr := fs.String("metrics-addr", "", "serve prometheus metrics on this address")
	logLevel := fs.String("log-level", "", "log level override")

	if err := fs.Parse(args); err != nil {
		return options{}, fmt.Errorf("%w: %w", errUsage, err)
	}
	if fs.NArg() != 1 {
		return options{}, fmt.Errorf("%w: expected exactly one port argument", errUsage)
	}
	port, err := config.ParsePort(fs.Arg(0))
	if err != nil {
		return options{}, fmt.Errorf("%w: %w", errUsage, err)
	}

	opts := options{settings: config.DefaultServerSettings(), port: port}
	s := &opts.settings
	if *configPath != "" {
		if err := config.LoadServerFile(*configPath, s); err != nil {
			return options{}, fmt.Errorf("%w: %w", errUsage, err)
		}
	}

	if fs.Changed("listen-host") {
		s.ListenHost = *listenHost
	}
	if fs.Changed("transport") {
		code, err := protocol.ParseTransport(*transport)
		if err != nil {
			return options{}, fmt.Errorf("%w: %w", errUsage, err)
		}
		s.Transport = code
	}
	if fs.Changed("alpha") {
		s.AlphaPercent = *alpha
	}
	if fs.Changed("x") {
		s.XPercent = *x
	}
	if fs.Changed("no-register") {
		s.Register = !*noRegister
	}
	if fs.Changed("broadcast-addr") {
		addr, err := parseIPv4(*broadcast)
		if err != nil {
			return options{}, err
		}
		s.Discovery.BroadcastAddr = addr
	}
	if fs.Changed("discovery-port") {
		s.Discovery.DiscoveryPort = *discoveryPort
	}
	if fs.Changed("local-addr") {
		addr, err := parseIPv4(*localAddr)
		if err != nil {
			return options{}, err
		}
		s.Discovery.LocalAddr = addr
	}
	if fs.Changed("address-policy") {
		p, err := discovery.ParseAddressPolicy(*policy)
		if err != nil {
			return options{}, fmt.Errorf("%w: %w", errUsage, err)
		}
		s.Discovery.Policy = p
	}
	if fs.Changed("on-conn-error") {
		p, err := server.ParseConnErrorPolicy(*onConnError)
		if err != nil {
			return options{}, fmt.Errorf("%w: %w", errUsage, err)
		}
		s.Server.OnConnError = p
	}
	if fs.Changed("backlog") {
		s.Server.Backlog = *backlog
	}
	if fs.Changed("buffer-size") {
		s.Server.BufferSize = *bufferSize
	}
	if fs.Changed("rate-limit") {
		s.Server.ReceiveRateLimit = *rateLimit
	}
	if fs.Changed("metrics-addr") {
		s.MetricsAddr = *metricsAddr
	}
	if fs.Changed("log-level") {
		s.LogLevel = *logLevel
	}

	if err := config.ValidateServerSettings(*s); err != nil {
		return options{}, fmt.Errorf("%w: %w", errUsage, err)
	}
	s.Server.Addr = opts.listenAddr()
	return opts, nil
}

func parseIPv4(raw string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(raw)
	if err != nil || !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("%w: not an IPv4 address: %q", errUsage, raw)
	}
	return addr, nil
}
