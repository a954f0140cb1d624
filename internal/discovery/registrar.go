package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/leqctl/internal/observability"
	"github.com/danmuck/leqctl/internal/protocol"
)

var (
	ErrShortSend  = errors.New("discovery: short registration send")
	ErrSendFailed = errors.New("discovery: registration send failed")
)

// DefaultBroadcastAddr is the limited broadcast address. Recipients must share
// the sender's broadcast domain.
var DefaultBroadcastAddr = netip.AddrFrom4([4]byte{255, 255, 255, 255})

// Config holds the discovery protocol knobs. Both destination fields are
// configuration so tests can aim registrations at loopback.
type Config struct {
	BroadcastAddr netip.Addr
	DiscoveryPort uint16
	// LocalAddr, when valid, is advertised as-is and interface enumeration is
	// skipped.
	LocalAddr netip.Addr
	Policy    AddressPolicy
}

func DefaultConfig() Config {
	return Config{
		BroadcastAddr: DefaultBroadcastAddr,
		DiscoveryPort: protocol.DiscoveryPort,
		Policy:        DefaultAddressPolicy(),
	}
}

// Params are the service-specific registration fields.
type Params struct {
	Protocol     uint16
	Port         uint16
	AlphaPercent uint16
	XPercent     uint16
}

// PacketListener opens the unconnected endpoint a registration is sent from.
type PacketListener func(ctx context.Context) (net.PacketConn, error)

// Registrar builds and broadcasts registration records.
type Registrar struct {
	cfg        Config
	interfaces InterfaceSource
	listen     PacketListener
}

type Option func(*Registrar)

func WithInterfaceSource(src InterfaceSource) Option {
	return func(r *Registrar) {
		r.interfaces = src
	}
}

func WithPacketListener(l PacketListener) Option {
	return func(r *Registrar) {
		r.listen = l
	}
}

func NewRegistrar(cfg Config, opts ...Option) *Registrar {
	if !cfg.BroadcastAddr.IsValid() {
		cfg.BroadcastAddr = DefaultBroadcastAddr
	}
	if cfg.DiscoveryPort == 0 {
		cfg.DiscoveryPort = protocol.DiscoveryPort
	}
	if cfg.Policy.Kind == "" {
		cfg.Policy = DefaultAddressPolicy()
	}
	r := &Registrar{
		cfg:        cfg,
		interfaces: SystemInterfaces,
		listen:     ListenBroadcast,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ListenBroadcast opens an ephemeral UDP endpoint with SO_BROADCAST set.
func ListenBroadcast(ctx context.Context) (net.PacketConn, error) {
	lc := net.ListenConfig{Control: setBroadcast}
	conn, err := lc.ListenPacket(ctx, "udp4", "0.0.0.0:0")
	if err != nil {
		return nil, fmt.Errorf("discovery: open broadcast socket: %w", err)
	}
	return conn, nil
}

// LocalAddress resolves the address a registration advertises.
func (r *Registrar) LocalAddress() (netip.Addr, error) {
	if r.cfg.LocalAddr.IsValid() {
		if !r.cfg.LocalAddr.Is4() {
			return netip.Addr{}, protocol.ErrNotIPv4
		}
		return r.cfg.LocalAddr, nil
	}
	addrs, err := r.interfaces()
	if err != nil {
		return netip.Addr{}, err
	}
	for _, a := range addrs {
		log.Debug().Str("iface", a.Name).Str("addr", a.Addr.String()).Msg("discovery.Registrar interface")
	}
	chosen, err := SelectAddress(addrs, r.cfg.Policy)
	if err != nil {
		return netip.Addr{}, err
	}
	return chosen.Addr, nil
}

// Register sends a single registration datagram and returns the record sent.
// There is no acknowledgment and no retry; a short send is an error because a
// partial datagram cannot be resumed.
func (r *Registrar) Register(ctx context.Context, p Params) (protocol.Registration, error) {
	addr, err := r.LocalAddress()
	if err != nil {
		return protocol.Registration{}, err
	}
	reg := protocol.Registration{
		Addr:         addr,
		Protocol:     p.Protocol,
		Port:         p.Port,
		AlphaPercent: p.AlphaPercent,
		XPercent:     p.XPercent,
	}
	buf, err := protocol.Encode(reg)
	if err != nil {
		return protocol.Registration{}, err
	}

	conn, err := r.listen(ctx)
	if err != nil {
		return protocol.Registration{}, err
	}
	defer conn.Close()

	dst := net.UDPAddrFromAddrPort(netip.AddrPortFrom(r.cfg.BroadcastAddr, r.cfg.DiscoveryPort))
	n, err := conn.WriteTo(buf[:], dst)
	log.Info().
		Str("dst", dst.String()).
		Str("registration", reg.String()).
		Msgf("discovery.Registrar.Register sent %d bytes out of %d", n, protocol.RecordSize)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrSendFailed, err)
		observability.RecordRegistrationSent(protocol.TransportName(reg.Protocol), err)
		return reg, err
	}
	if n < protocol.RecordSize {
		err = fmt.Errorf("%w: %d of %d bytes", ErrShortSend, n, protocol.RecordSize)
		observability.RecordRegistrationSent(protocol.TransportName(reg.Protocol), err)
		return reg, err
	}
	observability.RecordRegistrationSent(protocol.TransportName(reg.Protocol), nil)
	return reg, nil
}
