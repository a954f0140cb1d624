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

// maxDatagram bounds a single read; anything larger than RecordSize is
// dropped anyway.
const maxDatagram = 1500

// Handler observes each newly accepted registration.
type Handler func(Entry)

// Monitor is the passive registration intake.
type Monitor struct {
	registry *Registry
	handler  Handler
}

func NewMonitor(registry *Registry, handler Handler) *Monitor {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Monitor{registry: registry, handler: handler}
}

func (m *Monitor) Registry() *Registry {
	return m.registry
}

// ListenAndServe binds the discovery port on all interfaces and serves until
// ctx is done.
func (m *Monitor) ListenAndServe(ctx context.Context, port uint16) error {
	lc := net.ListenConfig{Control: setReuseAddr}
	conn, err := lc.ListenPacket(ctx, "udp4", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return fmt.Errorf("discovery: listen on discovery port: %w", err)
	}
	return m.Serve(ctx, conn)
}

// Serve reads registrations from conn until ctx is done or a read fails. It
// takes ownership of conn.
func (m *Monitor) Serve(ctx context.Context, conn net.PacketConn) error {
	defer conn.Close()
	log.Info().Str("addr", conn.LocalAddr().String()).Msg("discovery.Monitor.Serve listening")

	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	buf := make([]byte, maxDatagram)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("discovery: read registration: %w", err)
		}
		m.handleDatagram(buf[:n], sourceOf(from))
	}
}

func (m *Monitor) handleDatagram(payload []byte, source netip.AddrPort) {
	reg, err := protocol.Decode(payload)
	if err != nil {
		log.Debug().Str("from", source.String()).Int("len", len(payload)).Err(err).Msg("discovery.Monitor dropped datagram")
		observability.RecordRegistrationSeen("malformed")
		return
	}
	if err := protocol.Validate(reg); err != nil {
		log.Warn().Str("from", source.String()).Err(err).Msg("discovery.Monitor rejected registration")
		observability.RecordRegistrationSeen("rejected")
		return
	}
	entry, added := m.registry.Add(reg, source)
	if !added {
		log.Debug().Int("id", entry.ID).Str("registration", reg.String()).Msg("discovery.Monitor duplicate registration")
		observability.RecordRegistrationSeen("duplicate")
		return
	}
	log.Info().
		Int("id", entry.ID).
		Str("from", source.String()).
		Str("registration", reg.String()).
		Float64("alpha", reg.Alpha()).
		Float64("x", reg.X()).
		Msg("discovery.Monitor registered service")
	observability.RecordRegistrationSeen("accepted")
	if m.handler != nil {
		m.handler(entry)
	}
}

func sourceOf(addr net.Addr) netip.AddrPort {
	if udp, ok := addr.(*net.UDPAddr); ok {
		ap := udp.AddrPort()
		return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
	}
	return netip.AddrPort{}
}
