package protocol

import (
	"fmt"
	"net/netip"
)

// RecordSize is the exact registration payload size. The controller relies on
// it as the only framing: there is no version tag or length prefix.
const RecordSize = 4 + 2 + 2 + 2 + 2

// DiscoveryPort is the well-known UDP port registrations are broadcast to.
const DiscoveryPort uint16 = 37823

// IANA transport protocol numbers accepted by the controller.
const (
	ProtocolTCP uint16 = 6
	ProtocolUDP uint16 = 17
)

// Registration is one LEQ service announcement.
type Registration struct {
	Addr         netip.Addr
	Protocol     uint16
	Port         uint16
	AlphaPercent uint16
	XPercent     uint16
}

func (r Registration) String() string {
	return fmt.Sprintf("%s %s/%d alpha=%d%% x=%d%%",
		r.Addr, TransportName(r.Protocol), r.Port, r.AlphaPercent, r.XPercent)
}

// Key identifies a service for de-duplication: address, protocol and port.
type Key struct {
	Addr     netip.Addr
	Protocol uint16
	Port     uint16
}

func (r Registration) Key() Key {
	return Key{Addr: r.Addr, Protocol: r.Protocol, Port: r.Port}
}

// Alpha returns the equalization weight as a fraction.
func (r Registration) Alpha() float64 {
	return float64(r.AlphaPercent) / 100
}

// X returns the second equalization parameter as a fraction.
func (r Registration) X() float64 {
	return float64(r.XPercent) / 100
}
