package discovery

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
)

var (
	ErrNoAddress     = errors.New("discovery: no usable ipv4 interface address")
	ErrInvalidPolicy = errors.New("discovery: invalid address policy")
)

// InterfaceAddr is one address configured on a local interface.
type InterfaceAddr struct {
	Name  string
	Flags net.Flags
	Addr  netip.Addr
}

// InterfaceSource enumerates local interface addresses in system order.
type InterfaceSource func() ([]InterfaceAddr, error)

// SystemInterfaces lists the host's interface addresses via net.Interfaces.
func SystemInterfaces() ([]InterfaceAddr, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("discovery: list interfaces: %w", err)
	}
	out := make([]InterfaceAddr, 0, len(ifaces))
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			return nil, fmt.Errorf("discovery: addresses of %s: %w", iface.Name, err)
		}
		for _, a := range addrs {
			var ip net.IP
			switch v := a.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			default:
				continue
			}
			addr, ok := netip.AddrFromSlice(ip)
			if !ok {
				continue
			}
			out = append(out, InterfaceAddr{Name: iface.Name, Flags: iface.Flags, Addr: addr.Unmap()})
		}
	}
	return out, nil
}

type PolicyKind string

const (
	// PolicyFirst takes the first IPv4 address in enumeration order, loopback
	// included.
	PolicyFirst PolicyKind = "first"
	// PolicyFirstNonLoopback skips loopback and down interfaces.
	PolicyFirstNonLoopback PolicyKind = "first-non-loopback"
	// PolicyInterface takes the first IPv4 address of a named interface.
	PolicyInterface PolicyKind = "interface"
)

// AddressPolicy decides which local address a registration advertises when a
// host has several.
type AddressPolicy struct {
	Kind      PolicyKind
	Interface string
}

func DefaultAddressPolicy() AddressPolicy {
	return AddressPolicy{Kind: PolicyFirstNonLoopback}
}

func (p AddressPolicy) String() string {
	if p.Kind == PolicyInterface {
		return string(PolicyInterface) + ":" + p.Interface
	}
	return string(p.Kind)
}

// ParseAddressPolicy accepts "first", "first-non-loopback" or "interface:<name>".
func ParseAddressPolicy(raw string) (AddressPolicy, error) {
	v := strings.TrimSpace(raw)
	switch {
	case v == "":
		return DefaultAddressPolicy(), nil
	case v == string(PolicyFirst):
		return AddressPolicy{Kind: PolicyFirst}, nil
	case v == string(PolicyFirstNonLoopback):
		return AddressPolicy{Kind: PolicyFirstNonLoopback}, nil
	case strings.HasPrefix(v, string(PolicyInterface)+":"):
		name := strings.TrimSpace(strings.TrimPrefix(v, string(PolicyInterface)+":"))
		if name == "" {
			return AddressPolicy{}, fmt.Errorf("%w: empty interface name", ErrInvalidPolicy)
		}
		return AddressPolicy{Kind: PolicyInterface, Interface: name}, nil
	default:
		return AddressPolicy{}, fmt.Errorf("%w: %q", ErrInvalidPolicy, raw)
	}
}

// SelectAddress applies policy to addrs and returns the chosen entry.
func SelectAddress(addrs []InterfaceAddr, policy AddressPolicy) (InterfaceAddr, error) {
	for _, a := range addrs {
		if !a.Addr.Is4() {
			continue
		}
		switch policy.Kind {
		case PolicyFirst:
			return a, nil
		case PolicyFirstNonLoopback:
			if a.Flags&net.FlagUp == 0 || a.Flags&net.FlagLoopback != 0 || a.Addr.IsLoopback() {
				continue
			}
			return a, nil
		case PolicyInterface:
			if a.Name == policy.Interface {
				return a, nil
			}
		default:
			return InterfaceAddr{}, fmt.Errorf("%w: %q", ErrInvalidPolicy, policy.Kind)
		}
	}
	return InterfaceAddr{}, fmt.Errorf("%w (policy=%s)", ErrNoAddress, policy)
}
