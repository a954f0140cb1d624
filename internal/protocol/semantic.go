package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Validate applies the controller's acceptance rules. Percentages are not
// range-checked: values above 100 are meaningful to the equalizer.
func Validate(r Registration) error {
	if !r.Addr.Is4() {
		return ErrNotIPv4
	}
	switch r.Protocol {
	case ProtocolTCP, ProtocolUDP:
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrUnsupportedProtocol, r.Protocol)
	}
}

// ParseTransport maps "tcp", "udp" or a bare protocol number to its code.
func ParseTransport(raw string) (uint16, error) {
	switch v := strings.ToLower(strings.TrimSpace(raw)); v {
	case "tcp", "stream":
		return ProtocolTCP, nil
	case "udp", "datagram":
		return ProtocolUDP, nil
	default:
		n, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrUnknownTransport, raw)
		}
		return uint16(n), nil
	}
}

func TransportName(code uint16) string {
	switch code {
	case ProtocolTCP:
		return "tcp"
	case ProtocolUDP:
		return "udp"
	default:
		return "proto" + strconv.Itoa(int(code))
	}
}
