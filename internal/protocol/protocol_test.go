package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"net/netip"
	"testing"
	"testing/quick"
)

func TestEncodeScenarioLayout(t *testing.T) {
	reg := Registration{
		Addr:         netip.MustParseAddr("10.0.0.7"),
		Protocol:     ProtocolTCP,
		Port:         9000,
		AlphaPercent: 10,
		XPercent:     200,
	}
	buf, err := Encode(reg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := []byte{10, 0, 0, 7, 0x00, 0x06, 0x23, 0x28, 0x00, 0x0a, 0x00, 0xc8}
	if !bytes.Equal(buf[:], want) {
		t.Fatalf("layout mismatch: got=% x want=% x", buf[:], want)
	}
	if got := binary.BigEndian.Uint16(buf[6:8]); got != 9000 {
		t.Fatalf("unexpected port: %d", got)
	}
}

func TestRoundTripEncodeDecode(t *testing.T) {
	check := func(addr [4]byte, proto, port, alpha, x uint16) bool {
		in := Registration{
			Addr:         netip.AddrFrom4(addr),
			Protocol:     proto,
			Port:         port,
			AlphaPercent: alpha,
			XPercent:     x,
		}
		buf, err := Encode(in)
		if err != nil {
			return false
		}
		out, err := Decode(buf[:])
		return err == nil && out == in
	}
	if err := quick.Check(check, nil); err != nil {
		t.Fatalf("round trip: %v", err)
	}
}

func TestRoundTripBoundaryValues(t *testing.T) {
	for _, v := range []uint16{0, 1, 100, 0x7fff, 0x8000, 0xffff} {
		in := Registration{
			Addr:         netip.AddrFrom4([4]byte{255, 255, 255, 255}),
			Protocol:     v,
			Port:         v,
			AlphaPercent: v,
			XPercent:     v,
		}
		b, err := in.MarshalBinary()
		if err != nil {
			t.Fatalf("marshal %d: %v", v, err)
		}
		var out Registration
		if err := out.UnmarshalBinary(b); err != nil {
			t.Fatalf("unmarshal %d: %v", v, err)
		}
		if out != in {
			t.Fatalf("boundary %d mismatch: got=%+v want=%+v", v, out, in)
		}
	}
}

func TestEncodeRejectsIPv6(t *testing.T) {
	_, err := Encode(Registration{Addr: netip.MustParseAddr("::1")})
	if !errors.Is(err, ErrNotIPv4) {
		t.Fatalf("expected ErrNotIPv4, got %v", err)
	}
	_, err = Encode(Registration{})
	if !errors.Is(err, ErrNotIPv4) {
		t.Fatalf("expected ErrNotIPv4 for zero addr, got %v", err)
	}
}

func TestDecodeRejectsWrongSize(t *testing.T) {
	if _, err := Decode(make([]byte, RecordSize-1)); !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
	if _, err := Decode(make([]byte, RecordSize+1)); !errors.Is(err, ErrInvalidLength) {
		t.Fatalf("expected ErrInvalidLength, got %v", err)
	}
}

func TestReadWriteRegistrationStream(t *testing.T) {
	in := Registration{Addr: netip.MustParseAddr("192.168.1.20"), Protocol: ProtocolUDP, Port: 5353, AlphaPercent: 50, XPercent: 75}
	var buf bytes.Buffer
	n, err := WriteRegistration(&buf, in)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if n != RecordSize || buf.Len() != RecordSize {
		t.Fatalf("unexpected size: n=%d len=%d", n, buf.Len())
	}
	out, err := ReadRegistration(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if out != in {
		t.Fatalf("mismatch: got=%+v want=%+v", out, in)
	}
	if _, err := ReadRegistration(bytes.NewReader([]byte{1, 2, 3})); !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := Registration{Addr: netip.MustParseAddr("10.0.0.1"), Port: 80, AlphaPercent: 250, XPercent: 0}
	for _, proto := range []uint16{ProtocolTCP, ProtocolUDP} {
		r := base
		r.Protocol = proto
		if err := Validate(r); err != nil {
			t.Fatalf("protocol %d rejected: %v", proto, err)
		}
	}
	r := base
	r.Protocol = 1
	if err := Validate(r); !errors.Is(err, ErrUnsupportedProtocol) {
		t.Fatalf("expected ErrUnsupportedProtocol, got %v", err)
	}
}

func TestFractions(t *testing.T) {
	r := Registration{AlphaPercent: 10, XPercent: 200}
	if r.Alpha() != 0.1 {
		t.Fatalf("unexpected alpha: %v", r.Alpha())
	}
	if r.X() != 2 {
		t.Fatalf("unexpected x: %v", r.X())
	}
}

func TestParseTransport(t *testing.T) {
	cases := map[string]uint16{"tcp": 6, "UDP": 17, " stream ": 6, "132": 132}
	for raw, want := range cases {
		got, err := ParseTransport(raw)
		if err != nil || got != want {
			t.Fatalf("ParseTransport(%q) = %d,%v want %d", raw, got, err, want)
		}
	}
	if _, err := ParseTransport("sctp"); !errors.Is(err, ErrUnknownTransport) {
		t.Fatalf("expected ErrUnknownTransport, got %v", err)
	}
	if TransportName(6) != "tcp" || TransportName(99) != "proto99" {
		t.Fatalf("unexpected transport names")
	}
}
