package protocol

import (
	"encoding/binary"
	"errors"
	"io"
	"net/netip"
)

// Decode parses exactly one record. Inputs of any other size are rejected:
// a datagram that is not RecordSize bytes is not a registration.
func Decode(b []byte) (Registration, error) {
	if len(b) < RecordSize {
		return Registration{}, ErrTruncated
	}
	if len(b) > RecordSize {
		return Registration{}, ErrInvalidLength
	}
	return Registration{
		Addr:         netip.AddrFrom4([4]byte(b[0:4])),
		Protocol:     binary.BigEndian.Uint16(b[4:6]),
		Port:         binary.BigEndian.Uint16(b[6:8]),
		AlphaPercent: binary.BigEndian.Uint16(b[8:10]),
		XPercent:     binary.BigEndian.Uint16(b[10:12]),
	}, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (r *Registration) UnmarshalBinary(b []byte) error {
	decoded, err := Decode(b)
	if err != nil {
		return err
	}
	*r = decoded
	return nil
}

// ReadRegistration reads one record from a stream.
func ReadRegistration(r io.Reader) (Registration, error) {
	var buf [RecordSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return Registration{}, ErrTruncated
		}
		return Registration{}, err
	}
	return Decode(buf[:])
}
