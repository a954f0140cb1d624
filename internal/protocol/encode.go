package protocol

import (
	"encoding/binary"
	"io"
)

// Encode lays r out in network byte order. The only failure is an address
// that cannot be represented in four bytes.
func Encode(r Registration) ([RecordSize]byte, error) {
	var buf [RecordSize]byte
	if !r.Addr.Is4() {
		return buf, ErrNotIPv4
	}
	addr := r.Addr.As4()
	copy(buf[0:4], addr[:])
	binary.BigEndian.PutUint16(buf[4:6], r.Protocol)
	binary.BigEndian.PutUint16(buf[6:8], r.Port)
	binary.BigEndian.PutUint16(buf[8:10], r.AlphaPercent)
	binary.BigEndian.PutUint16(buf[10:12], r.XPercent)
	return buf, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (r Registration) MarshalBinary() ([]byte, error) {
	buf, err := Encode(r)
	if err != nil {
		return nil, err
	}
	return buf[:], nil
}

// WriteRegistration writes r to w in a single Write call so that datagram
// writers emit exactly one packet.
func WriteRegistration(w io.Writer, r Registration) (int, error) {
	buf, err := Encode(r)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(buf[:])
	if err != nil {
		return n, err
	}
	if n != RecordSize {
		return n, io.ErrShortWrite
	}
	return n, nil
}
