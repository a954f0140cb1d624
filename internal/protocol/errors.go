package protocol

import "errors"

var (
	ErrTruncated           = errors.New("protocol: truncated data")
	ErrInvalidLength       = errors.New("protocol: invalid length")
	ErrNotIPv4             = errors.New("protocol: address is not ipv4")
	ErrUnsupportedProtocol = errors.New("protocol: unsupported transport protocol")
	ErrUnknownTransport    = errors.New("protocol: unknown transport name")
)
