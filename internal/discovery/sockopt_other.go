//go:build !unix

package discovery

import "syscall"

// Non-unix platforms get the runtime's default datagram socket options.
func setBroadcast(network, address string, c syscall.RawConn) error {
	return nil
}

func setReuseAddr(network, address string, c syscall.RawConn) error {
	return nil
}
