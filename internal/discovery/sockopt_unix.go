//go:build unix

package discovery

import (
	"syscall"

	"golang.org/x/sys/unix"
)

func setBroadcast(network, address string, c syscall.RawConn) error {
	return setSockoptInt(c, unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
}

func setReuseAddr(network, address string, c syscall.RawConn) error {
	return setSockoptInt(c, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
}

func setSockoptInt(c syscall.RawConn, level, opt, value int) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), level, opt, value)
	})
	if err != nil {
		return err
	}
	return sockErr
}
