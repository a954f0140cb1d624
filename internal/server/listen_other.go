//go:build !unix

package server

import (
	"context"
	"net"
)

// listenTCP falls back to the runtime listener; the backlog is the platform
// default here.
func listenTCP(ctx context.Context, addr string, backlog int) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(ctx, "tcp4", addr)
}
