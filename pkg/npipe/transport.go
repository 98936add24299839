package npipe

import (
	"context"
	"net"
)

// Transport is the OS named-pipe primitive a Pipe is layered on.
type Transport interface {
	// Dial connects to an existing pipe as a client.
	Dial(ctx context.Context, path string) (net.Conn, error)
	// Listen binds the server end of the pipe at path.
	Listen(path string) (net.Listener, error)
	// IsDisconnect reports whether err, returned by a read, means that the
	// peer went away rather than that the transfer failed.
	IsDisconnect(err error) bool
}
