package npipe

import (
	"errors"
	"fmt"
	"net"

	cerrdefs "github.com/containerd/errdefs"
)

// ErrClosed is returned by every I/O operation on a pipe after Close.
var ErrClosed = fmt.Errorf("use of closed pipe: %w", cerrdefs.ErrFailedPrecondition)

var errAcceptInProgress = fmt.Errorf("accept already in progress: %w", cerrdefs.ErrConflict)

// OpError is the error type returned when establishing a connection or
// transferring data on a pipe fails. It unwraps to the transport error, so
// callers can match it with errors.Is (for example against os.ErrNotExist).
type OpError struct {
	// Op is one of "connect", "listen", "accept", "read", "write" or "flush".
	Op   string
	Path string
	Err  error
}

func (e *OpError) Error() string {
	return e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// isClosedErr reports errors returned when releasing something that was
// already released, which Close ignores.
func isClosedErr(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
