//go:build !windows

package npipe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime"

	cerrdefs "github.com/containerd/errdefs"
)

type unsupportedTransport struct{}

func newDefaultTransport(PipeConfig) Transport {
	return unsupportedTransport{}
}

func errNotImplemented() error {
	return fmt.Errorf("named pipes are not supported on %s: %w", runtime.GOOS, cerrdefs.ErrNotImplemented)
}

func (unsupportedTransport) Dial(context.Context, string) (net.Conn, error) {
	return nil, errNotImplemented()
}

func (unsupportedTransport) Listen(string) (net.Listener, error) {
	return nil, errNotImplemented()
}

func (unsupportedTransport) IsDisconnect(err error) bool {
	return errors.Is(err, io.EOF)
}
