//go:build windows

package npipe

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/Microsoft/go-winio"
	"golang.org/x/sys/windows"
)

type winioTransport struct {
	cfg winio.PipeConfig
}

func newDefaultTransport(pc PipeConfig) Transport {
	return &winioTransport{
		cfg: winio.PipeConfig{
			SecurityDescriptor: pc.SecurityDescriptor,
			MessageMode:        false,
			InputBufferSize:    pc.InputBufferSize,
			OutputBufferSize:   pc.OutputBufferSize,
		},
	}
}

func (t *winioTransport) Dial(ctx context.Context, path string) (net.Conn, error) {
	return winio.DialPipeContext(ctx, path)
}

func (t *winioTransport) Listen(path string) (net.Listener, error) {
	cfg := t.cfg
	return winio.ListenPipe(path, &cfg)
}

// IsDisconnect matches the ways a byte-mode pipe reports that the client
// closed its end. go-winio already turns ERROR_BROKEN_PIPE into io.EOF on
// reads; the raw codes are kept for handles that surface them directly.
// ERROR_NO_DATA is only returned to writers and stays a real failure.
func (*winioTransport) IsDisconnect(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, windows.ERROR_BROKEN_PIPE) ||
		errors.Is(err, windows.ERROR_PIPE_NOT_CONNECTED)
}
