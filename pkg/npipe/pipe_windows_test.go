//go:build windows

package npipe

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/Microsoft/go-winio"
	"golang.org/x/sys/windows"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
	"gotest.tools/v3/poll"
)

// waitDial keeps connecting p until the reading side has bound the pipe.
func waitDial(t *testing.T, p *Pipe) {
	t.Helper()
	poll.WaitOn(t, func(poll.LogT) poll.Result {
		err := p.Connect(context.Background())
		switch {
		case err == nil:
			return poll.Success()
		case errors.Is(err, os.ErrNotExist):
			return poll.Continue("waiting for %s to be bound", p.Path())
		default:
			return poll.Error(err)
		}
	}, poll.WithTimeout(10*time.Second), poll.WithDelay(5*time.Millisecond))
}

func TestNamedPipeScenario(t *testing.T) {
	p, err := Create(RemoveOnDiscard)
	assert.NilError(t, err)
	q, err := Open(p.Path(), RemoveOnDiscard)
	assert.NilError(t, err)

	type result struct {
		b   []byte
		err error
	}
	read := make(chan result, 1)
	go func() {
		b, err := q.ReadBytes(3)
		read <- result{b, err}
	}()

	waitDial(t, p)
	n, err := p.Write([]byte{1, 2, 3})
	assert.NilError(t, err)
	assert.Check(t, is.Equal(n, 3))

	res := <-read
	assert.NilError(t, res.err)
	assert.Check(t, is.DeepEqual(res.b, []byte{1, 2, 3}))

	assert.NilError(t, p.Close())
	assert.NilError(t, q.Close())

	timeout := time.Second
	_, err = winio.DialPipe(p.Path(), &timeout)
	assert.Check(t, errors.Is(err, os.ErrNotExist), "pipe still exists: %v", err)
}

func TestNamedPipeDisconnect(t *testing.T) {
	w, err := Create(KeepOnDiscard)
	assert.NilError(t, err)
	r, err := Open(w.Path(), KeepOnDiscard)
	assert.NilError(t, err)
	defer r.Close()

	accepted := make(chan error, 1)
	go func() {
		accepted <- r.Accept(context.Background())
	}()
	waitDial(t, w)
	assert.NilError(t, <-accepted)

	assert.NilError(t, w.WriteByte('z'))
	assert.NilError(t, w.Close())

	b, err := r.ReadByte()
	assert.NilError(t, err)
	assert.Check(t, is.Equal(b, byte('z')))

	b, err = r.ReadByte()
	assert.NilError(t, err)
	assert.Check(t, is.Equal(b, byte(0)))

	n, err := r.Read(make([]byte, 4))
	assert.Check(t, is.Equal(n, 0))
	assert.Check(t, is.Equal(err, io.EOF))
}

func TestWinioIsDisconnect(t *testing.T) {
	tr := newDefaultTransport(PipeConfig{})
	assert.Check(t, tr.IsDisconnect(io.EOF))
	assert.Check(t, tr.IsDisconnect(windows.ERROR_BROKEN_PIPE))
	assert.Check(t, tr.IsDisconnect(&os.PathError{Op: "read", Err: windows.ERROR_PIPE_NOT_CONNECTED}))
	assert.Check(t, !tr.IsDisconnect(windows.ERROR_NO_DATA))
	assert.Check(t, !tr.IsDisconnect(windows.ERROR_ACCESS_DENIED))
}
