package npipetest

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func TestNameLifetime(t *testing.T) {
	tr := New()
	ctx := context.Background()

	_, err := tr.Dial(ctx, "p")
	assert.Check(t, is.ErrorIs(err, os.ErrNotExist))

	l, err := tr.Listen("p")
	assert.NilError(t, err)
	assert.Check(t, tr.Exists("p"))
	assert.Check(t, tr.Listening("p"))

	_, err = tr.Listen("p")
	assert.Check(t, is.ErrorIs(err, os.ErrExist))

	client, err := tr.Dial(ctx, "p")
	assert.NilError(t, err)
	_, err = tr.Dial(ctx, "p")
	assert.Check(t, is.ErrorIs(err, ErrPipeBusy))

	server, err := l.Accept()
	assert.NilError(t, err)
	assert.NilError(t, l.Close())
	assert.Check(t, is.ErrorIs(l.Close(), net.ErrClosed))
	assert.Check(t, !tr.Listening("p"))
	assert.Check(t, tr.Exists("p"), "accepted connection must keep the name")

	_, err = tr.Dial(ctx, "p")
	assert.Check(t, is.ErrorIs(err, ErrPipeBusy))

	assert.NilError(t, server.Close())
	assert.Check(t, !tr.Exists("p"))
	assert.NilError(t, client.Close())
	assert.Check(t, is.Equal(tr.Dials("p"), 1))
}

func TestConnBuffersAndEOF(t *testing.T) {
	tr := New()
	l, err := tr.Listen("p")
	assert.NilError(t, err)
	defer l.Close()

	client, err := tr.Dial(context.Background(), "p")
	assert.NilError(t, err)
	_, err = client.Write([]byte("hello"))
	assert.NilError(t, err)
	assert.NilError(t, client.Close())

	server, err := l.Accept()
	assert.NilError(t, err)
	defer server.Close()
	b, err := io.ReadAll(server)
	assert.NilError(t, err)
	assert.Check(t, is.Equal(string(b), "hello"))

	_, err = server.Write([]byte("x"))
	assert.Check(t, is.ErrorIs(err, io.ErrClosedPipe))
}

func TestCloseListenerDropsQueuedConn(t *testing.T) {
	tr := New()
	l, err := tr.Listen("p")
	assert.NilError(t, err)
	_, err = tr.Dial(context.Background(), "p")
	assert.NilError(t, err)

	assert.NilError(t, l.Close())
	assert.Check(t, !tr.Exists("p"))

	_, err = l.Accept()
	assert.Check(t, is.ErrorIs(err, net.ErrClosed))
}

func TestFailReads(t *testing.T) {
	tr := New()
	l, err := tr.Listen("p")
	assert.NilError(t, err)
	defer l.Close()
	client, err := tr.Dial(context.Background(), "p")
	assert.NilError(t, err)
	defer client.Close()
	server, err := l.Accept()
	assert.NilError(t, err)
	defer server.Close()

	boom := errors.New("boom")
	tr.FailReads("p", boom)
	_, err = server.Read(make([]byte, 1))
	assert.Check(t, is.ErrorIs(err, boom))
	assert.Check(t, !tr.IsDisconnect(err))
	assert.Check(t, tr.IsDisconnect(ErrBrokenPipe))
	assert.Check(t, tr.IsDisconnect(io.EOF))
}
