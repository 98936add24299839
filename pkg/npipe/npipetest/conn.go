package npipetest

import (
	"bytes"
	"io"
	"net"
	"sync"
	"time"
)

type addr string

func (addr) Network() string  { return "pipe" }
func (a addr) String() string { return string(a) }

// buffer is one direction of a connection.
type buffer struct {
	mu      sync.Mutex
	cond    *sync.Cond
	data    bytes.Buffer
	eof     bool  // writing end closed
	dropped bool  // reading end closed
	err     error // injected read failure
}

func newBuffer() *buffer {
	b := &buffer{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *buffer) read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.data.Len() == 0 && !b.eof && !b.dropped && b.err == nil {
		b.cond.Wait()
	}
	switch {
	case b.dropped:
		return 0, net.ErrClosed
	case b.err != nil:
		return 0, b.err
	case b.data.Len() > 0:
		return b.data.Read(p)
	default:
		return 0, io.EOF
	}
}

func (b *buffer) write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.eof:
		return 0, net.ErrClosed
	case b.dropped:
		return 0, io.ErrClosedPipe
	}
	n, _ := b.data.Write(p)
	b.cond.Broadcast()
	return n, nil
}

func (b *buffer) set(f func(*buffer)) {
	b.mu.Lock()
	f(b)
	b.mu.Unlock()
	b.cond.Broadcast()
}

func (b *buffer) fail(err error) {
	b.set(func(b *buffer) { b.err = err })
}

type conn struct {
	path    string
	in      *buffer
	out     *buffer
	once    sync.Once
	onClose func()
}

func newConnPair(path string) (client, server *conn) {
	a, b := newBuffer(), newBuffer()
	client = &conn{path: path, in: a, out: b}
	server = &conn{path: path, in: b, out: a}
	return client, server
}

func (c *conn) Read(p []byte) (int, error) {
	return c.in.read(p)
}

func (c *conn) Write(p []byte) (int, error) {
	return c.out.write(p)
}

func (c *conn) Close() error {
	closed := false
	c.once.Do(func() {
		closed = true
		c.out.set(func(b *buffer) { b.eof = true })
		c.in.set(func(b *buffer) { b.dropped = true })
		if c.onClose != nil {
			c.onClose()
		}
	})
	if !closed {
		return net.ErrClosed
	}
	return nil
}

// Flush mirrors FlushFileBuffers on a pipe handle. Data is never held back.
func (c *conn) Flush() error {
	return nil
}

func (c *conn) LocalAddr() net.Addr  { return addr(c.path) }
func (c *conn) RemoteAddr() net.Addr { return addr(c.path) }

func (c *conn) SetDeadline(time.Time) error      { return nil }
func (c *conn) SetReadDeadline(time.Time) error  { return nil }
func (c *conn) SetWriteDeadline(time.Time) error { return nil }
