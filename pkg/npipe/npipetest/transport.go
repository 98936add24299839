// Package npipetest provides an in-memory named-pipe transport for testing
// code built on npipe without real OS pipes.
//
// The transport follows the rules of Windows byte-mode pipes closely enough
// for the npipe state machine: a name exists while a listener or an accepted
// server connection holds it, a client can connect as soon as a listener is
// bound (before Accept is called), each listener hands out one pending
// instance at a time, and writes are buffered.
package npipetest

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"
)

// ErrBrokenPipe is returned by reads on connections broken with
// [Transport.FailReads]. The transport reports it as a disconnect.
var ErrBrokenPipe = errors.New("npipetest: broken pipe")

// ErrPipeBusy is returned by Dial when the name exists but no listener has a
// free instance.
var ErrPipeBusy = errors.New("npipetest: all pipe instances are busy")

// Transport is an in-memory named-pipe namespace. The zero value is not
// usable; use [New].
type Transport struct {
	mu        sync.Mutex
	listeners map[string]*listener
	instances map[string]int
	servers   map[string][]*conn
	dials     map[string]int
}

// New returns an empty namespace.
func New() *Transport {
	return &Transport{
		listeners: make(map[string]*listener),
		instances: make(map[string]int),
		servers:   make(map[string][]*conn),
		dials:     make(map[string]int),
	}
}

// Listen binds path. It fails with os.ErrExist while anything else holds the
// name, like a first-instance pipe on Windows.
func (t *Transport) Listen(path string) (net.Listener, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.instances[path] > 0 {
		return nil, &os.PathError{Op: "listen", Path: path, Err: os.ErrExist}
	}
	l := &listener{
		t:     t,
		path:  path,
		queue: make(chan *conn, 1),
		done:  make(chan struct{}),
	}
	t.listeners[path] = l
	t.instances[path]++
	return l, nil
}

// Dial connects to the listener bound at path. It does not wait for Accept.
func (t *Transport) Dial(ctx context.Context, path string) (net.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	l := t.listeners[path]
	if l == nil {
		if t.instances[path] > 0 {
			return nil, &os.PathError{Op: "open", Path: path, Err: ErrPipeBusy}
		}
		return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrNotExist}
	}
	client, server := newConnPair(path)
	server.onClose = func() { t.release(path, server) }
	select {
	case l.queue <- server:
	default:
		return nil, &os.PathError{Op: "open", Path: path, Err: ErrPipeBusy}
	}
	t.instances[path]++
	t.servers[path] = append(t.servers[path], server)
	t.dials[path]++
	return client, nil
}

// IsDisconnect reports io.EOF and ErrBrokenPipe as disconnects.
func (t *Transport) IsDisconnect(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, ErrBrokenPipe)
}

// Exists reports whether anything still holds the name path.
func (t *Transport) Exists(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.instances[path] > 0
}

// Listening reports whether a listener is bound at path.
func (t *Transport) Listening(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.listeners[path] != nil
}

// Dials returns the number of successful client connections made to path.
func (t *Transport) Dials(path string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials[path]
}

// FailReads makes every pending and future read on the server connections
// of path fail with err.
func (t *Transport) FailReads(path string, err error) {
	t.mu.Lock()
	servers := append([]*conn(nil), t.servers[path]...)
	t.mu.Unlock()
	for _, c := range servers {
		c.in.fail(err)
	}
}

func (t *Transport) unbind(l *listener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listeners[l.path] == l {
		delete(t.listeners, l.path)
	}
	t.decrement(l.path)
}

func (t *Transport) release(path string, c *conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	servers := t.servers[path]
	for i, s := range servers {
		if s == c {
			t.servers[path] = append(servers[:i], servers[i+1:]...)
			break
		}
	}
	t.decrement(path)
}

func (t *Transport) decrement(path string) {
	t.instances[path]--
	if t.instances[path] <= 0 {
		delete(t.instances, path)
		delete(t.servers, path)
	}
}

type listener struct {
	t     *Transport
	path  string
	queue chan *conn
	done  chan struct{}
	once  sync.Once
}

func (l *listener) Accept() (net.Conn, error) {
	select {
	case c := <-l.queue:
		return c, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

func (l *listener) Close() error {
	closed := false
	l.once.Do(func() {
		close(l.done)
		closed = true
	})
	if !closed {
		return net.ErrClosed
	}
	// A connection dialed but never accepted goes away with the listener.
	select {
	case c := <-l.queue:
		_ = c.Close()
	default:
	}
	l.t.unbind(l)
	return nil
}

func (l *listener) Addr() net.Addr {
	return addr(l.path)
}
