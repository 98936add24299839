// Package npipe provides a duplex byte stream over a named pipe.
//
// A [Pipe] addresses one pipe name and uses it in two independent roles: the
// first write connects to the pipe as a client, and the first read binds the
// name and accepts exactly one peer. Each role is set up lazily and reused
// until the pipe is flushed or closed.
//
// A peer that goes away while a read is in progress is not an error. ReadByte
// and ReadBytes return what they got (a zero byte, or a short slice), and Read
// reports io.EOF.
package npipe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime"
	"strings"
	"sync"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/containerd/log"
)

// Pipe is a handle to a named pipe. The handle returned by [Open] or [Create]
// owns the pipe; handles made with [Pipe.Clone] share the name but never
// release the pipe on discard.
//
// A Pipe may be closed from any goroutine, which unblocks pending I/O, but
// reads (and writes) must not be issued concurrently with each other.
type Pipe struct {
	path      string
	cleanup   CleanupPolicy
	owner     bool
	ctx       context.Context
	transport Transport

	mu      sync.Mutex
	writer  net.Conn
	reader  net.Conn
	pending net.Listener
	closed  bool
}

// Open returns a handle for the pipe at path. No connection is made and the
// path is not checked until the first read or write.
func Open(path string, cleanup CleanupPolicy, opts ...Opt) (*Pipe, error) {
	if err := cleanup.validate(); err != nil {
		return nil, err
	}
	cfg := config{ctx: context.Background()}
	for _, op := range opts {
		if err := op(&cfg); err != nil {
			return nil, err
		}
	}
	if cfg.transport == nil {
		cfg.transport = newDefaultTransport(cfg.pipeConfig)
	}

	p := &Pipe{
		path:      path,
		cleanup:   cleanup,
		owner:     true,
		ctx:       cfg.ctx,
		transport: cfg.transport,
	}
	if cleanup == RemoveOnDiscard {
		runtime.SetFinalizer(p, (*Pipe).discard)
	} else {
		runtime.SetFinalizer(p, (*Pipe).dropWriter)
	}
	return p, nil
}

// Create returns a handle for a new pipe with a random name (see
// [GenerateName]).
func Create(cleanup CleanupPolicy, opts ...Opt) (*Pipe, error) {
	return Open(GenerateName(), cleanup, opts...)
}

// Path returns the name of the pipe.
func (p *Pipe) Path() string {
	return p.path
}

func (p *Pipe) String() string {
	return p.path
}

// IsOwner reports whether discarding p may release the pipe.
func (p *Pipe) IsOwner() bool {
	return p.owner
}

// IsClosed reports whether Close has been called on p.
func (p *Pipe) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Clone returns a new handle for the same pipe. The clone starts without
// connections and never releases the pipe when discarded, whatever the
// cleanup policy of p.
func (p *Pipe) Clone() *Pipe {
	c := &Pipe{
		path:      p.path,
		cleanup:   p.cleanup,
		ctx:       p.ctx,
		transport: p.transport,
	}
	runtime.SetFinalizer(c, (*Pipe).dropWriter)
	return c
}

// Connect connects the writing end of p if it is not connected yet. Writes
// do this on their own; Connect lets the caller bound the wait with ctx.
func (p *Pipe) Connect(ctx context.Context) error {
	_, err := p.writerConn(ctx)
	return err
}

// Accept binds the pipe and waits for one peer if the reading end of p is
// not connected yet. Reads do this on their own; Accept lets the caller
// bound the wait with ctx.
func (p *Pipe) Accept(ctx context.Context) error {
	_, err := p.readerConn(ctx)
	return err
}

// Write writes b to the pipe, connecting to it first if needed.
func (p *Pipe) Write(b []byte) (int, error) {
	conn, err := p.writerConn(p.ctx)
	if err != nil {
		return 0, err
	}
	n, err := conn.Write(b)
	if err != nil {
		return n, &OpError{Op: "write", Path: p.path, Err: err}
	}
	return n, nil
}

// WriteByte writes a single byte to the pipe.
func (p *Pipe) WriteByte(c byte) error {
	_, err := p.Write([]byte{c})
	return err
}

// WriteString writes s to the pipe.
func (p *Pipe) WriteString(s string) (int, error) {
	return p.Write([]byte(s))
}

// Read implements io.Reader. It accepts a peer first if needed. A peer
// disconnect is reported as 0, io.EOF, the io.Reader form of end-of-stream,
// rather than as an error; a zero-length read with a nil error never means
// the peer has gone.
func (p *Pipe) Read(b []byte) (int, error) {
	conn, err := p.readerConn(p.ctx)
	if err != nil {
		return 0, err
	}
	n, err := conn.Read(b)
	if err != nil {
		if p.transport.IsDisconnect(err) {
			return n, io.EOF
		}
		return n, &OpError{Op: "read", Path: p.path, Err: err}
	}
	return n, nil
}

// ReadByte reads a single byte, accepting a peer first if needed. If the
// peer has disconnected it returns 0 and no error.
func (p *Pipe) ReadByte() (byte, error) {
	conn, err := p.readerConn(p.ctx)
	if err != nil {
		return 0, err
	}
	var b [1]byte
	if _, err := conn.Read(b[:]); err != nil && !p.transport.IsDisconnect(err) {
		return 0, &OpError{Op: "read", Path: p.path, Err: err}
	}
	return b[0], nil
}

// maxReadPrealloc caps the buffer ReadBytes allocates before any data arrives.
const maxReadPrealloc = 64 << 10

// ReadBytes reads up to size bytes, accepting a peer first if needed. It
// blocks until size bytes have arrived or the peer disconnects; in the latter
// case the returned slice holds only the bytes received and the error is nil.
func (p *Pipe) ReadBytes(size int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("negative read size %d: %w", size, cerrdefs.ErrInvalidArgument)
	}
	conn, err := p.readerConn(p.ctx)
	if err != nil {
		return nil, err
	}
	// The buffer grows with the data; size may be far more than the peer sends.
	buf := bytes.NewBuffer(make([]byte, 0, min(size, maxReadPrealloc)))
	if _, err := io.CopyN(buf, conn, int64(size)); err != nil {
		if errors.Is(err, io.EOF) || p.transport.IsDisconnect(err) {
			return buf.Bytes(), nil
		}
		return buf.Bytes(), &OpError{Op: "read", Path: p.path, Err: err}
	}
	return buf.Bytes(), nil
}

// ReadString reads up to size bytes like ReadBytes and decodes them as UTF-8.
// Invalid sequences are replaced with U+FFFD.
func (p *Pipe) ReadString(size int) (string, error) {
	b, err := p.ReadBytes(size)
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(b), "\uFFFD"), nil
}

// Flush drops the writing connection and connects again, so that everything
// written so far is pushed to the peer. It connects even if nothing was
// written yet. The reading connection, if any, is flushed too.
func (p *Pipe) Flush() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	old, reader := p.writer, p.reader
	p.writer = nil
	p.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil && !isClosedErr(err) {
			log.G(p.ctx).WithError(err).WithField("pipe", p.path).Debug("error closing pipe writer")
		}
	}
	if _, err := p.writerConn(p.ctx); err != nil {
		return err
	}

	if f, ok := reader.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return &OpError{Op: "flush", Path: p.path, Err: err}
		}
	}
	return nil
}

// Close releases every connection held by p and makes it unusable. It is
// safe to call more than once and always returns nil.
func (p *Pipe) Close() error {
	if err := p.close(); err != nil {
		log.G(p.ctx).WithError(err).WithField("pipe", p.path).Debug("error releasing pipe")
	}
	return nil
}

// dropWriter runs when a handle that does not remove the pipe becomes
// unreachable. Only the client connection is closed; the pipe itself is left
// to whoever owns it.
func (p *Pipe) dropWriter() {
	p.mu.Lock()
	writer := p.writer
	p.writer = nil
	p.mu.Unlock()
	if writer == nil {
		return
	}
	if err := writer.Close(); err != nil && !isClosedErr(err) {
		log.G(p.ctx).WithError(err).WithField("pipe", p.path).Error("error closing pipe writer")
	}
}

// discard runs when an owning pipe becomes unreachable without being closed.
func (p *Pipe) discard() {
	if err := p.close(); err != nil {
		log.G(p.ctx).WithError(err).WithField("pipe", p.path).Error("error closing pipe")
	}
}

func (p *Pipe) close() error {
	p.mu.Lock()
	p.closed = true
	writer, reader, pending := p.writer, p.reader, p.pending
	p.writer, p.reader, p.pending = nil, nil, nil
	p.mu.Unlock()

	runtime.SetFinalizer(p, nil)

	var errs []error
	for _, c := range []io.Closer{writer, reader, pending} {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && !isClosedErr(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Pipe) writerConn(ctx context.Context) (net.Conn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	if conn := p.writer; conn != nil {
		p.mu.Unlock()
		return conn, nil
	}
	p.mu.Unlock()

	conn, err := p.transport.Dial(ctx, p.path)
	if err != nil {
		return nil, &OpError{Op: "connect", Path: p.path, Err: err}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		_ = conn.Close()
		return nil, ErrClosed
	}
	if p.writer != nil {
		_ = conn.Close()
		return p.writer, nil
	}
	p.writer = conn
	log.G(ctx).WithField("pipe", p.path).Debug("connected pipe writer")
	return conn, nil
}

func (p *Pipe) readerConn(ctx context.Context) (net.Conn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	if conn := p.reader; conn != nil {
		p.mu.Unlock()
		return conn, nil
	}
	if p.pending != nil {
		p.mu.Unlock()
		return nil, errAcceptInProgress
	}
	l, err := p.transport.Listen(p.path)
	if err != nil {
		p.mu.Unlock()
		return nil, &OpError{Op: "listen", Path: p.path, Err: err}
	}
	p.pending = l
	p.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		_ = l.Close()
	})
	conn, err := l.Accept()
	stop()
	// Only one peer is ever accepted per listener.
	if cerr := l.Close(); cerr != nil && !isClosedErr(cerr) {
		log.G(ctx).WithError(cerr).WithField("pipe", p.path).Debug("error closing pipe listener")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = nil
	if err != nil {
		if p.closed {
			return nil, ErrClosed
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, &OpError{Op: "accept", Path: p.path, Err: err}
	}
	if p.closed {
		_ = conn.Close()
		return nil, ErrClosed
	}
	p.reader = conn
	log.G(ctx).WithField("pipe", p.path).Debug("accepted pipe reader")
	return conn, nil
}
