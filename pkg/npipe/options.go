package npipe

import (
	"context"
	"fmt"

	cerrdefs "github.com/containerd/errdefs"
)

// CleanupPolicy selects what happens to the named pipe object when the
// owning Pipe is discarded without an explicit Close.
type CleanupPolicy int

const (
	// RemoveOnDiscard releases the pipe object (closing every connection the
	// handle holds) once the owning Pipe becomes unreachable.
	RemoveOnDiscard CleanupPolicy = iota
	// KeepOnDiscard leaves the pipe object alone on discard; it is released
	// by an explicit Close, or when the process exits.
	KeepOnDiscard
)

func (c CleanupPolicy) String() string {
	switch c {
	case RemoveOnDiscard:
		return "remove-on-discard"
	case KeepOnDiscard:
		return "keep-on-discard"
	default:
		return fmt.Sprintf("CleanupPolicy(%d)", int(c))
	}
}

func (c CleanupPolicy) validate() error {
	switch c {
	case RemoveOnDiscard, KeepOnDiscard:
		return nil
	default:
		return fmt.Errorf("invalid cleanup policy %d: %w", int(c), cerrdefs.ErrInvalidArgument)
	}
}

// PipeConfig holds the settings used when binding the server end of a pipe.
// Zero values select the platform defaults.
type PipeConfig struct {
	// SecurityDescriptor is an SDDL string applied to the pipe. Empty means
	// the default descriptor (creator and administrators).
	SecurityDescriptor string
	// InputBufferSize is the size of the pipe's inbound buffer in bytes.
	InputBufferSize int32
	// OutputBufferSize is the size of the pipe's outbound buffer in bytes.
	OutputBufferSize int32
}

type config struct {
	// ctx is used for logging and for the lazy dial/accept done by I/O calls.
	ctx context.Context
	// transport overrides the platform transport.
	transport Transport
	// pipeConfig is handed to the platform transport when transport is nil.
	pipeConfig PipeConfig
}

// Opt is a configuration option for [Open] and [Create].
type Opt func(*config) error

// WithTransport replaces the platform named-pipe transport.
func WithTransport(t Transport) Opt {
	return func(c *config) error {
		if t == nil {
			return fmt.Errorf("transport must not be nil: %w", cerrdefs.ErrInvalidArgument)
		}
		c.transport = t
		return nil
	}
}

// WithPipeConfig sets the buffer sizes and security descriptor used when the
// pipe is bound for reading. It is ignored when [WithTransport] is used.
func WithPipeConfig(pc PipeConfig) Opt {
	return func(c *config) error {
		if pc.InputBufferSize < 0 || pc.OutputBufferSize < 0 {
			return fmt.Errorf("pipe buffer sizes must not be negative: %w", cerrdefs.ErrInvalidArgument)
		}
		c.pipeConfig = pc
		return nil
	}
}

// WithContext sets the context used for logging and for the connections that
// reads and writes establish lazily. Cancelling it aborts a pending lazy
// connect or accept.
func WithContext(ctx context.Context) Opt {
	return func(c *config) error {
		if ctx == nil {
			return fmt.Errorf("context must not be nil: %w", cerrdefs.ErrInvalidArgument)
		}
		c.ctx = ctx
		return nil
	}
}
