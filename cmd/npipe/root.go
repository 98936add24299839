package main

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/containerd/log"
	"github.com/docker/go-units"
	cliflags "github.com/moby/npipe/cli/flags"
	"github.com/moby/npipe/pkg/npipe"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	common     *cliflags.CommonOptions
	bufferSize string
	timeout    time.Duration
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{
		common: cliflags.NewCommonOptions(),
	}

	cmd := &cobra.Command{
		Use:           "npipe [OPTIONS] COMMAND",
		Short:         "Read from and write to named pipes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			opts.common.SetDefaultOptions(cmd.Flags())
			return opts.common.ConfigureLogging(cmd.ErrOrStderr())
		},
	}

	flags := cmd.PersistentFlags()
	opts.common.InstallFlags(flags)
	flags.StringVar(&opts.bufferSize, "buffer-size", "0", "Size of the pipe buffers (e.g. 64k), 0 for the system default")
	flags.DurationVar(&opts.timeout, "timeout", 0, "Maximum time to wait for the peer, 0 to wait forever")

	cmd.AddCommand(
		newCreateCommand(opts),
		newReadCommand(opts),
		newCatCommand(opts),
		newWriteCommand(opts),
		newSendCommand(opts),
	)
	return cmd
}

func (opts *rootOptions) pipeConfig() (npipe.PipeConfig, error) {
	size, err := units.RAMInBytes(opts.bufferSize)
	if err != nil {
		return npipe.PipeConfig{}, fmt.Errorf("invalid buffer size: %w", err)
	}
	if size > math.MaxInt32 {
		return npipe.PipeConfig{}, fmt.Errorf("invalid buffer size: %s exceeds %s", opts.bufferSize, units.BytesSize(math.MaxInt32))
	}
	return npipe.PipeConfig{
		InputBufferSize:  int32(size),
		OutputBufferSize: int32(size),
	}, nil
}

func (opts *rootOptions) pipeOpts(ctx context.Context) ([]npipe.Opt, error) {
	pc, err := opts.pipeConfig()
	if err != nil {
		return nil, err
	}
	return []npipe.Opt{npipe.WithContext(ctx), npipe.WithPipeConfig(pc)}, nil
}

// open returns a handle for path, or for a new pipe if path is empty.
func (opts *rootOptions) open(ctx context.Context, path string) (*npipe.Pipe, error) {
	pipeOpts, err := opts.pipeOpts(ctx)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return npipe.Create(npipe.RemoveOnDiscard, pipeOpts...)
	}
	return npipe.Open(path, npipe.KeepOnDiscard, pipeOpts...)
}

func (opts *rootOptions) waitContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if opts.timeout > 0 {
		return context.WithTimeout(ctx, opts.timeout)
	}
	return context.WithCancel(ctx)
}

func (opts *rootOptions) accept(ctx context.Context, p *npipe.Pipe) error {
	ctx, cancel := opts.waitContext(ctx)
	defer cancel()
	log.G(ctx).WithField("pipe", p.Path()).Debug("waiting for writer")
	return p.Accept(ctx)
}

func (opts *rootOptions) connect(ctx context.Context, p *npipe.Pipe) error {
	ctx, cancel := opts.waitContext(ctx)
	defer cancel()
	log.G(ctx).WithField("pipe", p.Path()).Debug("connecting to reader")
	return p.Connect(ctx)
}
