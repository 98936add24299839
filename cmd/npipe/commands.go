package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/containerd/log"
	"github.com/spf13/cobra"
)

func newCreateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "create [OPTIONS]",
		Short: "Create an anonymous pipe and copy what is written to it to stdout",
		Long: "Create an anonymous pipe, print its name on stderr, and copy everything\n" +
			"the first writer sends to stdout until it disconnects.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := opts.open(ctx, "")
			if err != nil {
				return err
			}
			defer p.Close()

			fmt.Fprintln(cmd.ErrOrStderr(), p.Path())
			if err := opts.accept(ctx, p); err != nil {
				return err
			}
			n, err := io.Copy(cmd.OutOrStdout(), p)
			log.G(ctx).WithField("pipe", p.Path()).Debugf("received %d bytes", n)
			return err
		},
	}
}

func newReadCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "read [OPTIONS] PIPE SIZE",
		Short: "Read up to SIZE bytes from a pipe",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			size, err := strconv.Atoi(args[1])
			if err != nil || size < 0 {
				return fmt.Errorf("invalid size %q: must be a non-negative integer", args[1])
			}
			ctx := cmd.Context()
			p, err := opts.open(ctx, args[0])
			if err != nil {
				return err
			}
			defer p.Close()

			if err := opts.accept(ctx, p); err != nil {
				return err
			}
			b, err := p.ReadBytes(size)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}
}

func newCatCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cat [OPTIONS] PIPE",
		Short: "Copy everything written to a pipe to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := opts.open(ctx, args[0])
			if err != nil {
				return err
			}
			defer p.Close()

			if err := opts.accept(ctx, p); err != nil {
				return err
			}
			_, err = io.Copy(cmd.OutOrStdout(), p)
			return err
		},
	}
}

func newWriteCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "write [OPTIONS] PIPE DATA",
		Short: "Write DATA to a pipe",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := opts.open(ctx, args[0])
			if err != nil {
				return err
			}
			defer p.Close()

			if err := opts.connect(ctx, p); err != nil {
				return err
			}
			_, err = p.WriteString(args[1])
			return err
		},
	}
}

func newSendCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "send [OPTIONS] PIPE",
		Short: "Copy stdin to a pipe",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := opts.open(ctx, args[0])
			if err != nil {
				return err
			}
			defer p.Close()

			if err := opts.connect(ctx, p); err != nil {
				return err
			}
			n, err := io.Copy(p, cmd.InOrStdin())
			log.G(ctx).WithField("pipe", p.Path()).Debugf("sent %d bytes", n)
			return err
		},
	}
}
