package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"fileman/internal/ops"
)

func exactArgs(n int, names string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return usageErrorf("%s expects %s, got %d argument(s)", cmd.Name(), names, len(args))
		}
		return nil
	}
}

func newInstallCmd(g *globalFlags, streams Streams) *cobra.Command {
	var (
		url           string
		createParents bool
	)
	cmd := &cobra.Command{
		Use:   "install <destination> --url URL",
		Short: "Download URL to destination, replacing any existing file",
		Args:  exactArgs(1, "<destination>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstall(cmd.Context(), g, streams, args[0], url, createParents)
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "http(s) URL to fetch (required)")
	cmd.Flags().BoolVar(&createParents, "create-parents", false, "Create missing parent directories of the destination")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func newDeleteCmd(g *globalFlags, streams Streams) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <target>",
		Short: "Delete a file, or a directory and everything under it",
		Args:  exactArgs(1, "<target>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(cmd.Context(), g, streams, args[0], yes)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func newMoveCmd(g *globalFlags, streams Streams) *cobra.Command {
	var force, createParents bool
	cmd := &cobra.Command{
		Use:   "move <source> <destination>",
		Short: "Move a file or directory",
		Long: `Move renames source to destination. An existing file or non-empty
directory at the destination is refused unless --force is given. Moves across
filesystems fall back to copy then rename.`,
		Args: exactArgs(2, "<source> <destination>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMove(cmd.Context(), g, streams, args[0], args[1], force, createParents)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Replace an existing destination")
	cmd.Flags().BoolVar(&createParents, "create-parents", false, "Create missing parent directories of the destination")
	return cmd
}

func runInstall(ctx context.Context, g *globalFlags, streams Streams, dst, url string, createParents bool) error {
	a, err := newApp(g, streams)
	if err != nil {
		return err
	}
	defer a.Close()

	if createParents {
		a.cfg.Transfer.CreateParents = true
	}
	return a.run(ctx, ops.Install{Destination: dst, Source: url})
}

func runDelete(ctx context.Context, g *globalFlags, streams Streams, target string, yes bool) error {
	a, err := newApp(g, streams)
	if err != nil {
		return err
	}
	defer a.Close()

	if !yes && !g.dryRun {
		ok, err := confirmDelete(streams, target)
		if err != nil {
			return runtimeError(fmt.Errorf("read confirmation: %w", err))
		}
		if !ok {
			a.logger.Info().Str("path", target).Msg("delete declined")
			printWarning(streams.Out, "Safely exiting, nothing was deleted")
			return nil
		}
	}
	return a.run(ctx, ops.Delete{Target: target})
}

func runMove(ctx context.Context, g *globalFlags, streams Streams, src, dst string, force, createParents bool) error {
	a, err := newApp(g, streams)
	if err != nil {
		return err
	}
	defer a.Close()

	if createParents {
		a.cfg.Move.CreateParents = true
	}
	return a.run(ctx, ops.Move{Source: src, Destination: dst, Force: force})
}
