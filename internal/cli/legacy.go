package cli

import (
	"github.com/spf13/cobra"
)

// legacyFlags are the single-switch modes on the root command. The path is
// positional, so `fileman PATH -d` and `fileman -d PATH` are the same call.
type legacyFlags struct {
	install bool
	delete  bool
	move    bool
	url     string
	moveTo  string
	yes     bool
}

func (l *legacyFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.BoolVarP(&l.install, "install", "i", false, "Install to PATH (requires --url)")
	f.BoolVarP(&l.delete, "delete", "d", false, "Delete PATH")
	f.BoolVarP(&l.move, "move", "m", false, "Move PATH (requires --move-to)")
	f.StringVar(&l.url, "url", "", "URL to install from")
	f.StringVar(&l.moveTo, "move-to", "", "Destination of a move")
	f.BoolVarP(&l.yes, "yes", "y", false, "Do not ask before deleting")
}

func (l *legacyFlags) modes() int {
	n := 0
	for _, on := range []bool{l.install, l.delete, l.move} {
		if on {
			n++
		}
	}
	return n
}

// args rejects stray words as unknown commands unless a mode switch is set
func (l *legacyFlags) args(cmd *cobra.Command, args []string) error {
	if l.modes() == 0 {
		return cobra.NoArgs(cmd, args)
	}
	return nil
}

// validate enforces exactly one mode, one PATH and the flags each mode accepts
func (l *legacyFlags) validate(cmd *cobra.Command, args []string) error {
	switch l.modes() {
	case 0:
		return usageErrorf("no operation given; run 'fileman --help'")
	case 1:
	default:
		return usageErrorf("choose exactly one of --install, --delete or --move")
	}
	if len(args) != 1 {
		return usageErrorf("expects exactly one PATH, got %d", len(args))
	}

	f := cmd.Flags()
	hasURL := f.Changed("url")
	hasMoveTo := f.Changed("move-to")
	switch {
	case l.install:
		if !hasURL {
			return usageErrorf("--install requires --url")
		}
		if hasMoveTo {
			return usageErrorf("--move-to is only valid with --move")
		}
	case l.delete:
		if hasURL {
			return usageErrorf("--url is only valid with --install")
		}
		if hasMoveTo {
			return usageErrorf("--move-to is only valid with --move")
		}
	case l.move:
		if hasURL {
			return usageErrorf("--url is only valid with --install")
		}
		if !hasMoveTo {
			return usageErrorf("--move requires --move-to")
		}
	}
	if l.yes && !l.delete {
		return usageErrorf("--yes is only valid with --delete")
	}
	return nil
}

func runLegacy(cmd *cobra.Command, g *globalFlags, l *legacyFlags, args []string, streams Streams) error {
	if err := l.validate(cmd, args); err != nil {
		return err
	}
	ctx := cmd.Context()
	path := args[0]
	switch {
	case l.install:
		return runInstall(ctx, g, streams, path, l.url, false)
	case l.delete:
		return runDelete(ctx, g, streams, path, l.yes)
	default:
		return runMove(ctx, g, streams, path, l.moveTo, false, false)
	}
}
