// Package cli is the command-line surface of fileman. It turns arguments into
// ops.Operation values, runs them through the engine and maps the Result to an
// exit code.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"fileman/internal/exitcodes"
)

// Streams are the process standard streams; tests substitute buffers
type Streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// StdStreams returns the real stdin, stdout and stderr
func StdStreams() Streams {
	return Streams{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}
}

type globalFlags struct {
	configPath string
	dryRun     bool
	verbose    int
	noProgress bool
}

// exitError carries an exit code out of a command. A nil err means the
// message was already rendered.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func usageErrorf(format string, args ...interface{}) error {
	return &exitError{code: exitcodes.InvalidUsage, err: fmt.Errorf(format, args...)}
}

func runtimeError(err error) error {
	return &exitError{code: exitcodes.RuntimeError, err: err}
}

// Execute runs the command line and returns the process exit code
func Execute(version string, args []string, streams Streams) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return execute(ctx, version, args, streams)
}

func execute(ctx context.Context, version string, args []string, streams Streams) int {
	root := newRootCmd(version, streams)
	root.SetArgs(args)
	return exitCode(root.ExecuteContext(ctx), streams.Err)
}

// exitCode renders err and picks the exit code. Errors not raised by our own
// commands come from cobra argument or flag parsing.
func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return exitcodes.Success
	}
	var ee *exitError
	if !errors.As(err, &ee) {
		printError(stderr, err.Error())
		return exitcodes.InvalidUsage
	}
	if ee.err != nil {
		printError(stderr, ee.err.Error())
	}
	return ee.code
}

func newRootCmd(version string, streams Streams) *cobra.Command {
	g := &globalFlags{}
	legacy := &legacyFlags{}

	root := &cobra.Command{
		Use:   "fileman",
		Short: "Install, delete and move files",
		Long: `fileman installs files fetched over HTTP, deletes files and directories,
and moves them, reporting every outcome with a distinct exit code.

The single-switch forms of earlier releases are still accepted, with PATH
before or after the switch:
  fileman -i PATH --url URL
  fileman -d PATH
  fileman PATH -m --move-to DEST`,
		Version:       version,
		Args:          legacy.args,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLegacy(cmd, g, legacy, args, streams)
		},
	}
	root.SetVersionTemplate("{{.Version}}\n")
	root.SetIn(streams.In)
	root.SetOut(streams.Out)
	root.SetErr(streams.Err)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &exitError{code: exitcodes.InvalidUsage, err: err}
	})

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "Config file (default: first of $XDG_CONFIG_HOME/fileman/config.{yaml,yml,toml})")
	pf.BoolVar(&g.dryRun, "dry-run", false, "Resolve and check the operation without changing anything")
	pf.CountVarP(&g.verbose, "verbose", "v", "Increase console log verbosity (-v info, -vv debug, -vvv trace)")
	pf.BoolVar(&g.noProgress, "no-progress", false, "Disable the download progress bar")

	legacy.register(root)

	root.AddCommand(
		newInstallCmd(g, streams),
		newDeleteCmd(g, streams),
		newMoveCmd(g, streams),
		newHistoryCmd(g, streams),
	)
	return root
}
