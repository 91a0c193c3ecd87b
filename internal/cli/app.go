package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"fileman/internal/config"
	"fileman/internal/disk"
	"fileman/internal/engine"
	"fileman/internal/exitcodes"
	"fileman/internal/fsops"
	"fileman/internal/history"
	"fileman/internal/logging"
	"fileman/internal/metrics"
	"fileman/internal/ops"
	"fileman/internal/paths"
	"fileman/internal/safety"
	"fileman/internal/transfer"
)

// app holds what one invocation needs: configuration, logger and the
// optional history and metrics sinks
type app struct {
	cfg     *config.Config
	flags   *globalFlags
	streams Streams
	logger  zerolog.Logger
	closers []io.Closer
}

func newApp(g *globalFlags, streams Streams) (*app, error) {
	cfg, err := config.LoadOrDefault(g.configPath)
	if err != nil {
		return nil, &exitError{code: exitcodes.InvalidUsage, err: fmt.Errorf("load config: %w", err)}
	}

	logger, closer := logging.New(cfg.Log, g.verbose, streams.Err)
	logger.Debug().
		Str("config", cfg.Source).
		Bool("dry_run", g.dryRun).
		Msg("configuration loaded")

	return &app{
		cfg:     cfg,
		flags:   g,
		streams: streams,
		logger:  logger,
		closers: []io.Closer{closer},
	}, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn().Err(err).Msg("close failed")
		}
	}
	a.closers = nil
}

func (a *app) openHistory() (*history.DB, error) {
	db, err := history.Open(a.cfg.History.Path)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db)
	return db, nil
}

// newEngine wires the OS filesystem, the HTTP transferer and the observers
// selected by configuration
func (a *app) newEngine(sink ops.ProgressSink, m *metrics.Metrics) *engine.Engine {
	cfg := a.cfg
	osfs := fsops.NewOSFS()
	validator := safety.NewValidator(cfg.Safety.AllowedRoots, cfg.Safety.ProtectedPaths)

	fileOps := fsops.New(osfs, validator, fsops.Options{
		CrossDevice:   cfg.Move.CrossDevice,
		CreateParents: cfg.Move.CreateParents,
		Space:         disk.FreeBytes,
	}, a.logger)

	tr := transfer.New(osfs, transfer.Options{
		ChunkSize:         cfg.Transfer.ChunkSize,
		ConnectTimeout:    cfg.Transfer.ConnectTimeout(),
		HeaderTimeout:     cfg.Transfer.HeaderTimeout(),
		Timeout:           cfg.Transfer.Timeout(),
		UserAgent:         cfg.Transfer.UserAgent,
		MaxBytesPerSecond: cfg.Transfer.MaxBytesPerSecond,
		CreateParents:     cfg.Transfer.CreateParents,
		CheckFreeSpace:    cfg.Transfer.CheckFreeSpace,
		Space:             disk.FreeBytes,
		Validator:         validator,
	}, a.logger)

	var observers []engine.Observer
	if cfg.History.Enabled {
		db, err := a.openHistory()
		if err != nil {
			// History is a record of what happened, not a precondition
			a.logger.Warn().Err(err).Str("path", cfg.History.Path).Msg("history disabled for this run")
		} else {
			observers = append(observers, db)
		}
	}
	if m != nil {
		observers = append(observers, m)
	}

	return engine.New(engine.Deps{
		Resolver:   paths.NewResolver(osfs, nil),
		Transferer: tr,
		FileOps:    fileOps,
		Sink:       sink,
		Observers:  observers,
		Logger:     a.logger,
	}, engine.Options{DryRun: a.flags.dryRun})
}

// run executes op and renders its Result. A failed Result becomes an
// exitError carrying the kind's exit code.
func (a *app) run(ctx context.Context, op ops.Operation) error {
	var sink progressSink = nopProgress{}
	if install, ok := op.(ops.Install); ok && !a.flags.dryRun {
		sink = newProgress(a.streams.Err, install.Destination, !a.flags.noProgress)
	}

	var m *metrics.Metrics
	if a.cfg.Metrics.Textfile != "" {
		m = metrics.New()
	}

	res := a.newEngine(sink, m).Execute(ctx, op)
	sink.Stop()

	if m != nil {
		if err := m.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
			a.logger.Warn().Err(err).Str("path", a.cfg.Metrics.Textfile).Msg("metrics not exported")
		}
	}

	if !res.OK() {
		printError(a.streams.Err, fmt.Sprintf("%s: %s", res.Err.Kind, res.Err.Detail()))
		return &exitError{code: exitcodes.ForResult(res)}
	}
	printSuccess(a.streams.Out, res.Summary)
	return nil
}
