// Package engine executes one Operation against injected collaborators and
// folds the outcome into a Result. It never prints, never retries and never
// touches the filesystem or network itself.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"fileman/internal/ops"
	"fileman/internal/scan"
)

// Resolver turns raw path strings into resolved paths
type Resolver interface {
	Resolve(raw string) (ops.Path, error)
}

// Transferer fetches a URL into a destination path
type Transferer interface {
	Fetch(ctx context.Context, url string, dst ops.Path, sink ops.ProgressSink) (int64, error)
	CheckDestination(dst ops.Path) error
}

// FileOps performs local deletes and moves
type FileOps interface {
	Delete(target ops.Path) (scan.Usage, error)
	CheckDelete(target ops.Path) error
	Move(src, dst ops.Path, force bool) (scan.Usage, error)
	CheckMove(src, dst ops.Path, force bool) error
}

// Event describes one finished Execute call
type Event struct {
	Operation ops.Operation
	// Source is the URL of an install or the resolved source of a move
	Source string
	// Target is the resolved destination of an install or move, or the deleted path
	Target    string
	Result    ops.Result
	StartedAt time.Time
	DryRun    bool
}

// Observer is notified after every Execute. Errors are logged and never
// change the Result.
type Observer interface {
	Observe(ctx context.Context, ev Event) error
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(ctx context.Context, ev Event) error

func (f ObserverFunc) Observe(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Deps are the collaborators the engine dispatches to
type Deps struct {
	Resolver   Resolver
	Transferer Transferer
	FileOps    FileOps
	Sink       ops.ProgressSink
	Observers  []Observer
	Logger     zerolog.Logger
	// Now defaults to time.Now
	Now func() time.Time
}

// Options are per-engine behaviour switches
type Options struct {
	// DryRun resolves and checks every operation but performs no mutation
	DryRun bool
}

// Engine is stateless between calls; one value can execute any number of
// operations sequentially
type Engine struct {
	deps Deps
	opts Options
}

// New creates an Engine
func New(deps Deps, opts Options) *Engine {
	if deps.Sink == nil {
		deps.Sink = ops.NopSink{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Engine{deps: deps, opts: opts}
}

// Execute validates op, resolves its paths, dispatches to the matching
// component and reports the outcome
func (e *Engine) Execute(ctx context.Context, op ops.Operation) ops.Result {
	start := e.deps.Now()
	ev := Event{Operation: op, StartedAt: start, DryRun: e.opts.DryRun}

	var res ops.Result
	if op == nil {
		res = ops.Failed("", "", ops.Errorf(ops.InvalidPath, "", "", "no operation given"))
	} else if err := op.Validate(); err != nil {
		res = ops.Failed(op.Kind(), "", err)
	} else {
		switch o := op.(type) {
		case ops.Install:
			res = e.install(ctx, o, &ev)
		case ops.Delete:
			res = e.delete(o, &ev)
		case ops.Move:
			res = e.move(o, &ev)
		default:
			res = ops.Failed(op.Kind(), "", ops.Errorf(ops.InvalidPath, op.Kind(), "", "unsupported operation %T", op))
		}
	}
	res.Duration = e.deps.Now().Sub(start)
	ev.Result = res

	e.log(ev)
	e.notify(ctx, ev)
	return res
}

func (e *Engine) install(ctx context.Context, o ops.Install, ev *Event) ops.Result {
	source := strings.TrimSpace(o.Source)
	ev.Source = source
	dst, err := e.deps.Resolver.Resolve(o.Destination)
	if err != nil {
		return ops.Failed(ops.KindInstall, o.Destination, err)
	}
	ev.Target = dst.Abs

	if e.opts.DryRun {
		if err := e.deps.Transferer.CheckDestination(dst); err != nil {
			return ops.Failed(ops.KindInstall, dst.Abs, err)
		}
		verb := "create"
		if dst.Exists() {
			verb = "replace"
		}
		return ops.Succeeded(ops.KindInstall, dryRun("would %s %s from %s", verb, dst.Abs, source), 0)
	}

	n, err := e.deps.Transferer.Fetch(ctx, source, dst, e.deps.Sink)
	if err != nil {
		return ops.Failed(ops.KindInstall, dst.Abs, err)
	}
	return ops.Succeeded(ops.KindInstall, fmt.Sprintf("installed %s -> %s (%d bytes)", source, dst.Abs, n), n)
}

func (e *Engine) delete(o ops.Delete, ev *Event) ops.Result {
	target, err := e.deps.Resolver.Resolve(o.Target)
	if err != nil {
		return ops.Failed(ops.KindDelete, o.Target, err)
	}
	ev.Target = target.Abs

	if e.opts.DryRun {
		if err := e.deps.FileOps.CheckDelete(target); err != nil {
			return ops.Failed(ops.KindDelete, target.Abs, err)
		}
		return ops.Succeeded(ops.KindDelete, dryRun("would delete %s %s", target.State, target.Abs), 0)
	}

	usage, err := e.deps.FileOps.Delete(target)
	if err != nil {
		return ops.Failed(ops.KindDelete, target.Abs, err)
	}
	return ops.Succeeded(ops.KindDelete, fmt.Sprintf("deleted %s (%s)", target.Abs, usage), usage.Bytes)
}

func (e *Engine) move(o ops.Move, ev *Event) ops.Result {
	src, err := e.deps.Resolver.Resolve(o.Source)
	if err != nil {
		return ops.Failed(ops.KindMove, o.Source, err)
	}
	ev.Source = src.Abs
	dst, err := e.deps.Resolver.Resolve(o.Destination)
	if err != nil {
		return ops.Failed(ops.KindMove, o.Destination, err)
	}
	ev.Target = dst.Abs

	if e.opts.DryRun {
		if err := e.deps.FileOps.CheckMove(src, dst, o.Force); err != nil {
			return ops.Failed(ops.KindMove, src.Abs, err)
		}
		return ops.Succeeded(ops.KindMove, dryRun("would move %s -> %s", src.Abs, dst.Abs), 0)
	}

	usage, err := e.deps.FileOps.Move(src, dst, o.Force)
	if err != nil {
		return ops.Failed(ops.KindMove, src.Abs, err)
	}
	return ops.Succeeded(ops.KindMove, fmt.Sprintf("moved %s -> %s", src.Abs, dst.Abs), usage.Bytes)
}

func (e *Engine) log(ev Event) {
	res := ev.Result
	var entry *zerolog.Event
	if res.OK() {
		entry = e.deps.Logger.Info()
	} else {
		entry = e.deps.Logger.Warn().
			Str("kind", res.Err.Kind.String()).
			Str("detail", res.Err.Detail())
	}
	entry.
		Str("op", string(res.Op)).
		Str("source", ev.Source).
		Str("target", ev.Target).
		Int64("bytes", res.Bytes).
		Dur("duration", res.Duration).
		Bool("dry_run", ev.DryRun).
		Msg("operation finished")
}

func (e *Engine) notify(ctx context.Context, ev Event) {
	for _, o := range e.deps.Observers {
		if err := o.Observe(ctx, ev); err != nil {
			e.deps.Logger.Error().Err(err).Str("op", string(ev.Result.Op)).Msg("observer failed")
		}
	}
}

func dryRun(format string, args ...interface{}) string {
	return "[dry run] " + fmt.Sprintf(format, args...)
}
