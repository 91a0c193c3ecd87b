package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/pterm/pterm"

	"fileman/internal/ops"
)

type progressSink interface {
	ops.ProgressSink
	Stop()
}

type nopProgress struct{}

func (nopProgress) Progress(ops.Progress) {}
func (nopProgress) Stop()                 {}

// newProgress renders install progress on w: a bar when the size is known,
// a spinner otherwise. Nothing is drawn unless w is a terminal.
func newProgress(w io.Writer, title string, enabled bool) progressSink {
	if !enabled || !isTerminal(w) {
		return nopProgress{}
	}
	return &terminalProgress{out: w, title: title}
}

type terminalProgress struct {
	out     io.Writer
	title   string
	bar     *pterm.ProgressbarPrinter
	spinner *pterm.SpinnerPrinter
	last    int64
	failed  bool
}

func (p *terminalProgress) Progress(ev ops.Progress) {
	if p.failed {
		return
	}
	if ev.Indeterminate() {
		p.spin(ev.Bytes)
		return
	}
	if p.bar == nil {
		bar, err := pterm.DefaultProgressbar.
			WithTotal(int(ev.Total)).
			WithTitle(p.title).
			WithWriter(p.out).
			WithRemoveWhenDone(true).
			Start()
		if err != nil {
			p.failed = true
			return
		}
		p.bar = bar
	}
	p.bar.Add(int(ev.Bytes - p.last))
	p.last = ev.Bytes
}

func (p *terminalProgress) spin(bytes int64) {
	if p.spinner == nil {
		spinner, err := pterm.DefaultSpinner.
			WithWriter(p.out).
			WithRemoveWhenDone(true).
			Start(p.title)
		if err != nil {
			p.failed = true
			return
		}
		p.spinner = spinner
	}
	p.spinner.UpdateText(fmt.Sprintf("%s (%s)", p.title, formatBytes(bytes)))
}

func (p *terminalProgress) Stop() {
	if p.bar != nil {
		_, _ = p.bar.Stop()
	}
	if p.spinner != nil {
		_ = p.spinner.Stop()
	}
}

func isTerminal(v interface{}) bool {
	f, ok := v.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
