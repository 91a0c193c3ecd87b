package ops

import "time"

// Progress is emitted after each chunk written during an install.
// Total is negative when the remote did not declare a length.
type Progress struct {
	Bytes int64
	Total int64
}

// Indeterminate reports whether the total size is unknown
func (p Progress) Indeterminate() bool {
	return p.Total < 0
}

// Percent returns completion in [0,100], or -1 when indeterminate
func (p Progress) Percent() float64 {
	if p.Indeterminate() {
		return -1
	}
	if p.Total == 0 {
		return 100
	}
	return float64(p.Bytes) / float64(p.Total) * 100
}

// ProgressSink receives progress events. Implementations must not block for long:
// they run on the transfer loop.
type ProgressSink interface {
	Progress(p Progress)
}

// NopSink discards progress events
type NopSink struct{}

func (NopSink) Progress(Progress) {}

// Result is the outcome of executing one Operation. Err is nil on success.
type Result struct {
	Op       Kind
	Summary  string
	Bytes    int64
	Duration time.Duration
	Err      *Error
}

func (r Result) OK() bool {
	return r.Err == nil
}

// Succeeded builds a success Result
func Succeeded(op Kind, summary string, bytes int64) Result {
	return Result{Op: op, Summary: summary, Bytes: bytes}
}

// Failed builds a failure Result from any error
func Failed(op Kind, path string, err error) Result {
	return Result{Op: op, Err: AsError(op, path, err)}
}
