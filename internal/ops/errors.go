package ops

import (
	"errors"
	"fmt"
	"io/fs"
)

// ErrorKind classifies a failed operation. The CLI maps it to an exit code.
type ErrorKind int

const (
	IoError ErrorKind = iota
	InvalidPath
	NotFound
	AlreadyExists
	PermissionDenied
	NetworkError
)

var kindNames = map[ErrorKind]string{
	IoError:          "io_error",
	InvalidPath:      "invalid_path",
	NotFound:         "not_found",
	AlreadyExists:    "already_exists",
	PermissionDenied: "permission_denied",
	NetworkError:     "network_error",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("error_kind(%d)", int(k))
}

// ParseErrorKind is the inverse of ErrorKind.String
func ParseErrorKind(s string) (ErrorKind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return IoError, false
}

// Sentinels for errors.Is. Matching is by Kind only.
var (
	ErrInvalidPath      = &Error{Kind: InvalidPath}
	ErrNotFound         = &Error{Kind: NotFound}
	ErrAlreadyExists    = &Error{Kind: AlreadyExists}
	ErrPermissionDenied = &Error{Kind: PermissionDenied}
	ErrNetwork          = &Error{Kind: NetworkError}
	ErrIO               = &Error{Kind: IoError}
)

// Error is the failure half of a Result
type Error struct {
	Kind ErrorKind
	Op   Kind
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.Op != "" && e.Path != "":
		return fmt.Sprintf("%s %s: %s", e.Op, e.Path, msg)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, msg)
	default:
		return msg
	}
}

// Detail is the human-readable message shown to the user
func (e *Error) Detail() string {
	return e.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// Errorf builds an Error with a formatted message
func Errorf(kind ErrorKind, op Kind, path, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: fmt.Errorf(format, args...)}
}

// Wrap attaches a kind, operation and path to err. It returns nil for a nil err.
func Wrap(kind ErrorKind, op Kind, path string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// Classify maps a host error onto the taxonomy. Errors that already carry a
// kind keep it.
func Classify(err error) ErrorKind {
	var e *Error
	switch {
	case errors.As(err, &e):
		return e.Kind
	case errors.Is(err, fs.ErrNotExist):
		return NotFound
	case errors.Is(err, fs.ErrExist):
		return AlreadyExists
	case errors.Is(err, fs.ErrPermission):
		return PermissionDenied
	default:
		return IoError
	}
}

// AsError returns err as an *Error, classifying it when it is a plain error
func AsError(op Kind, path string, err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		out := *e
		if out.Op == "" {
			out.Op = op
		}
		if out.Path == "" {
			out.Path = path
		}
		return &out
	}
	return Wrap(Classify(err), op, path, err)
}
