package exitcodes

import (
	"fileman/internal/ops"
)

// Exit codes for fileman
// These codes form the scripting contract with callers: one code per error kind
const (
	Success          = 0 // Successful execution, including a declined confirmation
	RuntimeError     = 1 // Unexpected failure outside the engine
	InvalidUsage     = 2 // Bad flags, arguments or configuration
	InvalidPath      = 3
	NotFound         = 4
	AlreadyExists    = 5
	PermissionDenied = 6
	NetworkError     = 7
	IoError          = 8
)

var byKind = map[ops.ErrorKind]int{
	ops.InvalidPath:      InvalidPath,
	ops.NotFound:         NotFound,
	ops.AlreadyExists:    AlreadyExists,
	ops.PermissionDenied: PermissionDenied,
	ops.NetworkError:     NetworkError,
	ops.IoError:          IoError,
}

// ForKind returns the exit code of a failed operation
func ForKind(kind ops.ErrorKind) int {
	if code, ok := byKind[kind]; ok {
		return code
	}
	return RuntimeError
}

// ForResult returns Success for a successful result and the kind's code otherwise
func ForResult(res ops.Result) int {
	if res.OK() {
		return Success
	}
	return ForKind(res.Err.Kind)
}
