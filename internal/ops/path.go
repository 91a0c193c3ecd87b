package ops

import "path/filepath"

// PathState is the existence state observed when a Path was resolved
type PathState int

const (
	Missing PathState = iota
	File
	Directory
)

func (s PathState) String() string {
	switch s {
	case File:
		return "file"
	case Directory:
		return "directory"
	default:
		return "missing"
	}
}

// Path is a resolved filesystem location. State is a snapshot taken at
// resolution time and may be stale by the time it is acted upon.
type Path struct {
	Raw   string
	Abs   string
	State PathState
}

func (p Path) Exists() bool { return p.State != Missing }
func (p Path) IsDir() bool  { return p.State == Directory }

// Dir returns the absolute parent directory
func (p Path) Dir() string {
	return filepath.Dir(p.Abs)
}

// Base returns the last element of the absolute path
func (p Path) Base() string {
	return filepath.Base(p.Abs)
}

func (p Path) String() string {
	return p.Abs
}
