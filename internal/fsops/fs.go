// Package fsops performs the local half of the engine: delete and move.
//
// Every filesystem mutation goes through an afero.Fs so tests can substitute
// an in-memory filesystem or a fault-injecting wrapper.
package fsops

import (
	"errors"
	"os"

	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
)

// NewOSFS returns the host filesystem
func NewOSFS() afero.Fs {
	return afero.NewOsFs()
}

// lstat stats name without following a trailing symlink when the filesystem supports it
func lstat(fsys afero.Fs, name string) (os.FileInfo, error) {
	if l, ok := fsys.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(name)
		return info, err
	}
	return fsys.Stat(name)
}

// isCrossDevice reports whether a rename failed because source and destination
// live on different volumes
func isCrossDevice(err error) bool {
	return errors.Is(err, unix.EXDEV)
}
