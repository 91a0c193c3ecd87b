// Package scan measures filesystem trees so operations can report what they
// removed or relocated.
package scan

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/afero"
)

// Usage contains statistics about a filesystem path
type Usage struct {
	Bytes   int64 // Total bytes of regular files
	Files   int64 // Regular files and symlinks
	Dirs    int64 // Directories, including the root when it is one
	Symlink int64 // Symlinks (also counted in Files)
}

// Entries returns the number of filesystem entries measured
func (u Usage) Entries() int64 {
	return u.Files + u.Dirs
}

func (u Usage) String() string {
	if u.Dirs == 0 {
		return fmt.Sprintf("%d bytes", u.Bytes)
	}
	return fmt.Sprintf("%d files, %d directories, %d bytes", u.Files, u.Dirs, u.Bytes)
}

// Measure walks root without following symlinks and sums what it finds.
// Entries that vanish during the walk are skipped.
func Measure(fsys afero.Fs, root string) (Usage, error) {
	var u Usage
	err := afero.Walk(fsys, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path != root {
				return nil
			}
			return err
		}
		switch mode := info.Mode(); {
		case mode.IsDir():
			u.Dirs++
		case mode&fs.ModeSymlink != 0:
			u.Files++
			u.Symlink++
		default:
			u.Files++
			u.Bytes += info.Size()
		}
		return nil
	})
	if err != nil {
		return Usage{}, fmt.Errorf("measure %s: %w", root, err)
	}
	return u, nil
}

// IsEmptyDir reports whether dir has no entries
func IsEmptyDir(fsys afero.Fs, dir string) (bool, error) {
	f, err := fsys.Open(dir)
	if err != nil {
		return false, err
	}
	defer f.Close()

	names, err := f.Readdirnames(1)
	if len(names) > 0 {
		return false, nil
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	return true, nil
}
