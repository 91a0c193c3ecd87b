// Package paths turns user-supplied path strings into resolved ops.Path values.
package paths

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/afero"

	"fileman/internal/ops"
)

// Resolver normalizes raw path strings and probes their existence state.
// It is read-only and keeps no cache.
type Resolver struct {
	fs    afero.Fs
	getwd func() (string, error)
}

// NewResolver creates a resolver probing fsys. A nil getwd uses os.Getwd.
func NewResolver(fsys afero.Fs, getwd func() (string, error)) *Resolver {
	if getwd == nil {
		getwd = os.Getwd
	}
	return &Resolver{fs: fsys, getwd: getwd}
}

// Resolve returns the absolute, cleaned form of raw and its current state.
// It fails with InvalidPath when raw is blank or cannot be made absolute.
func (r *Resolver) Resolve(raw string) (ops.Path, error) {
	abs, err := r.Abs(raw)
	if err != nil {
		return ops.Path{}, err
	}

	state, err := r.Probe(abs)
	if err != nil {
		return ops.Path{}, err
	}
	return ops.Path{Raw: raw, Abs: abs, State: state}, nil
}

// Abs converts raw to an absolute, cleaned path without touching the filesystem
func (r *Resolver) Abs(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", ops.Errorf(ops.InvalidPath, "", raw, "path is empty")
	}
	if strings.ContainsRune(raw, 0) {
		return "", ops.Errorf(ops.InvalidPath, "", raw, "path contains a NUL byte")
	}
	if filepath.IsAbs(raw) {
		return filepath.Clean(raw), nil
	}

	wd, err := r.getwd()
	if err != nil {
		return "", ops.Wrap(ops.InvalidPath, "", raw, err)
	}
	if !filepath.IsAbs(wd) {
		return "", ops.Errorf(ops.InvalidPath, "", raw, "working directory %q is not absolute", wd)
	}
	return filepath.Join(wd, raw), nil
}

// Probe reports the state of an absolute path with a single Lstat.
// A symlink is reported as File regardless of its target.
func (r *Resolver) Probe(abs string) (ops.PathState, error) {
	info, err := lstat(r.fs, abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
			return ops.Missing, nil
		}
		return ops.Missing, ops.Wrap(ops.Classify(err), "", abs, err)
	}
	if info.IsDir() {
		return ops.Directory, nil
	}
	return ops.File, nil
}

func lstat(fsys afero.Fs, name string) (fs.FileInfo, error) {
	if l, ok := fsys.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(name)
		return info, err
	}
	return fsys.Stat(name)
}
