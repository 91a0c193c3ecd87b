package fsops

import (
	"os"
	"sync"

	"github.com/spf13/afero"
)

// RecordingFS wraps an afero.Fs and records every mutating call.
// Tests use it to prove that dry runs and rejected operations never touch the filesystem.
type RecordingFS struct {
	afero.Fs

	mu    sync.Mutex
	Calls []string
}

// NewRecordingFS wraps base
func NewRecordingFS(base afero.Fs) *RecordingFS {
	return &RecordingFS{Fs: base}
}

func (r *RecordingFS) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, call)
}

// Mutations returns a copy of the recorded calls
func (r *RecordingFS) Mutations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.Calls...)
}

func (r *RecordingFS) Create(name string) (afero.File, error) {
	r.record("create:" + name)
	return r.Fs.Create(name)
}

func (r *RecordingFS) Mkdir(name string, perm os.FileMode) error {
	r.record("mkdir:" + name)
	return r.Fs.Mkdir(name, perm)
}

func (r *RecordingFS) MkdirAll(path string, perm os.FileMode) error {
	r.record("mkdirall:" + path)
	return r.Fs.MkdirAll(path, perm)
}

func (r *RecordingFS) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC|os.O_APPEND) != 0 {
		r.record("openw:" + name)
	}
	return r.Fs.OpenFile(name, flag, perm)
}

func (r *RecordingFS) Remove(name string) error {
	r.record("rm:" + name)
	return r.Fs.Remove(name)
}

func (r *RecordingFS) RemoveAll(path string) error {
	r.record("rmall:" + path)
	return r.Fs.RemoveAll(path)
}

func (r *RecordingFS) Rename(oldname, newname string) error {
	r.record("rename:" + oldname + "->" + newname)
	return r.Fs.Rename(oldname, newname)
}

func (r *RecordingFS) Chmod(name string, mode os.FileMode) error {
	r.record("chmod:" + name)
	return r.Fs.Chmod(name, mode)
}

// LstatIfPossible keeps symlink-aware probing working through the wrapper
func (r *RecordingFS) LstatIfPossible(name string) (os.FileInfo, bool, error) {
	if l, ok := r.Fs.(afero.Lstater); ok {
		return l.LstatIfPossible(name)
	}
	info, err := r.Fs.Stat(name)
	return info, false, err
}
