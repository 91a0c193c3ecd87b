package paths

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fileman/internal/ops"
)

func fixedWd(dir string) func() (string, error) {
	return func() (string, error) { return dir, nil }
}

func TestResolveRejectsBlank(t *testing.T) {
	r := NewResolver(afero.NewMemMapFs(), fixedWd("/work"))

	for _, raw := range []string{"", " ", "\t\n", "a\x00b"} {
		_, err := r.Resolve(raw)
		require.Error(t, err, "%q", raw)
		assert.ErrorIs(t, err, ops.ErrInvalidPath, "%q", raw)
	}
}

func TestResolveAbsoluteForms(t *testing.T) {
	r := NewResolver(afero.NewMemMapFs(), fixedWd("/work"))

	tests := []struct {
		raw  string
		want string
	}{
		{"/tmp/out.bin", "/tmp/out.bin"},
		{"/tmp/./a/../out.bin", "/tmp/out.bin"},
		{"x.txt", "/work/x.txt"},
		{"./sub/x.txt", "/work/sub/x.txt"},
		{"../up.txt", "/up.txt"},
		{".", "/work"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			p, err := r.Resolve(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Abs)
			assert.Equal(t, tt.raw, p.Raw)
			assert.True(t, filepath.IsAbs(p.Abs))
		})
	}
}

func TestResolveStates(t *testing.T) {
	mem := afero.NewMemMapFs()
	require.NoError(t, mem.MkdirAll("/data/dir", 0o755))
	require.NoError(t, afero.WriteFile(mem, "/data/file.txt", []byte("x"), 0o644))

	r := NewResolver(mem, fixedWd("/data"))

	tests := []struct {
		raw  string
		want ops.PathState
	}{
		{"/data/dir", ops.Directory},
		{"file.txt", ops.File},
		{"missing.txt", ops.Missing},
		{"/data/file.txt/child", ops.Missing},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			p, err := r.Resolve(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.State)
		})
	}
}

func TestResolveGetwdFailure(t *testing.T) {
	r := NewResolver(afero.NewMemMapFs(), func() (string, error) {
		return "", errors.New("cwd removed")
	})

	_, err := r.Resolve("relative.txt")
	assert.ErrorIs(t, err, ops.ErrInvalidPath)

	// Absolute paths never consult the working directory
	_, err = r.Resolve("/abs.txt")
	assert.NoError(t, err)
}

type deniedFs struct {
	afero.Fs
}

func (deniedFs) Stat(name string) (os.FileInfo, error) {
	return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrPermission}
}

func TestResolveProbeErrorIsClassified(t *testing.T) {
	r := NewResolver(deniedFs{afero.NewMemMapFs()}, fixedWd("/"))

	_, err := r.Resolve("/secret/file")
	assert.ErrorIs(t, err, ops.ErrPermissionDenied)
}

func TestResolveSymlinkIsFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	require.NoError(t, os.Mkdir(target, 0o755))
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(target, link))

	r := NewResolver(afero.NewOsFs(), nil)
	p, err := r.Resolve(link)
	require.NoError(t, err)
	assert.Equal(t, ops.File, p.State)
}
