package fsops

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"fileman/internal/disk"
	"fileman/internal/ops"
)

// stagingPattern names temporary siblings created next to a destination
func stagingPattern(dst string) string {
	return "." + filepath.Base(dst) + ".fileman-*"
}

// stage copies src into a temporary sibling of dst for a cross-device move
// and returns its name. dst and src are not touched. On failure nothing is
// left behind.
func (f *FileOps) stage(src, dst ops.Path, bytes int64) (string, error) {
	if err := disk.EnsureSpace(f.opts.Space, dst.Dir(), uint64(bytes)); err != nil {
		return "", ops.Wrap(ops.IoError, ops.KindMove, dst.Abs, err)
	}

	info, err := lstat(f.fs, src.Abs)
	if err != nil {
		return "", ops.AsError(ops.KindMove, src.Abs, err)
	}

	var staged string
	if info.IsDir() {
		staged, err = f.stageDir(src.Abs, dst.Abs, info.Mode())
	} else {
		staged, err = f.stageEntry(src.Abs, dst.Abs, info)
	}
	if err != nil {
		if staged != "" {
			_ = f.fs.RemoveAll(staged)
		}
		return "", ops.Wrap(ops.Classify(err), ops.KindMove, dst.Abs, fmt.Errorf("copy to destination volume: %w", err))
	}
	return staged, nil
}

// stageEntry copies a file or symlink to a temporary sibling of dst
func (f *FileOps) stageEntry(src, dst string, info os.FileInfo) (string, error) {
	if info.Mode()&fs.ModeSymlink != 0 {
		tmp, err := f.tempName(dst)
		if err != nil {
			return "", err
		}
		return tmp, f.copySymlink(src, tmp)
	}

	tmp, err := afero.TempFile(f.fs, filepath.Dir(dst), stagingPattern(dst))
	if err != nil {
		return "", err
	}
	name := tmp.Name()
	if err := copyInto(f.fs, tmp, src, info.Mode()); err != nil {
		return name, err
	}
	return name, nil
}

// stageDir recreates the src tree inside a temporary sibling of dst
func (f *FileOps) stageDir(src, dst string, mode os.FileMode) (string, error) {
	tmp, err := afero.TempDir(f.fs, filepath.Dir(dst), stagingPattern(dst))
	if err != nil {
		return "", err
	}

	err = afero.Walk(f.fs, src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		target := filepath.Join(tmp, rel)

		switch m := info.Mode(); {
		case m.IsDir():
			return f.fs.Mkdir(target, m.Perm())
		case m&fs.ModeSymlink != 0:
			return f.copySymlink(path, target)
		case m.IsRegular():
			out, err := f.fs.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, m.Perm())
			if err != nil {
				return err
			}
			return copyInto(f.fs, out, path, m)
		default:
			return fmt.Errorf("cannot copy %s: unsupported file type %s", path, m.Type())
		}
	})
	if err != nil {
		return tmp, err
	}
	return tmp, f.fs.Chmod(tmp, mode.Perm())
}

// copyInto copies src into out, syncs, closes and applies mode
func copyInto(fsys afero.Fs, out afero.File, src string, mode os.FileMode) error {
	in, err := fsys.Open(src)
	if err != nil {
		_ = out.Close()
		return err
	}
	defer in.Close()

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return fsys.Chmod(out.Name(), mode.Perm())
}

func (f *FileOps) copySymlink(src, dst string) error {
	sl, ok := f.fs.(afero.Symlinker)
	if !ok {
		return fmt.Errorf("cannot copy symlink %s: filesystem does not support symlinks", src)
	}
	target, err := sl.ReadlinkIfPossible(src)
	if err != nil {
		return err
	}
	return sl.SymlinkIfPossible(target, dst)
}

// tempName reserves an unused sibling name for entries afero cannot create as temp files
func (f *FileOps) tempName(dst string) (string, error) {
	tmp, err := afero.TempFile(f.fs, filepath.Dir(dst), stagingPattern(dst))
	if err != nil {
		return "", err
	}
	name := tmp.Name()
	_ = tmp.Close()
	if err := f.fs.Remove(name); err != nil {
		return "", err
	}
	return name, nil
}
