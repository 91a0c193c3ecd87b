package fsops

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"fileman/internal/disk"
	"fileman/internal/ops"
	"fileman/internal/safety"
	"fileman/internal/scan"
)

// Options controls the policy knobs of delete and move
type Options struct {
	// CrossDevice enables the copy-then-rename fallback when a rename fails with EXDEV
	CrossDevice bool
	// CreateParents creates a missing destination directory instead of failing
	CreateParents bool
	// Space probes free space before a cross-device copy; nil skips the check
	Space disk.SpaceFunc
}

// FileOps deletes and moves resolved paths
type FileOps struct {
	fs        afero.Fs
	validator *safety.Validator
	opts      Options
	logger    zerolog.Logger
}

// New creates a FileOps. A nil validator allows every path.
func New(fsys afero.Fs, validator *safety.Validator, opts Options, logger zerolog.Logger) *FileOps {
	return &FileOps{
		fs:        fsys,
		validator: validator,
		opts:      opts,
		logger:    logger.With().Str("component", "fsops").Logger(),
	}
}

// Delete removes target: a single remove for files and symlinks, a recursive
// remove for directories. It returns what was removed.
func (f *FileOps) Delete(target ops.Path) (scan.Usage, error) {
	if err := f.CheckDelete(target); err != nil {
		return scan.Usage{}, err
	}

	usage, err := scan.Measure(f.fs, target.Abs)
	if err != nil {
		// Vanished between resolution and now
		return scan.Usage{}, ops.AsError(ops.KindDelete, target.Abs, err)
	}

	if target.IsDir() {
		err = f.fs.RemoveAll(target.Abs)
	} else {
		err = f.fs.Remove(target.Abs)
	}
	if err != nil {
		return scan.Usage{}, ops.AsError(ops.KindDelete, target.Abs, err)
	}

	f.logger.Debug().
		Str("path", target.Abs).
		Str("object", target.State.String()).
		Int64("bytes", usage.Bytes).
		Int64("entries", usage.Entries()).
		Msg("deleted")
	return usage, nil
}

// CheckDelete runs the preconditions of Delete without mutating anything
func (f *FileOps) CheckDelete(target ops.Path) error {
	if !target.Exists() {
		return ops.Errorf(ops.NotFound, ops.KindDelete, target.Abs, "path does not exist")
	}
	return f.guard(ops.KindDelete, target.Abs)
}

// Move renames src to dst. It never overwrites unless force is set; an empty
// destination directory may be replaced by a source directory. The existing
// destination is only displaced once the new content sits next to it on the
// destination volume, and is put back if the final rename fails.
func (f *FileOps) Move(src, dst ops.Path, force bool) (scan.Usage, error) {
	if err := f.CheckMove(src, dst, force); err != nil {
		return scan.Usage{}, err
	}
	if f.opts.CreateParents {
		if err := f.fs.MkdirAll(dst.Dir(), 0o755); err != nil {
			return scan.Usage{}, ops.AsError(ops.KindMove, dst.Dir(), err)
		}
	}

	usage, err := scan.Measure(f.fs, src.Abs)
	if err != nil {
		return scan.Usage{}, ops.AsError(ops.KindMove, src.Abs, err)
	}

	// rename(2) replaces a file with a file and an empty directory with a
	// directory. Anything else has to be set aside first.
	if force && dst.Exists() && (dst.IsDir() || src.IsDir()) {
		if err := f.replace(src, dst, usage); err != nil {
			return scan.Usage{}, err
		}
		return usage, nil
	}

	err = f.fs.Rename(src.Abs, dst.Abs)
	if err == nil {
		f.logger.Debug().Str("from", src.Abs).Str("to", dst.Abs).Msg("renamed")
		return usage, nil
	}
	if err := f.crossDevice(src, err); err != nil {
		return scan.Usage{}, err
	}

	f.logger.Debug().Str("from", src.Abs).Str("to", dst.Abs).Msg("cross-device rename, copying")
	staged, err := f.stage(src, dst, usage.Bytes)
	if err != nil {
		return scan.Usage{}, err
	}
	if err := f.fs.Rename(staged, dst.Abs); err != nil {
		_ = f.fs.RemoveAll(staged)
		return scan.Usage{}, ops.AsError(ops.KindMove, dst.Abs, err)
	}
	if err := f.removeSource(src, dst); err != nil {
		return scan.Usage{}, err
	}
	return usage, nil
}

// replace commits src over an existing dst that rename cannot overwrite:
// bring src next to dst, move dst aside, rename src into place, then drop
// the old destination
func (f *FileOps) replace(src, dst ops.Path, usage scan.Usage) error {
	incoming, copied, err := f.bringAcross(src, dst, usage)
	if err != nil {
		return err
	}

	aside, err := f.tempName(dst.Abs)
	if err == nil {
		err = f.fs.Rename(dst.Abs, aside)
	}
	if err != nil {
		f.undoIncoming(incoming, src, copied)
		return ops.AsError(ops.KindMove, dst.Abs, err)
	}

	if err := f.fs.Rename(incoming, dst.Abs); err != nil {
		if rerr := f.fs.Rename(aside, dst.Abs); rerr != nil {
			f.logger.Error().Err(rerr).Str("path", dst.Abs).Str("saved", aside).Msg("could not restore destination")
		}
		f.undoIncoming(incoming, src, copied)
		return ops.AsError(ops.KindMove, dst.Abs, err)
	}

	f.logger.Debug().Str("path", dst.Abs).Msg("force: replaced existing destination")
	if err := f.fs.RemoveAll(aside); err != nil {
		f.logger.Warn().Err(err).Str("path", aside).Msg("failed to remove replaced destination")
	}
	if copied {
		return f.removeSource(src, dst)
	}
	return nil
}

// bringAcross puts the content of src into a hidden sibling of dst, by
// rename on the same volume or by copy across volumes. copied reports which.
func (f *FileOps) bringAcross(src, dst ops.Path, usage scan.Usage) (incoming string, copied bool, err error) {
	incoming, err = f.tempName(dst.Abs)
	if err != nil {
		return "", false, ops.AsError(ops.KindMove, dst.Dir(), err)
	}
	err = f.fs.Rename(src.Abs, incoming)
	if err == nil {
		return incoming, false, nil
	}
	if err := f.crossDevice(src, err); err != nil {
		return "", false, err
	}
	staged, err := f.stage(src, dst, usage.Bytes)
	if err != nil {
		return "", false, err
	}
	return staged, true, nil
}

// undoIncoming reverts bringAcross after a failed commit
func (f *FileOps) undoIncoming(incoming string, src ops.Path, copied bool) {
	var err error
	if copied {
		err = f.fs.RemoveAll(incoming)
	} else {
		err = f.fs.Rename(incoming, src.Abs)
	}
	if err != nil {
		f.logger.Error().Err(err).Str("path", incoming).Str("source", src.Abs).Msg("could not undo staged move")
	}
}

// crossDevice returns nil when a failed rename may fall back to copying
func (f *FileOps) crossDevice(src ops.Path, err error) error {
	switch {
	case !isCrossDevice(err):
		return ops.AsError(ops.KindMove, src.Abs, err)
	case !f.opts.CrossDevice:
		return ops.Wrap(ops.IoError, ops.KindMove, src.Abs,
			fmt.Errorf("source and destination are on different volumes and cross-device moves are disabled: %w", err))
	}
	return nil
}

func (f *FileOps) removeSource(src, dst ops.Path) error {
	if err := f.fs.RemoveAll(src.Abs); err != nil {
		return ops.Wrap(ops.Classify(err), ops.KindMove, src.Abs,
			fmt.Errorf("copied to %s but could not remove source: %w", dst.Abs, err))
	}
	return nil
}

// CheckMove runs every precondition of Move without mutating anything
func (f *FileOps) CheckMove(src, dst ops.Path, force bool) error {
	if !src.Exists() {
		return ops.Errorf(ops.NotFound, ops.KindMove, src.Abs, "source does not exist")
	}
	if src.Abs == dst.Abs {
		return ops.Errorf(ops.InvalidPath, ops.KindMove, src.Abs, "source and destination are the same path")
	}
	if src.IsDir() && isWithin(dst.Abs, src.Abs) {
		return ops.Errorf(ops.InvalidPath, ops.KindMove, dst.Abs, "cannot move directory %s into itself", src.Abs)
	}
	if err := f.guard(ops.KindMove, src.Abs); err != nil {
		return err
	}
	if err := f.guard(ops.KindMove, dst.Abs); err != nil {
		return err
	}

	if dst.Exists() && !force {
		if !dst.IsDir() || !src.IsDir() {
			return ops.Errorf(ops.AlreadyExists, ops.KindMove, dst.Abs, "destination already exists")
		}
		empty, err := scan.IsEmptyDir(f.fs, dst.Abs)
		if err != nil {
			return ops.AsError(ops.KindMove, dst.Abs, err)
		}
		if !empty {
			return ops.Errorf(ops.AlreadyExists, ops.KindMove, dst.Abs, "destination directory is not empty")
		}
	}

	return f.checkParent(ops.KindMove, dst, f.opts.CreateParents)
}

// checkParent verifies the directory that will hold dst. When create is set a
// missing parent is acceptable.
func (f *FileOps) checkParent(op ops.Kind, dst ops.Path, create bool) error {
	parent := dst.Dir()
	info, err := f.fs.Stat(parent)
	switch {
	case err == nil && info.IsDir():
		return nil
	case err == nil:
		return ops.Errorf(ops.IoError, op, dst.Abs, "parent %s is not a directory", parent)
	case ops.Classify(err) == ops.NotFound && create:
		return nil
	case ops.Classify(err) == ops.NotFound:
		return ops.Errorf(ops.IoError, op, dst.Abs, "parent directory %s does not exist", parent)
	default:
		return ops.AsError(op, parent, err)
	}
}

func (f *FileOps) guard(op ops.Kind, path string) error {
	return f.validator.Guard(op, path)
}

// isWithin reports whether path is root or lies below it
func isWithin(path, root string) bool {
	if path == root {
		return true
	}
	return strings.HasPrefix(path, strings.TrimSuffix(root, string(filepath.Separator))+string(filepath.Separator))
}
