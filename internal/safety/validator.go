package safety

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"fileman/internal/ops"
)

var (
	ErrInvalidPath    = errors.New("invalid path")
	ErrProtectedPath  = errors.New("protected path")
	ErrOutsideAllowed = errors.New("outside allowed roots")
	ErrSymlinkEscape  = errors.New("symlink escape detected")
)

// Validator guards every destructive filesystem mutation (delete, move source,
// move destination). System roots are protected exactly; configured protected
// paths are protected together with everything below them.
type Validator struct {
	AllowedRoots   []string
	ProtectedRoots []string
	ProtectedPaths []string
}

// NewValidator creates a validator with optional allowed roots and additional protected trees
func NewValidator(allowed []string, extraProtected []string) *Validator {
	return &Validator{
		AllowedRoots:   normalizeRoots(allowed),
		ProtectedRoots: defaultProtected(),
		ProtectedPaths: normalizeRoots(extraProtected),
	}
}

// ValidateTarget is the single-source-of-truth for mutation authorization.
// A nil Validator allows everything.
func (v *Validator) ValidateTarget(path string) error {
	if v == nil {
		return nil
	}

	// 1. Normalize path to absolute, cleaned form
	p, err := NormalizePath(path)
	if err != nil {
		return err
	}

	// 2. Block protected paths (system roots, configured trees)
	if IsProtectedPath(p, v.ProtectedRoots, v.ProtectedPaths) {
		return ErrProtectedPath
	}

	if len(v.AllowedRoots) == 0 {
		return nil
	}

	// 3. Ensure within allowed roots
	if !IsWithinAllowedRoots(p, v.AllowedRoots) {
		return ErrOutsideAllowed
	}

	// 4. The parent chain must not leave the allowed roots through a symlink.
	// The last element is not followed: removing or renaming a link never
	// touches its target.
	escaped, err := DetectSymlinkEscape(p, v.AllowedRoots)
	if err != nil {
		// Parent doesn't exist yet; the operation itself will fail on it
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if escaped {
		return ErrSymlinkEscape
	}

	return nil
}

// Guard runs ValidateTarget for op and maps violations onto the error taxonomy:
// protected, out-of-root and symlink-escaping paths are PermissionDenied.
func (v *Validator) Guard(op ops.Kind, path string) error {
	err := v.ValidateTarget(path)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInvalidPath):
		return ops.Wrap(ops.InvalidPath, op, path, err)
	case errors.Is(err, ErrProtectedPath),
		errors.Is(err, ErrOutsideAllowed),
		errors.Is(err, ErrSymlinkEscape):
		return ops.Wrap(ops.PermissionDenied, op, path, fmt.Errorf("refusing to %s: %w", op, err))
	default:
		return ops.AsError(op, path, err)
	}
}

// NormalizePath converts path to absolute, cleaned form
func NormalizePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", ErrInvalidPath
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", ErrInvalidPath
	}
	return filepath.Clean(abs), nil
}

// IsWithinAllowedRoots checks if path is within any allowed root
func IsWithinAllowedRoots(path string, allowedRoots []string) bool {
	p := filepath.Clean(path)
	for _, r := range allowedRoots {
		if hasPathPrefix(p, r) {
			return true
		}
	}
	return false
}

// DetectSymlinkEscape resolves symlinks in the parent of cleanAbs and checks
// whether the result escapes allowed roots
func DetectSymlinkEscape(cleanAbs string, allowedRoots []string) (bool, error) {
	parent, err := filepath.EvalSymlinks(filepath.Dir(cleanAbs))
	if err != nil {
		return false, err
	}
	resolvedAbs, err := filepath.Abs(filepath.Join(parent, filepath.Base(cleanAbs)))
	if err != nil {
		return false, err
	}
	if !IsWithinAllowedRoots(filepath.Clean(resolvedAbs), normalizeResolved(allowedRoots)) {
		return true, nil
	}
	return false, nil
}

// IsProtectedPath reports whether path equals one of roots, or lies in one of trees
func IsProtectedPath(path string, roots []string, trees []string) bool {
	p := filepath.Clean(path)

	// Hard block: "/" exact
	if p == string(os.PathSeparator) {
		return true
	}

	for _, r := range roots {
		if p == filepath.Clean(r) {
			return true
		}
	}
	for _, prot := range trees {
		if hasPathPrefix(p, prot) {
			return true
		}
	}
	return false
}

// hasPathPrefix checks if path has the given prefix
func hasPathPrefix(path, prefix string) bool {
	path = filepath.Clean(path)
	prefix = filepath.Clean(prefix)

	if prefix == string(os.PathSeparator) {
		return true
	}
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+string(os.PathSeparator))
}

// normalizeRoots converts slice of roots to absolute, cleaned paths
func normalizeRoots(roots []string) []string {
	out := make([]string, 0, len(roots))
	for _, r := range roots {
		if strings.TrimSpace(r) == "" {
			continue
		}
		abs, err := filepath.Abs(r)
		if err != nil {
			continue
		}
		out = append(out, filepath.Clean(abs))
	}
	return out
}

// normalizeResolved resolves symlinks inside the roots themselves (e.g. /tmp on macOS)
func normalizeResolved(roots []string) []string {
	out := make([]string, 0, len(roots)*2)
	for _, r := range roots {
		out = append(out, r)
		if resolved, err := filepath.EvalSymlinks(r); err == nil && resolved != r {
			out = append(out, filepath.Clean(resolved))
		}
	}
	return out
}

// defaultProtected returns the paths that may never be removed or replaced as a whole
func defaultProtected() []string {
	base := []string{
		"/",
		"/etc",
		"/bin",
		"/usr",
		"/boot",
		"/dev",
		"/home",
		"/lib",
		"/lib64",
		"/proc",
		"/root",
		"/sbin",
		"/sys",
		"/var",
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		base = append(base, filepath.Clean(home))
	}
	return base
}
