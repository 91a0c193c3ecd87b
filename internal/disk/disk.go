package disk

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// SpaceFunc reports the bytes available to unprivileged users on the volume holding path
type SpaceFunc func(path string) (uint64, error)

// GetDiskUsage returns the percentage of disk space used for a given path
func GetDiskUsage(path string) (usedPercent float64, freeBytes uint64, totalBytes uint64, err error) {
	var stat unix.Statfs_t
	if err = unix.Statfs(path, &stat); err != nil {
		return 0, 0, 0, err
	}

	// Calculate total and free bytes
	totalBytes = uint64(stat.Blocks) * uint64(stat.Bsize)
	freeBytes = uint64(stat.Bavail) * uint64(stat.Bsize)
	usedBytes := totalBytes - freeBytes

	if totalBytes > 0 {
		usedPercent = (float64(usedBytes) / float64(totalBytes)) * 100.0
	}

	return usedPercent, freeBytes, totalBytes, nil
}

// FreeBytes is the SpaceFunc backed by statfs(2)
func FreeBytes(path string) (uint64, error) {
	_, free, _, err := GetDiskUsage(path)
	return free, err
}

// InsufficientSpaceError is returned by EnsureSpace
type InsufficientSpaceError struct {
	Path      string
	Needed    uint64
	Available uint64
}

func (e *InsufficientSpaceError) Error() string {
	return fmt.Sprintf("insufficient space on %s: need %d bytes, %d available", e.Path, e.Needed, e.Available)
}

// EnsureSpace fails when the volume holding dir has fewer than needed bytes available.
// A nil SpaceFunc or a failing probe is not treated as a shortage.
func EnsureSpace(space SpaceFunc, dir string, needed uint64) error {
	if space == nil || needed == 0 {
		return nil
	}
	avail, err := space(dir)
	if err != nil {
		return nil
	}
	if avail < needed {
		return &InsufficientSpaceError{Path: dir, Needed: needed, Available: avail}
	}
	return nil
}
