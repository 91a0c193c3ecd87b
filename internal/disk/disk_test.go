package disk

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDiskUsage(t *testing.T) {
	used, free, total, err := GetDiskUsage(t.TempDir())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, total, free)
	assert.GreaterOrEqual(t, used, 0.0)
	assert.LessOrEqual(t, used, 100.0)
}

func TestGetDiskUsageMissingPath(t *testing.T) {
	_, _, _, err := GetDiskUsage("/definitely/not/a/real/path")
	assert.Error(t, err)
}

func TestEnsureSpace(t *testing.T) {
	fixed := func(n uint64) SpaceFunc {
		return func(string) (uint64, error) { return n, nil }
	}

	assert.NoError(t, EnsureSpace(fixed(100), "/d", 100))
	assert.NoError(t, EnsureSpace(nil, "/d", 1<<40))
	assert.NoError(t, EnsureSpace(fixed(0), "/d", 0))

	err := EnsureSpace(fixed(99), "/d", 100)
	var short *InsufficientSpaceError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, uint64(100), short.Needed)
	assert.Equal(t, uint64(99), short.Available)

	failing := func(string) (uint64, error) { return 0, errors.New("statfs unsupported") }
	assert.NoError(t, EnsureSpace(failing, "/d", 100))
}
