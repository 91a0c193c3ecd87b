package limiter

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBandwidthLimiterDisabled(t *testing.T) {
	assert.Nil(t, NewBandwidthLimiter(0, 0))
	assert.Nil(t, NewBandwidthLimiter(-5, 10))

	var l *BandwidthLimiter
	require.NoError(t, l.Wait(context.Background(), 1<<20))

	src := strings.NewReader("unchanged")
	assert.Same(t, src, l.Reader(context.Background(), src))
}

func TestWaitSplitsLargeRequests(t *testing.T) {
	l := NewBandwidthLimiter(1<<20, 1024)
	require.NotNil(t, l)
	// 4 KiB against a 1 KiB burst would fail outright with a single WaitN
	require.NoError(t, l.Wait(context.Background(), 4096))
}

func TestWaitHonoursCancellation(t *testing.T) {
	l := NewBandwidthLimiter(10, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, l.Wait(ctx, 100))
}

func TestReaderThrottles(t *testing.T) {
	l := NewBandwidthLimiter(2000, 1000)
	payload := bytes.Repeat([]byte("x"), 3000)

	start := time.Now()
	got, err := io.ReadAll(l.Reader(context.Background(), bytes.NewReader(payload)))
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	// First 1000 bytes come from the initial burst, the remaining 2000 take ~1s
	assert.GreaterOrEqual(t, time.Since(start), 800*time.Millisecond)
}
