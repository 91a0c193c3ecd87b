package limiter

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// BandwidthLimiter throttles a byte stream to a maximum rate
type BandwidthLimiter struct {
	limiter *rate.Limiter
	burst   int
}

// NewBandwidthLimiter creates a limiter allowing bytesPerSecond with bursts of
// up to burst bytes. A non-positive rate disables limiting and returns nil.
func NewBandwidthLimiter(bytesPerSecond int64, burst int) *BandwidthLimiter {
	if bytesPerSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = int(bytesPerSecond)
	}
	return &BandwidthLimiter{
		limiter: rate.NewLimiter(rate.Limit(bytesPerSecond), burst),
		burst:   burst,
	}
}

// Wait blocks until n bytes may pass. Requests larger than the burst are split.
// A nil limiter never blocks.
func (l *BandwidthLimiter) Wait(ctx context.Context, n int) error {
	if l == nil {
		return ctx.Err()
	}
	for n > 0 {
		take := n
		if take > l.burst {
			take = l.burst
		}
		if err := l.limiter.WaitN(ctx, take); err != nil {
			return err
		}
		n -= take
	}
	return nil
}

// Reader wraps r so every Read waits for the bytes it returned
func (l *BandwidthLimiter) Reader(ctx context.Context, r io.Reader) io.Reader {
	if l == nil {
		return r
	}
	return &limitedReader{ctx: ctx, r: r, l: l}
}

type limitedReader struct {
	ctx context.Context
	r   io.Reader
	l   *BandwidthLimiter
}

func (lr *limitedReader) Read(p []byte) (int, error) {
	if len(p) > lr.l.burst {
		p = p[:lr.l.burst]
	}
	n, err := lr.r.Read(p)
	if n > 0 {
		if werr := lr.l.Wait(lr.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
