// Package ratelimit throttles replica transfers to a configured bandwidth.
package ratelimit

import (
	"context"
	"io"
	"sync"
	"time"
)

// minBucket keeps small limits from degrading into tiny reads
const minBucket = 64 * 1024

// Limiter is a token bucket shared by every transfer of a sync call.
// A nil *Limiter means unlimited.
type Limiter struct {
	bytesPerSecond int64
	bucketSize     int64

	mu         sync.Mutex
	tokens     int64
	lastRefill time.Time
}

// NewLimiter returns a limiter for bytesPerSecond, or nil when the limit is not positive.
// The bucket holds one second of data, at least 64 KiB.
func NewLimiter(bytesPerSecond int64) *Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}

	bucket := bytesPerSecond
	if bucket < minBucket {
		bucket = minBucket
	}

	return &Limiter{
		bytesPerSecond: bytesPerSecond,
		bucketSize:     bucket,
		tokens:         bucket,
		lastRefill:     time.Now(),
	}
}

// BytesPerSecond returns the configured rate
func (l *Limiter) BytesPerSecond() int64 {
	if l == nil {
		return 0
	}
	return l.bytesPerSecond
}

// wait blocks until n tokens are available or ctx is done, then takes them
func (l *Limiter) wait(ctx context.Context, n int64) error {
	for {
		l.mu.Lock()
		l.refill(time.Now())
		if l.tokens >= n {
			l.tokens -= n
			l.mu.Unlock()
			return nil
		}
		deficit := n - l.tokens
		l.mu.Unlock()

		delay := time.Duration(float64(deficit) / float64(l.bytesPerSecond) * float64(time.Second))
		if delay < time.Millisecond {
			delay = time.Millisecond
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// refill must be called with mu held
func (l *Limiter) refill(now time.Time) {
	elapsed := now.Sub(l.lastRefill)
	add := int64(elapsed.Seconds() * float64(l.bytesPerSecond))
	if add <= 0 {
		return
	}
	l.tokens += add
	if l.tokens > l.bucketSize {
		l.tokens = l.bucketSize
	}
	l.lastRefill = now
}

// giveBack returns tokens reserved for a read that came back short
func (l *Limiter) giveBack(n int64) {
	if n <= 0 {
		return
	}
	l.mu.Lock()
	l.tokens += n
	if l.tokens > l.bucketSize {
		l.tokens = l.bucketSize
	}
	l.mu.Unlock()
}

// Reader throttles reads from an underlying reader
type Reader struct {
	ctx     context.Context
	r       io.Reader
	limiter *Limiter
}

// NewReader wraps r so that reads respect the limiter.
// With a nil limiter r is returned unchanged.
func NewReader(ctx context.Context, r io.Reader, limiter *Limiter) io.Reader {
	if limiter == nil {
		return r
	}
	return &Reader{ctx: ctx, r: r, limiter: limiter}
}

// Read reserves tokens for at most one bucket of data before reading
func (r *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return r.r.Read(p)
	}

	want := int64(len(p))
	if want > r.limiter.bucketSize {
		want = r.limiter.bucketSize
	}

	if err := r.limiter.wait(r.ctx, want); err != nil {
		return 0, err
	}

	n, err := r.r.Read(p[:want])
	r.limiter.giveBack(want - int64(n))
	return n, err
}
