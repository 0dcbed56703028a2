package llm

import (
	"context"
	"time"
)

// bucketLimiter throttles to at most rps requests per second with an
// optional burst capacity, refilled by a background ticker.
type bucketLimiter struct {
	tokens chan struct{}
	stopCh chan struct{}
}

// newBucketLimiter creates a limiter allowing up to rps events per
// second with a burst of 'burst'. rps <= 0 disables limiting entirely
// (the returned nil limiter admits everything).
func newBucketLimiter(rps float64, burst int) *bucketLimiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}

	l := &bucketLimiter{
		tokens: make(chan struct{}, burst),
		stopCh: make(chan struct{}),
	}
	for i := 0; i < burst; i++ {
		l.tokens <- struct{}{}
	}

	period := time.Duration(float64(time.Second) / rps)
	if period < time.Millisecond {
		period = time.Millisecond
	}
	go l.refill(period)
	return l
}

func (l *bucketLimiter) refill(period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			select {
			case l.tokens <- struct{}{}:
			default:
				// bucket full; drop token
			}
		case <-l.stopCh:
			return
		}
	}
}

// Acquire blocks until a token is available or the context is canceled.
func (l *bucketLimiter) Acquire(ctx context.Context) error {
	if l == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopCh:
		return context.Canceled
	case <-l.tokens:
		return nil
	}
}

// Stop terminates the limiter's refill goroutine.
func (l *bucketLimiter) Stop() {
	if l == nil {
		return
	}
	close(l.stopCh)
}

// NewLimiter exposes a minimal Limiter backed by a token bucket.
func NewLimiter(rps float64, burst int) Limiter {
	return newBucketLimiter(rps, burst)
}
