package llm

import (
	"context"
	"sync/atomic"
)

type creditsKey struct{}

// credits is an atomic counter of admissions reserved up-front.
type credits struct{ n atomic.Int64 }

// WithCredits returns a context that carries n consumable credits.
// If n <= 0, the original context is returned.
func WithCredits(ctx context.Context, n int) context.Context {
	if n <= 0 {
		return ctx
	}
	c := &credits{}
	c.n.Store(int64(n))
	return context.WithValue(ctx, creditsKey{}, c)
}

// TakeCredit atomically consumes one credit from the context if available.
// Returns true when a credit was consumed; false otherwise.
func TakeCredit(ctx context.Context) bool {
	c, ok := ctx.Value(creditsKey{}).(*credits)
	if !ok || c == nil {
		return false
	}
	for {
		cur := c.n.Load()
		if cur <= 0 {
			return false
		}
		if c.n.CompareAndSwap(cur, cur-1) {
			return true
		}
	}
}
