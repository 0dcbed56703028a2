package llm

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"strconv"
	"time"
)

// Middleware decorates a Client to inject cross-cutting concerns
// (rate limiting, retries, logging, hooks).
type Middleware func(Client) Client

// Wrap applies middlewares in left-to-right order.
// Example: Wrap(inner, A, B) => A(B(inner))
func Wrap(inner Client, mws ...Middleware) Client {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// -------- Rate limiting --------

// RateLimit limits request rate using the token-bucket limiter.
// If rps <= 0, the limiter is effectively disabled.
func RateLimit(rps float64, burst int) Middleware {
	return func(next Client) Client {
		rl := newBucketLimiter(rps, burst) // nil when disabled
		return &rateLimited{next: next, rl: rl}
	}
}

// RateLimitFromEnv reads RPS/BURST from environment variables with the
// given prefixes in priority order. For example, ("LLM","GEMINI")
// checks LLM_RPS/LLM_BURST first, then GEMINI_RPS/GEMINI_BURST.
func RateLimitFromEnv(prefixes ...string) Middleware {
	find := func(suffix string) string {
		for _, p := range prefixes {
			if p == "" {
				continue
			}
			if v := os.Getenv(p + suffix); v != "" {
				return v
			}
		}
		return ""
	}
	rps, _ := strconv.ParseFloat(find("_RPS"), 64)
	burst, _ := strconv.Atoi(find("_BURST"))
	return RateLimit(rps, burst)
}

type rateLimited struct {
	next Client
	rl   *bucketLimiter
}

func (c *rateLimited) Name() string { return c.next.Name() }
func (c *rateLimited) Close() error {
	c.rl.Stop()
	return c.next.Close()
}

func (c *rateLimited) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	if err := c.admit(ctx); err != nil {
		return nil, err
	}
	return c.next.GenerateJSON(ctx, prompt, input)
}

func (c *rateLimited) DescribeImage(ctx context.Context, prompt, mimeType string, data []byte) (string, error) {
	if err := c.admit(ctx); err != nil {
		return "", err
	}
	return c.next.DescribeImage(ctx, prompt, mimeType, data)
}

func (c *rateLimited) admit(ctx context.Context) error {
	if c.rl == nil {
		return nil
	}
	// Prefer reserved credits embedded in the context.
	if TakeCredit(ctx) {
		return nil
	}
	return c.rl.Acquire(ctx)
}

// -------- Retry with exponential backoff --------

// Retry retries failed calls up to maxAttempts with exponential backoff
// starting at baseDelay. Permanent errors and context cancellation stop
// the loop immediately.
func Retry(maxAttempts int, baseDelay time.Duration) Middleware {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 300 * time.Millisecond
	}
	return func(next Client) Client {
		return &retrying{next: next, max: maxAttempts, base: baseDelay}
	}
}

type retrying struct {
	next Client
	max  int
	base time.Duration
}

func (r *retrying) Name() string { return r.next.Name() }
func (r *retrying) Close() error { return r.next.Close() }

func (r *retrying) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	var raw json.RawMessage
	err := r.attempt(ctx, func() error {
		var err error
		raw, err = r.next.GenerateJSON(ctx, prompt, input)
		return err
	})
	return raw, err
}

func (r *retrying) DescribeImage(ctx context.Context, prompt, mimeType string, data []byte) (string, error) {
	var out string
	err := r.attempt(ctx, func() error {
		var err error
		out, err = r.next.DescribeImage(ctx, prompt, mimeType, data)
		return err
	})
	return out, err
}

func (r *retrying) attempt(ctx context.Context, call func() error) error {
	var last error
	for i := 0; i < r.max; i++ {
		err := call()
		if err == nil {
			return nil
		}
		var pErr *PermanentError
		if errors.As(err, &pErr) {
			return err
		}
		last = err
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if i == r.max-1 {
			break
		}
		time.Sleep(r.base * time.Duration(1<<i))
	}
	return last
}

// -------- Logging & hooks --------

// WithLogging logs request size and errors. Provide a custom logger or
// nil to use log.Default().
func WithLogging(logger *log.Logger) Middleware {
	if logger == nil {
		logger = log.Default()
	}
	return func(next Client) Client {
		return &logging{next: next, log: logger}
	}
}

type logging struct {
	next Client
	log  *log.Logger
}

func (l *logging) Name() string { return l.next.Name() }
func (l *logging) Close() error { return l.next.Close() }

func (l *logging) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	in, _ := json.Marshal(input)
	l.log.Printf("LLM request (%s): %d bytes", StageFrom(ctx), len(prompt)+len(in))
	raw, err := l.next.GenerateJSON(ctx, prompt, input)
	if err != nil {
		l.log.Printf("LLM error (%s): %v", StageFrom(ctx), err)
	}
	return raw, err
}

func (l *logging) DescribeImage(ctx context.Context, prompt, mimeType string, data []byte) (string, error) {
	l.log.Printf("LLM image request (%s): %d bytes (%s)", StageFrom(ctx), len(data), mimeType)
	out, err := l.next.DescribeImage(ctx, prompt, mimeType, data)
	if err != nil {
		l.log.Printf("LLM image error (%s): %v", StageFrom(ctx), err)
	}
	return out, err
}

// WithHook attaches a PromptHook that is called Before/After every
// GenerateJSON on the wrapped client.
func WithHook(hook PromptHook) Middleware {
	return func(next Client) Client {
		return &hooked{next: next, hook: hook}
	}
}

type hooked struct {
	next Client
	hook PromptHook
}

func (h *hooked) Name() string { return h.next.Name() }
func (h *hooked) Close() error { return h.next.Close() }

func (h *hooked) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	ctx = withHookValue(ctx, h.hook)
	stage := StageFrom(ctx)
	h.hook.Before(ctx, stage, prompt, input)
	raw, err := h.next.GenerateJSON(ctx, prompt, input)
	h.hook.After(ctx, stage, raw, err)
	return raw, err
}

func (h *hooked) DescribeImage(ctx context.Context, prompt, mimeType string, data []byte) (string, error) {
	return h.next.DescribeImage(withHookValue(ctx, h.hook), prompt, mimeType, data)
}
