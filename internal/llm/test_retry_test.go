package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"inframe/internal/tester"
)

type flakyClient struct {
	failures int
	calls    int
	err      error
}

func (f *flakyClient) Name() string { return "flaky" }
func (f *flakyClient) Close() error { return nil }
func (f *flakyClient) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return json.RawMessage(`{"ok":true}`), nil
}
func (f *flakyClient) DescribeImage(ctx context.Context, prompt, mimeType string, data []byte) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", f.err
	}
	return "ok", nil
}

func TestRetry_RecoversAfterTransientFailures(t *testing.T) {
	base := &flakyClient{failures: 2, err: errors.New("transient")}
	cli := Retry(4, 5*time.Millisecond)(base)

	raw, err := cli.GenerateJSON(context.Background(), "p", nil)
	tester.NoErr(t, err)
	tester.Eq(t, string(raw), `{"ok":true}`)
	tester.Eq(t, base.calls, 3)
}

func TestRetry_GivesUpAfterMaxAttempts(t *testing.T) {
	base := &flakyClient{failures: 10, err: errors.New("transient")}
	cli := Retry(3, time.Millisecond)(base)

	_, err := cli.GenerateJSON(context.Background(), "p", nil)
	if err == nil {
		t.Fatalf("expected error after exhausting attempts")
	}
	tester.Eq(t, base.calls, 3)
}

func TestRetry_NoBackoffAfterFinalAttempt(t *testing.T) {
	// Three attempts at 50ms base sleep 50+100ms between them; a sleep
	// after the last failure would add another 200ms for nothing.
	base := &flakyClient{failures: 10, err: errors.New("transient")}
	cli := Retry(3, 50*time.Millisecond)(base)

	start := time.Now()
	_, err := cli.GenerateJSON(context.Background(), "p", nil)
	elapsed := time.Since(start)

	tester.True(t, err != nil, "expected error after exhausting attempts")
	tester.True(t, elapsed >= 150*time.Millisecond, "expected the inter-attempt backoff, got %v", elapsed)
	tester.True(t, elapsed < 300*time.Millisecond, "error should return without a final backoff, got %v", elapsed)
}

func TestRetry_PermanentErrorStopsImmediately(t *testing.T) {
	base := &flakyClient{failures: 10, err: NewPermanentError(errors.New("bad request"))}
	cli := Retry(5, time.Millisecond)(base)

	_, err := cli.GenerateJSON(context.Background(), "p", nil)
	var pErr *PermanentError
	tester.True(t, errors.As(err, &pErr), "permanent error should surface")
	tester.Eq(t, base.calls, 1)
}

func TestRetry_ContextCancelStops(t *testing.T) {
	base := &flakyClient{failures: 10, err: errors.New("transient")}
	cli := Retry(5, 50*time.Millisecond)(base)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := cli.GenerateJSON(ctx, "p", nil)
	tester.True(t, errors.Is(err, context.Canceled), "expected context.Canceled, got %v", err)
	tester.Eq(t, base.calls, 1)
}

func TestWrap_AppliesLeftToRight(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next Client) Client {
			return &taggedClient{next: next, name: name, order: &order}
		}
	}
	base := &fastClient{}
	cli := Wrap(base, tag("outer"), tag("inner"))

	_, err := cli.GenerateJSON(context.Background(), "p", nil)
	tester.NoErr(t, err)
	tester.Eq(t, len(order), 2)
	tester.Eq(t, order[0], "outer")
	tester.Eq(t, order[1], "inner")
}

type taggedClient struct {
	next  Client
	name  string
	order *[]string
}

func (c *taggedClient) Name() string { return c.next.Name() }
func (c *taggedClient) Close() error { return c.next.Close() }
func (c *taggedClient) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	*c.order = append(*c.order, c.name)
	return c.next.GenerateJSON(ctx, prompt, input)
}
func (c *taggedClient) DescribeImage(ctx context.Context, prompt, mimeType string, data []byte) (string, error) {
	*c.order = append(*c.order, c.name)
	return c.next.DescribeImage(ctx, prompt, mimeType, data)
}
