package llm

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"inframe/internal/tester"
)

// fast fake client that returns immediately
type fastClient struct{}

func (f *fastClient) Name() string { return "fast" }
func (f *fastClient) Close() error { return nil }
func (f *fastClient) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	return json.RawMessage([]byte(`{}`)), nil
}
func (f *fastClient) DescribeImage(ctx context.Context, prompt, mimeType string, data []byte) (string, error) {
	return "ok", nil
}

// spy records timestamps when requests reach the inner client
type spy struct{ times []time.Time }
type spyingClient struct {
	next Client
	rec  *spy
}

func (s *spyingClient) Name() string { return s.next.Name() }
func (s *spyingClient) Close() error { return s.next.Close() }
func (s *spyingClient) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	s.rec.times = append(s.rec.times, time.Now())
	return s.next.GenerateJSON(ctx, prompt, input)
}
func (s *spyingClient) DescribeImage(ctx context.Context, prompt, mimeType string, data []byte) (string, error) {
	s.rec.times = append(s.rec.times, time.Now())
	return s.next.DescribeImage(ctx, prompt, mimeType, data)
}

func TestRate_RPS_2PerSecond_Burst1_Spacing(t *testing.T) {
	// Expect ~>=500ms spacing after the first call when rps=2 and burst=1.
	base := &fastClient{}
	rec := &spy{}
	cli := Wrap(&spyingClient{next: base, rec: rec}, RateLimit(2, 1))
	t.Cleanup(func() { _ = cli.Close() })

	ctx := context.Background()
	start := time.Now()
	if _, err := cli.GenerateJSON(ctx, "p", map[string]any{}); err != nil {
		t.Fatal(err)
	}
	if _, err := cli.GenerateJSON(ctx, "p", map[string]any{}); err != nil {
		t.Fatal(err)
	}
	elapsed := time.Since(start)

	tester.True(t, elapsed >= 450*time.Millisecond, "expected throttling >=450ms, got %v", elapsed)
	tester.Eq(t, len(rec.times), 2, "two calls should reach inner client")
}

func TestRate_RPS_2PerSecond_Burst2_FirstTwoImmediate(t *testing.T) {
	// With burst=2, first two calls should be near-instant; third should be delayed.
	base := &fastClient{}
	cli := RateLimit(2, 2)(base)
	t.Cleanup(func() { _ = cli.Close() })

	ctx := context.Background()
	start := time.Now()
	if _, err := cli.GenerateJSON(ctx, "p", map[string]any{}); err != nil {
		t.Fatal(err)
	}
	if _, err := cli.GenerateJSON(ctx, "p", map[string]any{}); err != nil {
		t.Fatal(err)
	}
	firstTwo := time.Since(start)

	start3 := time.Now()
	if _, err := cli.GenerateJSON(ctx, "p", map[string]any{}); err != nil {
		t.Fatal(err)
	}
	third := time.Since(start3)

	tester.True(t, firstTwo < 100*time.Millisecond, "first two should be near-instant, got %v", firstTwo)
	tester.True(t, third >= 450*time.Millisecond, "third call expected throttling >=450ms, got %v", third)
}

func TestRate_DescribeImage_SharesBucket(t *testing.T) {
	// Image and JSON calls drain the same bucket.
	base := &fastClient{}
	cli := RateLimit(2, 1)(base)
	t.Cleanup(func() { _ = cli.Close() })

	ctx := context.Background()
	start := time.Now()
	if _, err := cli.DescribeImage(ctx, "p", "image/png", []byte{1}); err != nil {
		t.Fatal(err)
	}
	if _, err := cli.GenerateJSON(ctx, "p", nil); err != nil {
		t.Fatal(err)
	}
	elapsed := time.Since(start)

	tester.True(t, elapsed >= 450*time.Millisecond, "expected shared throttling >=450ms, got %v", elapsed)
}

func TestRate_FromEnv_UsesFirstPrefixWithValues(t *testing.T) {
	// LLM_* wins over GEMINI_* when both are set.
	t.Setenv("LLM_RPS", "2")
	t.Setenv("LLM_BURST", "1")
	t.Setenv("GEMINI_RPS", "100")
	t.Setenv("GEMINI_BURST", "100")

	base := &fastClient{}
	cli := Wrap(base, RateLimitFromEnv("LLM", "GEMINI"))
	t.Cleanup(func() { _ = cli.Close() })

	ctx := context.Background()
	start := time.Now()
	if _, err := cli.GenerateJSON(ctx, "p", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := cli.GenerateJSON(ctx, "p", nil); err != nil {
		t.Fatal(err)
	}
	elapsed := time.Since(start)

	tester.True(t, elapsed >= 450*time.Millisecond, "expected env-driven throttling >=450ms, got %v", elapsed)
}

func TestRate_FromEnv_UnsetDisablesLimiting(t *testing.T) {
	t.Setenv("LLM_RPS", "")
	t.Setenv("LLM_BURST", "")

	base := &fastClient{}
	cli := Wrap(base, RateLimitFromEnv("LLM"))
	t.Cleanup(func() { _ = cli.Close() })

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 5; i++ {
		if _, err := cli.GenerateJSON(ctx, "p", nil); err != nil {
			t.Fatal(err)
		}
	}
	elapsed := time.Since(start)

	tester.True(t, elapsed < 100*time.Millisecond, "unset env should not throttle, got %v", elapsed)
}

func TestRate_CreditsBypassLimiter(t *testing.T) {
	base := &fastClient{}
	cli := RateLimit(1, 1)(base)
	t.Cleanup(func() { _ = cli.Close() })

	ctx := WithCredits(context.Background(), 3)
	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := cli.GenerateJSON(ctx, "p", nil); err != nil {
			t.Fatal(err)
		}
	}
	elapsed := time.Since(start)

	tester.True(t, elapsed < 200*time.Millisecond, "credited calls should not block, got %v", elapsed)
}
