package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
)

// FakeClient returns deterministic payloads per stage for offline runs
// and tests. Answers and descriptions can be overridden per instance.
type FakeClient struct {
	// Answer/Confidence are returned for "query" stage requests.
	Answer     string
	Confidence float64
	// Description is returned by DescribeImage.
	Description string

	calls int64
}

func NewFakeClient() *FakeClient {
	return &FakeClient{Answer: "YES", Confidence: 0.9, Description: "a code editor with a project tree"}
}

func (f *FakeClient) Name() string { return "FakeLLM" }
func (f *FakeClient) Close() error { return nil }

// Calls reports how many requests reached this client.
func (f *FakeClient) Calls() int64 { return atomic.LoadInt64(&f.calls) }

func (f *FakeClient) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	atomic.AddInt64(&f.calls, 1)
	var obj any
	switch StageFrom(ctx) {
	case "query":
		obj = map[string]any{"answer": f.Answer, "confidence": f.Confidence}
	case "summary":
		obj = map[string]any{"summary": "fake session summary"}
	default:
		obj = map[string]any{}
	}
	b, _ := json.Marshal(obj)
	return json.RawMessage(b), nil
}

func (f *FakeClient) DescribeImage(ctx context.Context, prompt, mimeType string, data []byte) (string, error) {
	n := atomic.AddInt64(&f.calls, 1)
	if len(data) == 0 {
		return "", NewPermanentError(fmt.Errorf("llm: empty image"))
	}
	return fmt.Sprintf("%s (frame %d)", f.Description, n), nil
}
