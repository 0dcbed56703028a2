package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"inframe/internal/integrator"
	"inframe/internal/safeio"
)

func setupCache(t *testing.T, content string) (dir string, h Host) {
	t.Helper()
	dir = t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "20260826"), []byte(content), 0o644); err != nil {
		t.Fatalf("write cache: %v", err)
	}
	fs, err := safeio.New(dir)
	if err != nil {
		t.Fatalf("cache fs: %v", err)
	}
	return dir, Host{CacheFS: fs, DefaultFile: "20260826"}
}

func sampleCache() string {
	header := func(title string, at time.Time) string {
		return fmt.Sprintf("%s: %s (%s)", integrator.SessionPrefix, title, at.Format(time.RFC3339))
	}
	base := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	var b strings.Builder
	b.WriteString(header("Morning Session", base) + "\n")
	b.WriteString("[10:00:05] clip-000001: a terminal running tests\n")
	b.WriteString("\n")
	b.WriteString(header("Afternoon Session", base.Add(4*time.Hour)) + "\n")
	b.WriteString("[14:00:05] clip-000001: a code editor with main.go open\n")
	b.WriteString("[14:00:10] clip-000002: a browser showing documentation\n")
	return b.String()
}

func TestContextLatestTool(t *testing.T) {
	_, h := setupCache(t, sampleCache())
	tool := newContextLatestTool(h)

	raw, err := tool.Call(context.Background(), nil)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	var out contextLatestOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Title != "Afternoon Session" {
		t.Fatalf("title = %q, want Afternoon Session", out.Title)
	}
	if out.Entries != 2 {
		t.Fatalf("entries = %d, want 2", out.Entries)
	}
	if strings.Contains(out.Context, "Morning Session") {
		t.Fatalf("latest block leaked the previous session: %q", out.Context)
	}
	if !strings.Contains(out.Context, "clip-000002") {
		t.Fatalf("latest block missing entry: %q", out.Context)
	}
}

func TestContextLatestToolMaxBytes(t *testing.T) {
	_, h := setupCache(t, sampleCache())
	tool := newContextLatestTool(h)

	in, _ := json.Marshal(contextLatestInput{MaxBytes: 40})
	raw, err := tool.Call(context.Background(), in)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	var out contextLatestOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out.Context) > 40 {
		t.Fatalf("context len = %d, want <= 40", len(out.Context))
	}
	// The freshest entry is at the tail, so it must survive truncation.
	if !strings.Contains(out.Context, "documentation") {
		t.Fatalf("truncation dropped the tail: %q", out.Context)
	}
}

func TestContextLatestToolMissingFile(t *testing.T) {
	_, h := setupCache(t, "x")
	h.DefaultFile = "19700101"
	tool := newContextLatestTool(h)

	raw, err := tool.Call(context.Background(), nil)
	if err != nil {
		t.Fatalf("missing cache file should not error: %v", err)
	}
	var out contextLatestOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Message == "" || out.Context != "" {
		t.Fatalf("want friendly message for missing file, got %+v", out)
	}
}

func TestContextStatusToolMissingFile(t *testing.T) {
	_, h := setupCache(t, "x")
	h.DefaultFile = "19700101"
	tool := newContextStatusTool(h)

	raw, err := tool.Call(context.Background(), nil)
	if err != nil {
		t.Fatalf("missing cache file should not error: %v", err)
	}
	var out contextStatusOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Exists || out.Sessions != 0 {
		t.Fatalf("want exists=false, got %+v", out)
	}
}

func TestContextStatusTool(t *testing.T) {
	_, h := setupCache(t, sampleCache())
	tool := newContextStatusTool(h)

	raw, err := tool.Call(context.Background(), nil)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	var out contextStatusOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Sessions != 2 {
		t.Fatalf("sessions = %d, want 2", out.Sessions)
	}
	if out.LatestTitle != "Afternoon Session" {
		t.Fatalf("latest title = %q", out.LatestTitle)
	}
	if out.LatestEntries != 2 {
		t.Fatalf("latest entries = %d, want 2", out.LatestEntries)
	}
	if out.SizeBytes == 0 {
		t.Fatalf("size bytes = 0")
	}
}

func TestContextReadTool(t *testing.T) {
	_, h := setupCache(t, "0123456789")
	tool := newContextReadTool(h)

	in, _ := json.Marshal(contextReadInput{Start: 2, Length: 4})
	raw, err := tool.Call(context.Background(), in)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	var out contextReadOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Content != "2345" {
		t.Fatalf("content = %q, want 2345", out.Content)
	}
}

func TestContextReadToolRejectsEscape(t *testing.T) {
	_, h := setupCache(t, "x")
	tool := newContextReadTool(h)

	in, _ := json.Marshal(contextReadInput{Path: "../outside"})
	if _, err := tool.Call(context.Background(), in); err == nil {
		t.Fatalf("expected traversal error")
	}
}

func TestRegistryUnknownTool(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Call(context.Background(), "nope", nil); err == nil {
		t.Fatalf("expected unknown tool error")
	}
}

func TestServeStdio(t *testing.T) {
	_, h := setupCache(t, sampleCache())
	r := NewRegistry()
	RegisterDefaultTools(r, h)

	var in bytes.Buffer
	in.WriteString(`{"id":"1","tool":"tools.list"}` + "\n")
	in.WriteString(`{"id":"2","tool":"context.status"}` + "\n")
	in.WriteString(`{"id":"3","tool":"nope"}` + "\n")

	var out bytes.Buffer
	if err := ServeStdio(context.Background(), r, &in, &out); err != nil {
		t.Fatalf("serve: %v", err)
	}

	dec := json.NewDecoder(&out)
	var resps []stdioResponse
	for dec.More() {
		var resp stdioResponse
		if err := dec.Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		resps = append(resps, resp)
	}
	if len(resps) != 3 {
		t.Fatalf("responses = %d, want 3", len(resps))
	}
	if resps[0].Error != "" || !strings.Contains(string(resps[0].Output), "context.latest") {
		t.Fatalf("tools.list = %+v", resps[0])
	}
	if resps[1].Error != "" {
		t.Fatalf("context.status errored: %s", resps[1].Error)
	}
	if resps[2].Error == "" {
		t.Fatalf("unknown tool should error")
	}
}
