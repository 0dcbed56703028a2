package mcp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerToolsAndCall(t *testing.T) {
	_, h := setupCache(t, sampleCache())
	r := NewRegistry()
	RegisterDefaultTools(r, h)
	srv := httptest.NewServer(Handler(r, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/mcp/tools")
	if err != nil {
		t.Fatalf("get tools: %v", err)
	}
	defer resp.Body.Close()
	var listed struct {
		Tools []ToolSpec `json:"tools"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
		t.Fatalf("decode tools: %v", err)
	}
	if len(listed.Tools) != 3 {
		t.Fatalf("tools = %d, want 3", len(listed.Tools))
	}

	body := strings.NewReader(`{"tool":"context.latest"}`)
	resp2, err := http.Post(srv.URL+"/mcp/call", "application/json", body)
	if err != nil {
		t.Fatalf("post call: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("call status = %d", resp2.StatusCode)
	}
	var called callResponse
	if err := json.NewDecoder(resp2.Body).Decode(&called); err != nil {
		t.Fatalf("decode call: %v", err)
	}
	if called.Error != "" {
		t.Fatalf("call errored: %s", called.Error)
	}
	if !strings.Contains(string(called.Output), "Afternoon Session") {
		t.Fatalf("output = %s", called.Output)
	}
}

func TestHandlerCallUnknownTool(t *testing.T) {
	_, h := setupCache(t, sampleCache())
	r := NewRegistry()
	RegisterDefaultTools(r, h)
	srv := httptest.NewServer(Handler(r, nil))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/mcp/call", "application/json", strings.NewReader(`{"tool":"nope"}`))
	if err != nil {
		t.Fatalf("post call: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}
