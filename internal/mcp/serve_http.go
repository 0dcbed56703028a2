package mcp

import (
	"encoding/json"
	"net/http"
	"strings"
)

type callRequest struct {
	Tool  string          `json:"tool"`
	Input json.RawMessage `json:"input,omitempty"`
}

type callResponse struct {
	Tool   string          `json:"tool"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Handler serves the registry over plain HTTP:
//
//	GET  /mcp/tools  -> tool specs
//	POST /mcp/call   -> {"tool": ..., "input": {...}}
//	GET  /mcp/watch  -> websocket stream of cache file updates
func Handler(r *Registry, w *Watcher) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp/tools", func(rw http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]any{"tools": r.Specs()})
	})
	mux.HandleFunc("/mcp/call", func(rw http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var in callRequest
		if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
			http.Error(rw, "invalid json body", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(in.Tool) == "" {
			http.Error(rw, "tool is required", http.StatusBadRequest)
			return
		}
		out, err := r.Call(req.Context(), in.Tool, in.Input)
		resp := callResponse{Tool: in.Tool, Output: out}
		status := http.StatusOK
		if err != nil {
			resp.Error = err.Error()
			status = http.StatusBadRequest
		}
		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(status)
		_ = json.NewEncoder(rw).Encode(resp)
	})
	if w != nil {
		mux.HandleFunc("/mcp/watch", w.HandleWS)
	}
	return mux
}
