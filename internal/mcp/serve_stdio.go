package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
)

type stdioRequest struct {
	ID    string          `json:"id,omitempty"`
	Tool  string          `json:"tool"`
	Input json.RawMessage `json:"input,omitempty"`
}

type stdioResponse struct {
	ID     string          `json:"id,omitempty"`
	Tool   string          `json:"tool"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// ServeStdio runs a line-delimited JSON loop over the given streams.
// Each request line is {"id": ..., "tool": ..., "input": {...}}; the
// pseudo-tool "tools.list" returns the registry's specs. Returns nil
// on EOF or context cancellation.
func ServeStdio(ctx context.Context, r *Registry, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	enc := json.NewEncoder(out)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var req stdioRequest
		if err := json.Unmarshal(line, &req); err != nil {
			if err := enc.Encode(stdioResponse{Error: fmt.Sprintf("invalid request: %v", err)}); err != nil {
				return err
			}
			continue
		}
		resp := stdioResponse{ID: req.ID, Tool: req.Tool}
		if req.Tool == "tools.list" {
			specs, err := json.Marshal(map[string]any{"tools": r.Specs()})
			if err != nil {
				resp.Error = err.Error()
			} else {
				resp.Output = specs
			}
		} else {
			output, err := r.Call(ctx, req.Tool, req.Input)
			if err != nil {
				resp.Error = err.Error()
			} else {
				resp.Output = output
			}
		}
		if err := enc.Encode(resp); err != nil {
			return err
		}
	}
	return sc.Err()
}
