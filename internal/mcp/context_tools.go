package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"inframe/internal/integrator"
)

// --------------------- context.latest ---------------------

type contextLatestTool struct{ host Host }

func newContextLatestTool(h Host) *contextLatestTool { return &contextLatestTool{host: h} }

func (t *contextLatestTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        "context.latest",
		Description: "Return the most recent recording session block from the context cache.",
	}
}

type contextLatestInput struct {
	Path     string `json:"path,omitempty"`
	MaxBytes int64  `json:"max_bytes,omitempty"`
}

type contextLatestOutput struct {
	Path    string `json:"path"`
	Title   string `json:"title,omitempty"`
	Context string `json:"context"`
	Entries int    `json:"entries"`
	Message string `json:"message,omitempty"`
}

func (t *contextLatestTool) Call(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in contextLatestInput
	if len(input) > 0 {
		if err := json.Unmarshal(input, &in); err != nil {
			return nil, err
		}
	}
	if in.MaxBytes <= 0 {
		in.MaxBytes = 65536
	}
	path := t.host.filePath(in.Path)
	fs := t.host.fs()
	if fs == nil {
		return nil, fmt.Errorf("context.latest: cache fs not configured")
	}
	data, err := fs.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Nothing recorded yet; not an error for the agent.
			return json.Marshal(contextLatestOutput{
				Path:    path,
				Message: "no context recorded yet for " + path,
			})
		}
		return nil, fmt.Errorf("context.latest: %w", err)
	}
	block, title := latestSessionBlock(string(data))
	if int64(len(block)) > in.MaxBytes {
		// Keep the tail: the freshest context is at the end.
		block = block[int64(len(block))-in.MaxBytes:]
	}
	out := contextLatestOutput{
		Path:    path,
		Title:   title,
		Context: block,
		Entries: countEntryLines(block),
	}
	return json.Marshal(out)
}

// --------------------- context.status ---------------------

type contextStatusTool struct{ host Host }

func newContextStatusTool(h Host) *contextStatusTool { return &contextStatusTool{host: h} }

func (t *contextStatusTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        "context.status",
		Description: "Report session count, latest session title, and entry count for a context cache file.",
	}
}

type contextStatusInput struct {
	Path string `json:"path,omitempty"`
}

type contextStatusOutput struct {
	Path          string `json:"path"`
	Exists        bool   `json:"exists"`
	SizeBytes     int64  `json:"size_bytes"`
	ModifiedAt    string `json:"modified_at,omitempty"`
	Sessions      int    `json:"sessions"`
	LatestTitle   string `json:"latest_title,omitempty"`
	LatestEntries int    `json:"latest_entries"`
}

func (t *contextStatusTool) Call(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in contextStatusInput
	if len(input) > 0 {
		if err := json.Unmarshal(input, &in); err != nil {
			return nil, err
		}
	}
	path := t.host.filePath(in.Path)
	fs := t.host.fs()
	if fs == nil {
		return nil, fmt.Errorf("context.status: cache fs not configured")
	}
	info, err := fs.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return json.Marshal(contextStatusOutput{Path: path})
		}
		return nil, fmt.Errorf("context.status: %w", err)
	}
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("context.status: %w", err)
	}
	block, title := latestSessionBlock(string(data))
	out := contextStatusOutput{
		Path:          path,
		Exists:        true,
		SizeBytes:     info.Size(),
		ModifiedAt:    info.ModTime().UTC().Format(time.RFC3339),
		Sessions:      countSessionHeaders(string(data)),
		LatestTitle:   title,
		LatestEntries: countEntryLines(block),
	}
	return json.Marshal(out)
}

// --------------------- context.read ---------------------

type contextReadTool struct{ host Host }

func newContextReadTool(h Host) *contextReadTool { return &contextReadTool{host: h} }

func (t *contextReadTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        "context.read",
		Description: "Read a slice of a cache file, with size limits.",
	}
}

type contextReadInput struct {
	Path   string `json:"path,omitempty"`
	Start  int64  `json:"start"`
	Length int64  `json:"length"`
}

type contextReadOutput struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (t *contextReadTool) Call(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in contextReadInput
	if len(input) > 0 {
		if err := json.Unmarshal(input, &in); err != nil {
			return nil, err
		}
	}
	if in.Length <= 0 {
		in.Length = 65536
	}
	path := t.host.filePath(in.Path)
	fs := t.host.fs()
	if fs == nil {
		return nil, fmt.Errorf("context.read: cache fs not configured")
	}
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("context.read: %w", err)
	}
	defer f.Close()
	if in.Start > 0 {
		if _, err := f.Seek(in.Start, io.SeekStart); err != nil {
			return nil, err
		}
	}
	buf, err := io.ReadAll(io.LimitReader(f, in.Length))
	if err != nil {
		return nil, err
	}
	out := contextReadOutput{Path: path, Content: string(buf)}
	return json.Marshal(out)
}

// --------------------- cache file parsing ---------------------

// latestSessionBlock returns everything from the last session header to
// EOF, plus the session title parsed from that header. A file written
// before any header is returned whole with an empty title.
func latestSessionBlock(content string) (block, title string) {
	idx := strings.LastIndex(content, integrator.SessionPrefix+":")
	if idx < 0 {
		return strings.TrimSpace(content), ""
	}
	// Only accept a header at start-of-line.
	for idx > 0 && content[idx-1] != '\n' {
		prev := strings.LastIndex(content[:idx], integrator.SessionPrefix+":")
		if prev < 0 {
			return strings.TrimSpace(content), ""
		}
		idx = prev
	}
	block = strings.TrimSpace(content[idx:])
	header, _, _ := strings.Cut(block, "\n")
	title = strings.TrimSpace(strings.TrimPrefix(header, integrator.SessionPrefix+":"))
	if open := strings.LastIndex(title, " ("); open >= 0 && strings.HasSuffix(title, ")") {
		title = title[:open]
	}
	return block, title
}

func countSessionHeaders(content string) int {
	n := 0
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, integrator.SessionPrefix+":") {
			n++
		}
	}
	return n
}

func countEntryLines(block string) int {
	n := 0
	for _, line := range strings.Split(block, "\n") {
		if strings.HasPrefix(line, "[") {
			n++
		}
	}
	return n
}
