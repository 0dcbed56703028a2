// Package integrator folds clip descriptions into a rolling session
// context document and mirrors it to the on-disk cache file that the
// MCP tools and other processes read.
package integrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"inframe/internal/llm"
	"inframe/internal/vision"
)

// SessionPrefix starts every session header line in the cache file.
// Status tooling greps for it, so it must stay stable.
const SessionPrefix = "NEW RECORDING SESSION"

// UpdateFunc is invoked after each accepted description with the full
// current context document.
type UpdateFunc func(current string)

// Status reports integrator progress.
type Status struct {
	Integrated      int
	SessionSeconds  float64
	SessionTitle    string
	CacheFileExists bool
}

// Integrator owns the session document for one recording session.
type Integrator struct {
	client    llm.Client
	cacheFile string
	title     string
	startedAt time.Time

	mu         sync.Mutex
	onUpdate   UpdateFunc
	lines      []string
	integrated int
	prior      string // cache file content from earlier sessions
	loaded     bool
}

// New creates an integrator writing to cacheFile. The file's existing
// content is preserved; this session is appended to it.
func New(client llm.Client, cacheFile, title string) *Integrator {
	if strings.TrimSpace(title) == "" {
		title = "Context Recording Session - " + time.Now().Format("2006-01-02 15:04:05")
	}
	return &Integrator{
		client:    client,
		cacheFile: cacheFile,
		title:     title,
		startedAt: time.Now(),
	}
}

// SetCallback registers the update callback. Passing nil clears it.
func (g *Integrator) SetCallback(fn UpdateFunc) {
	g.mu.Lock()
	g.onUpdate = fn
	g.mu.Unlock()
}

// Title returns the session title.
func (g *Integrator) Title() string { return g.title }

// Add integrates one description: append, notify, rewrite cache file.
func (g *Integrator) Add(d vision.Description) error {
	text := strings.TrimSpace(d.Text)
	if text == "" {
		return nil
	}

	g.mu.Lock()
	g.ensureLoadedLocked()
	g.lines = append(g.lines, fmt.Sprintf("[%s] %s: %s", d.At.Format("15:04:05"), d.ClipID, text))
	g.integrated++
	doc := g.documentLocked()
	cb := g.onUpdate
	err := g.writeCacheLocked(doc)
	g.mu.Unlock()

	if cb != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("integrator: update callback panicked: %v", r)
				}
			}()
			cb(g.Current())
		}()
	}
	return err
}

// Current returns this session's portion of the context document.
func (g *Integrator) Current() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.integrated == 0 {
		return ""
	}
	return g.sessionBlockLocked()
}

// Summary asks the model to summarize the session so far.
func (g *Integrator) Summary(ctx context.Context) (string, error) {
	current := g.Current()
	if current == "" {
		return "", fmt.Errorf("integrator: no context recorded yet")
	}
	ctx = llm.WithStage(ctx, "summary")
	raw, err := g.client.GenerateJSON(ctx,
		`Summarize this screen recording session. Respond as JSON: {"summary": "..."}.`,
		map[string]string{"context": current})
	if err != nil {
		return "", err
	}
	var out struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal(raw, &out); err != nil || strings.TrimSpace(out.Summary) == "" {
		return "", llm.ErrInvalidJSON
	}
	return out.Summary, nil
}

func (g *Integrator) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, statErr := os.Stat(g.cacheFile)
	return Status{
		Integrated:      g.integrated,
		SessionSeconds:  time.Since(g.startedAt).Seconds(),
		SessionTitle:    g.title,
		CacheFileExists: statErr == nil,
	}
}

// CacheFile returns the path of the context cache file.
func (g *Integrator) CacheFile() string { return g.cacheFile }

func (g *Integrator) ensureLoadedLocked() {
	if g.loaded {
		return
	}
	g.loaded = true
	raw, err := os.ReadFile(g.cacheFile)
	if err == nil {
		g.prior = strings.TrimRight(string(raw), "\n")
	}
}

func (g *Integrator) sessionBlockLocked() string {
	header := fmt.Sprintf("%s: %s (%s)", SessionPrefix, g.title, g.startedAt.Format(time.RFC3339))
	return header + "\n" + strings.Join(g.lines, "\n") + "\n"
}

func (g *Integrator) documentLocked() string {
	block := g.sessionBlockLocked()
	if g.prior == "" {
		return block
	}
	return g.prior + "\n\n" + block
}

func (g *Integrator) writeCacheLocked(doc string) error {
	if err := os.MkdirAll(filepath.Dir(g.cacheFile), 0o755); err != nil {
		return err
	}
	tmp := g.cacheFile + ".tmp"
	if err := os.WriteFile(tmp, []byte(doc), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, g.cacheFile)
}
