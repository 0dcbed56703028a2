// Package recorder ties capture, vision and integration together into
// the ContextRecorder surface: add recorder configs, start and stop
// them, and read the integrated screen context.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"inframe/internal/capture"
	"inframe/internal/integrator"
	"inframe/internal/llm"
	"inframe/internal/vision"
)

var ErrUnknownRecorder = errors.New("recorder: unknown recorder id")

// DefaultCachePath is the per-day context cache file, shared with the
// MCP server and other processes.
func DefaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".cache", "inframe", time.Now().Format("20060102"))
}

// DefaultSessionsPath is the JSON session-record file next to the
// context caches.
func DefaultSessionsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".cache", "inframe", "sessions.json")
}

// Config describes one screen recorder.
type Config struct {
	BufferDuration time.Duration
	ChunkDuration  time.Duration
	MaxClips       int
	Mode           capture.Mode
	IncludeApps    []string
	// VisualTask is the prompt the vision pipeline uses per clip.
	VisualTask string
	// Priorities reserve extra permits for this recorder's LLM calls.
	VideoPriority   int
	ContextPriority int
}

// Options configure a Recorder set.
type Options struct {
	Client llm.Client
	// CacheFile defaults to ~/.cache/inframe/<YYYYMMDD>.
	CacheFile string
	// RecordingsDir defaults to a per-process dir under os.TempDir().
	RecordingsDir string
	// Grabber defaults to the OS grabber.
	Grabber capture.Grabber
	// Broker is shared by all vision pipelines; may be nil.
	Broker llm.PermitBroker
	// SessionTitle names the session block in the cache file.
	SessionTitle string
	// OnUpdate is invoked with the current context after each update.
	OnUpdate integrator.UpdateFunc
}

// Status mirrors the recorder's runtime state.
type Status struct {
	Recording      bool
	Message        string
	VideoClips     int
	BufferSeconds  float64
	ProcessedClips int64
	FailedClips    int64
	ContextClips   int
	SessionSeconds float64
}

type unit struct {
	cfg       Config
	stream    *capture.Stream
	pipe      *vision.Pipeline
	recording bool
	integDone chan struct{}
}

// Recorder manages a set of capture/vision units feeding one integrator.
type Recorder struct {
	client    llm.Client
	grabber   capture.Grabber
	broker    llm.PermitBroker
	cacheFile string
	dir       string
	integ     *integrator.Integrator

	mu     sync.Mutex
	units  map[string]*unit
	active int
}

// New prepares the cache and recordings directories and the integrator.
func New(opts Options) (*Recorder, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("recorder: llm client is required")
	}
	cacheFile := opts.CacheFile
	if cacheFile == "" {
		cacheFile = DefaultCachePath()
	}
	if err := os.MkdirAll(filepath.Dir(cacheFile), 0o755); err != nil {
		return nil, fmt.Errorf("recorder: cache dir: %w", err)
	}
	dir := opts.RecordingsDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), fmt.Sprintf("inframe_recordings_%d", os.Getpid()))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("recorder: recordings dir: %w", err)
	}
	grab := opts.Grabber
	if grab == nil {
		grab = capture.NewOSGrabber()
	}

	integ := integrator.New(opts.Client, cacheFile, opts.SessionTitle)
	if opts.OnUpdate != nil {
		integ.SetCallback(opts.OnUpdate)
	}

	return &Recorder{
		client:    opts.Client,
		grabber:   grab,
		broker:    opts.Broker,
		cacheFile: cacheFile,
		dir:       dir,
		integ:     integ,
		units:     map[string]*unit{},
	}, nil
}

// Add registers a recorder config and returns its id.
func (r *Recorder) Add(cfg Config) (string, error) {
	id := uuid.NewString()
	stream, err := capture.NewStream(capture.Config{
		BufferDuration: cfg.BufferDuration,
		ChunkDuration:  cfg.ChunkDuration,
		MaxClips:       cfg.MaxClips,
		Mode:           cfg.Mode,
		IncludeApps:    cfg.IncludeApps,
		TempDir:        filepath.Join(r.dir, id),
	}, r.grabber)
	if err != nil {
		return "", err
	}
	pipe := vision.New(r.client, cfg.VisualTask, r.broker)

	r.mu.Lock()
	r.units[id] = &unit{cfg: cfg, stream: stream, pipe: pipe}
	r.mu.Unlock()
	return id, nil
}

// Start begins capturing for the given recorder id. Components start in
// order stream -> vision -> integration; a stream failure aborts.
func (r *Recorder) Start(ctx context.Context, id string) error {
	r.mu.Lock()
	u, ok := r.units[id]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRecorder, id)
	}

	if err := u.stream.Start(ctx); err != nil {
		return fmt.Errorf("recorder: start stream: %w", err)
	}
	if err := u.pipe.Start(ctx, u.stream.Clips()); err != nil {
		u.stream.Stop()
		return fmt.Errorf("recorder: start pipeline: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for d := range u.pipe.Descriptions() {
			if err := r.integ.Add(d); err != nil {
				log.Printf("recorder: integrate %s: %v", d.ClipID, err)
			}
		}
	}()

	r.mu.Lock()
	u.recording = true
	u.integDone = done
	r.active++
	r.mu.Unlock()

	log.Printf("recorder: started %s in %s mode", shortID(id), u.cfg.Mode)
	return nil
}

// Stop halts a recorder. Components stop in reverse order. Stopping a
// recorder that is not running is a no-op.
func (r *Recorder) Stop(ctx context.Context, id string) error {
	r.mu.Lock()
	u, ok := r.units[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownRecorder, id)
	}
	if !u.recording {
		r.mu.Unlock()
		return nil
	}
	u.recording = false
	r.active--
	done := u.integDone
	r.mu.Unlock()

	u.pipe.Stop()
	u.stream.Stop()
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	log.Printf("recorder: stopped %s", shortID(id))
	return nil
}

// Recording reports whether any recorder is active.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active > 0
}

// Status reports a recorder's state. An unknown id yields a
// non-recording status with a message instead of an error.
func (r *Recorder) Status(id string) Status {
	r.mu.Lock()
	u, ok := r.units[id]
	r.mu.Unlock()
	if !ok {
		return Status{Message: fmt.Sprintf("recorder %s not found", shortID(id))}
	}
	if !u.recording {
		return Status{Message: "not recording"}
	}

	cs := u.stream.Status()
	ps := u.pipe.Status()
	is := r.integ.Status()
	return Status{
		Recording:      true,
		VideoClips:     cs.ClipCount,
		BufferSeconds:  cs.BufferSeconds,
		ProcessedClips: ps.Processed,
		FailedClips:    ps.Failed,
		ContextClips:   is.Integrated,
		SessionSeconds: is.SessionSeconds,
	}
}

// Shutdown stops every active recorder, collecting errors.
func (r *Recorder) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	ids := make([]string, 0, len(r.units))
	for id, u := range r.units {
		if u.recording {
			ids = append(ids, id)
		}
	}
	r.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := r.Stop(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", shortID(id), err))
		}
	}
	return errors.Join(errs...)
}

// CurrentContext returns the integrated context for this session.
func (r *Recorder) CurrentContext() string {
	if !r.Recording() && r.integ.Status().Integrated == 0 {
		return ""
	}
	return r.integ.Current()
}

// ExportSummary asks the model for a session summary.
func (r *Recorder) ExportSummary(ctx context.Context) (string, error) {
	return r.integ.Summary(ctx)
}

// CacheFilePath returns the context cache file location.
func (r *Recorder) CacheFilePath() string { return r.cacheFile }

// SessionTitle returns the session title used in the cache file.
func (r *Recorder) SessionTitle() string { return r.integ.Title() }

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
