package capture

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"inframe/internal/cache/disk"
)

// Stream runs the capture loop and publishes clips on a channel.
type Stream struct {
	cfg   Config
	grab  Grabber
	store *disk.Store
	out   chan Clip

	mu        sync.Mutex
	running   bool
	startedAt time.Time
	seq       int
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewStream builds a stream whose clip buffer lives under cfg.TempDir.
func NewStream(cfg Config, grab Grabber) (*Stream, error) {
	cfg = cfg.withDefaults()
	if grab == nil {
		return nil, fmt.Errorf("capture: grabber is required")
	}
	if cfg.TempDir == "" {
		return nil, fmt.Errorf("capture: temp dir is required")
	}
	store, err := disk.New(disk.Config{
		Root:       cfg.TempDir,
		MaxEntries: cfg.MaxClips,
		TTL:        cfg.BufferDuration,
	})
	if err != nil {
		return nil, fmt.Errorf("capture: clip store: %w", err)
	}
	return &Stream{
		cfg:   cfg,
		grab:  grab,
		store: store,
		out:   make(chan Clip, cfg.MaxClips),
	}, nil
}

// Clips is the channel the capture loop publishes on. It is closed when
// the stream stops.
func (s *Stream) Clips() <-chan Clip { return s.out }

// Store exposes the clip buffer for consumers that pull by key.
func (s *Stream) Store() *disk.Store { return s.store }

// Start verifies capture works, then launches the loop.
func (s *Stream) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.startedAt = time.Now()
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	if err := s.grab.Preflight(ctx); err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	}

	go s.loop()
	return nil
}

// Stop halts the loop and closes the clip channel. Safe to call twice.
func (s *Stream) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	done := s.doneCh
	s.mu.Unlock()
	<-done
}

// Status reports buffer occupancy.
func (s *Stream) Status() Status {
	s.mu.Lock()
	running := s.running
	started := s.startedAt
	s.mu.Unlock()

	buffered := 0.0
	if running {
		buffered = time.Since(started).Seconds()
		if max := s.cfg.BufferDuration.Seconds(); buffered > max {
			buffered = max
		}
	}
	return Status{
		Running:       running,
		ClipCount:     s.store.Len(),
		BufferSeconds: buffered,
	}
}

func (s *Stream) loop() {
	defer close(s.doneCh)
	defer close(s.out)

	ticker := time.NewTicker(s.cfg.ChunkDuration)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-s.stopCh
		cancel()
	}()

	for {
		select {
		case <-s.stopCh:
			return
		case at := <-ticker.C:
			data, mime, err := s.grab.Frame(ctx, s.cfg.Mode, s.cfg.IncludeApps)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("capture: frame failed: %v", err)
				continue
			}
			s.mu.Lock()
			s.seq++
			seq := s.seq
			s.mu.Unlock()

			clip := Clip{
				ID:         fmt.Sprintf("clip-%06d", seq),
				Seq:        seq,
				CapturedAt: at,
				MIMEType:   mime,
				Data:       data,
			}
			if err := s.store.Set(ctx, clip.ID, data); err != nil {
				log.Printf("capture: buffer clip %s: %v", clip.ID, err)
			}
			select {
			case s.out <- clip:
			case <-s.stopCh:
				return
			default:
				// Consumer is behind; the clip stays in the buffer and
				// can still be pulled by key.
			}
		}
	}
}
