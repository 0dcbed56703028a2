// Package capture records the screen as a rolling buffer of still
// frames ("clips"). Clips live in a disk LRU+TTL store sized by the
// buffer duration and clip cap, so the buffer prunes itself.
package capture

import (
	"context"
	"errors"
	"time"
)

// Mode selects what the grabber captures.
type Mode string

const (
	ModeFullScreen Mode = "full_screen"
	ModeWindowOnly Mode = "window_only"
)

var (
	// ErrPermissionDenied is returned when the OS screen-recording
	// permission has not been granted to the running process.
	ErrPermissionDenied = errors.New("capture: screen recording permission denied (grant it in system settings and restart)")

	ErrAlreadyRunning = errors.New("capture: stream already running")
)

// ParseMode validates a user-supplied recording mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeFullScreen, ModeWindowOnly:
		return Mode(s), nil
	case "":
		return ModeFullScreen, nil
	}
	return "", errors.New("capture: recording mode must be full_screen or window_only")
}

// Config controls a capture stream.
type Config struct {
	// BufferDuration bounds how long clips stay available.
	BufferDuration time.Duration
	// ChunkDuration is the interval between captured clips.
	ChunkDuration time.Duration
	// MaxClips caps the number of buffered clips.
	MaxClips int
	// Mode selects full-screen or frontmost-window capture.
	Mode Mode
	// IncludeApps restricts window-only capture to the named apps.
	IncludeApps []string
	// TempDir is where the clip store keeps its files.
	TempDir string
}

func (c Config) withDefaults() Config {
	if c.BufferDuration <= 0 {
		c.BufferDuration = 30 * time.Second
	}
	if c.ChunkDuration <= 0 {
		c.ChunkDuration = 5 * time.Second
	}
	if c.MaxClips <= 0 {
		c.MaxClips = 20
	}
	if c.Mode == "" {
		c.Mode = ModeFullScreen
	}
	return c
}

// Clip is one captured frame.
type Clip struct {
	ID         string
	Seq        int
	CapturedAt time.Time
	MIMEType   string
	Data       []byte
}

// Status reports the buffer state of a stream.
type Status struct {
	Running       bool
	ClipCount     int
	BufferSeconds float64
}

// Grabber produces single frames. Implementations shell out to the OS
// capture tool or synthesize frames in tests.
type Grabber interface {
	// Preflight verifies capture can work at all, mapping a missing OS
	// permission to ErrPermissionDenied.
	Preflight(ctx context.Context) error
	// Frame captures one frame and returns encoded image bytes.
	Frame(ctx context.Context, mode Mode, includeApps []string) (data []byte, mimeType string, err error)
}
