package capture

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// OSGrabber captures frames with the host's native screenshot tool:
// `screencapture` on macOS, ffmpeg's x11grab elsewhere.
type OSGrabber struct {
	// Display overrides the capture target (":0" style on X11).
	Display string
}

func NewOSGrabber() *OSGrabber { return &OSGrabber{} }

func (g *OSGrabber) Preflight(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	_, _, err := g.Frame(ctx, ModeFullScreen, nil)
	return err
}

func (g *OSGrabber) Frame(ctx context.Context, mode Mode, includeApps []string) ([]byte, string, error) {
	tmp, err := os.CreateTemp("", "inframe-frame-*.png")
	if err != nil {
		return nil, "", err
	}
	path := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(path)

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		args := []string{"-x", "-t", "png"}
		if mode == ModeWindowOnly {
			// -w captures the frontmost window without interaction
			// prompts when combined with -x.
			args = append(args, "-w")
		}
		args = append(args, path)
		cmd = exec.CommandContext(ctx, "screencapture", args...)
	default:
		display := g.Display
		if display == "" {
			display = os.Getenv("DISPLAY")
		}
		if display == "" {
			display = ":0"
		}
		cmd = exec.CommandContext(ctx, "ffmpeg",
			"-y", "-loglevel", "error",
			"-f", "x11grab", "-i", display,
			"-frames:v", "1", path)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if deniedOutput(stderr.String()) {
			return nil, "", ErrPermissionDenied
		}
		return nil, "", fmt.Errorf("capture: %s: %w (%s)", filepath.Base(cmd.Path), err, strings.TrimSpace(stderr.String()))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	// An empty or near-empty file is what screencapture leaves behind
	// when the permission dialog has never been accepted.
	if len(data) < 128 {
		return nil, "", ErrPermissionDenied
	}
	return data, "image/png", nil
}

func deniedOutput(s string) bool {
	s = strings.ToLower(s)
	return strings.Contains(s, "not permitted") ||
		strings.Contains(s, "permission") ||
		strings.Contains(s, "cannot open display")
}
