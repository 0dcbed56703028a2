// Command record captures the screen for a fixed duration and writes
// the described context to the cache file.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"inframe/internal/archive"
	"inframe/internal/capture"
	"inframe/internal/config"
	"inframe/internal/llm"
	"inframe/internal/recorder"
	"inframe/internal/vision"
)

func main() {
	var (
		duration     time.Duration
		includeApps  string
		mode         string
		visualTask   string
		printContext bool
		cacheFile    string
	)
	flag.DurationVar(&duration, "duration", 30*time.Second, "how long to record")
	flag.DurationVar(&duration, "d", 30*time.Second, "how long to record (shorthand)")
	flag.StringVar(&includeApps, "include-apps", "", "comma-separated app names to capture (window mode)")
	flag.StringVar(&mode, "recording-mode", string(capture.ModeFullScreen), "full_screen or window_only")
	flag.StringVar(&visualTask, "visual-task", vision.DefaultTask, "prompt used to describe each clip")
	flag.BoolVar(&printContext, "print-context", false, "print the integrated context on exit")
	flag.StringVar(&cacheFile, "cache-file", "", "context cache file (defaults to ~/.cache/inframe/<date>)")
	fetchArchive := flag.String("fetch-archive", "", "print an archived session's context instead of recording")
	flag.Parse()

	if *fetchArchive != "" {
		if err := fetchArchived(*fetchArchive); err != nil {
			log.Fatalf("record: %v", err)
		}
		return
	}

	if err := run(duration, includeApps, mode, visualTask, printContext, cacheFile); err != nil {
		log.Fatalf("record: %v", err)
	}
}

// fetchArchived pulls a previously archived session back out of the
// bucket and prints it.
func fetchArchived(sessionID string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !cfg.Archive.Enabled {
		return fmt.Errorf("archive is not configured (set INFRAME_S3_ENDPOINT)")
	}
	arch, err := newArchive(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	data, ok, err := arch.Get(ctx, sessionID, "context.txt")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no archived context for session %s", sessionID)
	}
	fmt.Print(string(data))
	if summary, ok, err := arch.Get(ctx, sessionID, "summary.txt"); err == nil && ok {
		fmt.Printf("\nSummary: %s\n", summary)
	}
	return nil
}

func run(duration time.Duration, includeApps, mode, visualTask string, printContext bool, cacheFile string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	captureMode, err := capture.ParseMode(mode)
	if err != nil {
		return err
	}
	var apps []string
	for _, a := range strings.Split(includeApps, ",") {
		if a = strings.TrimSpace(a); a != "" {
			apps = append(apps, a)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var base llm.Client
	if cfg.Offline {
		base = llm.NewFakeClient()
	} else {
		base, err = llm.NewGeminiClient(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return err
		}
	}
	client := llm.Wrap(base,
		llm.Retry(3, 500*time.Millisecond),
		llm.RateLimitFromEnv("LLM", "GEMINI"),
	)
	defer client.Close()

	rec, err := recorder.New(recorder.Options{
		Client:    client,
		CacheFile: cacheFile,
	})
	if err != nil {
		return err
	}

	id, err := rec.Add(recorder.Config{
		Mode:        captureMode,
		IncludeApps: apps,
		VisualTask:  visualTask,
	})
	if err != nil {
		return err
	}
	if err := rec.Start(ctx, id); err != nil {
		return err
	}
	log.Printf("recording for %v (cache file %s)", duration, rec.CacheFilePath())

	select {
	case <-time.After(duration):
	case <-ctx.Done():
		log.Printf("interrupted")
	}

	st := rec.Status(id)
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	if err := rec.Stop(stopCtx, id); err != nil {
		return err
	}

	log.Printf("done: %d clips processed, %d failed", st.ProcessedClips, st.FailedClips)
	fmt.Printf("context cache: %s\n", rec.CacheFilePath())
	if printContext {
		if current := rec.CurrentContext(); current != "" {
			fmt.Println(current)
		}
	}
	archiveIfConfigured(stopCtx, cfg, rec)
	return nil
}

func archiveIfConfigured(ctx context.Context, cfg *config.Config, rec *recorder.Recorder) {
	if !cfg.Archive.Enabled {
		return
	}
	arch, err := newArchive(cfg)
	if err != nil {
		log.Printf("archive: %v", err)
		return
	}
	id := uuid.NewString()
	if current := rec.CurrentContext(); current != "" {
		if err := arch.Put(ctx, id, "context.txt", []byte(current)); err != nil {
			log.Printf("archive context: %v", err)
			return
		}
	}
	if summary, err := rec.ExportSummary(ctx); err == nil && summary != "" {
		if err := arch.Put(ctx, id, "summary.txt", []byte(summary)); err != nil {
			log.Printf("archive summary: %v", err)
			return
		}
	}
	log.Printf("session archived as %s", id)
}

func newArchive(cfg *config.Config) (*archive.S3Archive, error) {
	return archive.NewS3Archive(archive.S3Config{
		Endpoint:  cfg.Archive.Endpoint,
		Region:    cfg.Archive.Region,
		AccessKey: cfg.Archive.AccessKey,
		SecretKey: cfg.Archive.SecretKey,
		Bucket:    cfg.Archive.Bucket,
		UseSSL:    cfg.Archive.UseSSL,
	})
}
