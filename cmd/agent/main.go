// Command agent runs the example coding-agent flow: record the screen,
// watch for an IDE, then ask which project directory is open and shut
// down once it has a confident answer.
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
	"inframe/internal/query"
	"inframe/internal/recorder"
	"inframe/internal/session"
)

var ideApps = []string{"Visual Studio Code", "Cursor", "PyCharm", "IntelliJ IDEA"}

const agentVisualTask = "Describe the screen content focusing on application names, window titles, " +
	"file names, project names, and any visible directory paths."

const (
	ideQuestion = "Is a code editor or IDE (such as VS Code, Cursor, PyCharm, or IntelliJ) visible on screen?"
	dirQuestion = "What project directory or workspace is currently open in the editor? Answer with the directory name."

	ideConfidence = 0.8
	dirConfidence = 0.6
)

func main() {
	timeout := flag.Duration("timeout", 5*time.Minute, "give up if no confident answer arrives in this window")
	flag.Parse()

	if err := run(*timeout); err != nil {
		log.Fatalf("agent: %v", err)
	}
}

func run(timeout time.Duration) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client, err := buildClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	broker := llm.NewBroker(llm.NewLimiter(cfg.RPS, cfg.Burst))

	rec, err := recorder.New(recorder.Options{
		Client:       client,
		Broker:       broker,
		SessionTitle: "Agent Session - " + time.Now().Format("2006-01-02 15:04:05"),
	})
	if err != nil {
		return err
	}

	recID, err := rec.Add(recorder.Config{
		Mode:        capture.ModeWindowOnly,
		IncludeApps: ideApps,
		VisualTask:  agentVisualTask,
	})
	if err != nil {
		return err
	}
	if err := rec.Start(ctx, recID); err != nil {
		return err
	}
	startedAt := time.Now()
	log.Printf("recording started, cache file %s", rec.CacheFilePath())

	queries := query.New(client, rec, broker)
	defer queries.Shutdown()

	// directory answer (or timeout / signal) ends the run
	done := make(chan string, 1)

	var dirID string
	dirID = queries.Add(query.Spec{
		Prompt: dirQuestion,
		Callback: func(res query.Result) {
			if res.Err != nil || res.Confidence <= dirConfidence {
				return
			}
			log.Printf("project directory: %s (confidence %.2f)", res.Answer, res.Confidence)
			select {
			case done <- res.Answer:
			default:
			}
		},
	})

	var ideID string
	ideID = queries.Add(query.Spec{
		Prompt: ideQuestion,
		Callback: func(res query.Result) {
			if res.Err != nil || res.Confidence <= ideConfidence {
				return
			}
			if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(res.Answer)), "YES") {
				return
			}
			log.Printf("IDE detected (confidence %.2f), asking for the project directory", res.Confidence)
			_ = queries.Stop(ideID)
			if err := queries.Start(dirID); err != nil {
				log.Printf("start directory query: %v", err)
			}
		},
	})
	if err := queries.Start(ideID); err != nil {
		return err
	}

	var answer string
	select {
	case answer = <-done:
	case <-time.After(timeout):
		log.Printf("no confident answer within %v, shutting down", timeout)
	case <-ctx.Done():
		log.Printf("interrupted, shutting down")
	}

	st := rec.Status(recID)

	// Graceful shutdown: queries first, then the recorder.
	queries.Shutdown()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	if err := rec.Shutdown(stopCtx); err != nil {
		log.Printf("recorder shutdown: %v", err)
	}

	saveSession(stopCtx, cfg, rec, st, queries.Stats(), startedAt)

	if answer != "" {
		fmt.Printf("project directory: %s\n", answer)
	}
	return nil
}

func buildClient(ctx context.Context, cfg *config.Config) (llm.Client, error) {
	var base llm.Client
	if cfg.Offline {
		base = llm.NewFakeClient()
	} else {
		c, err := llm.NewGeminiClient(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		base = c
	}
	return llm.Wrap(base,
		llm.WithLogging(nil),
		llm.Retry(3, 500*time.Millisecond),
		llm.RateLimit(cfg.RPS, cfg.Burst),
	), nil
}

func saveSession(ctx context.Context, cfg *config.Config, rec *recorder.Recorder, st recorder.Status, qs query.Stats, startedAt time.Time) {
	store, err := buildSessionStore(cfg)
	if err != nil {
		log.Printf("session store: %v", err)
		return
	}

	record := session.Record{
		ID:                 uuid.NewString(),
		Title:              rec.SessionTitle(),
		StartedAt:          startedAt,
		EndedAt:            time.Now(),
		ClipsRecorded:      st.VideoClips,
		ClipsProcessed:     st.ProcessedClips,
		ProcessingFailures: st.FailedClips,
		QueriesTotal:       qs.Total,
		QueriesFailed:      qs.Failed,
		AvgConfidence:      qs.AverageConfidence,
	}
	if err := store.Save(ctx, record); err != nil {
		log.Printf("save session: %v", err)
		return
	}
	log.Printf("session %s saved", record.ID)

	archiveSession(ctx, cfg, rec, record)
}

func buildSessionStore(cfg *config.Config) (session.Store, error) {
	if cfg.SessionDSN != "" {
		return session.NewPostgresStore(cfg.SessionDSN)
	}
	return session.NewJSONStore(recorder.DefaultSessionsPath()), nil
}

func archiveSession(ctx context.Context, cfg *config.Config, rec *recorder.Recorder, record session.Record) {
	if !cfg.Archive.Enabled {
		return
	}
	arch, err := archive.NewS3Archive(archive.S3Config{
		Endpoint:  cfg.Archive.Endpoint,
		Region:    cfg.Archive.Region,
		AccessKey: cfg.Archive.AccessKey,
		SecretKey: cfg.Archive.SecretKey,
		Bucket:    cfg.Archive.Bucket,
		UseSSL:    cfg.Archive.UseSSL,
	})
	if err != nil {
		log.Printf("archive: %v", err)
		return
	}
	if current := rec.CurrentContext(); current != "" {
		if err := arch.Put(ctx, record.ID, "context.txt", []byte(current)); err != nil {
			log.Printf("archive context: %v", err)
		}
	}
	if summary, err := rec.ExportSummary(ctx); err == nil && summary != "" {
		if err := arch.Put(ctx, record.ID, "summary.txt", []byte(summary)); err != nil {
			log.Printf("archive summary: %v", err)
		}
	}
}
