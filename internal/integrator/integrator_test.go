package integrator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"inframe/internal/llm"
	"inframe/internal/tester"
	"inframe/internal/vision"
)

func desc(id, text string) vision.Description {
	return vision.Description{ClipID: id, Text: text, At: time.Now()}
}

func TestAddWritesCacheFileAndNotifies(t *testing.T) {
	cache := filepath.Join(t.TempDir(), "20260826")
	g := New(llm.NewFakeClient(), cache, "test session")

	var updates []string
	g.SetCallback(func(current string) { updates = append(updates, current) })

	tester.NoErr(t, g.Add(desc("clip-1", "an editor is open")))
	tester.NoErr(t, g.Add(desc("clip-2", "a terminal is visible")))

	raw, err := os.ReadFile(cache)
	tester.NoErr(t, err)
	content := string(raw)
	tester.True(t, strings.HasPrefix(content, SessionPrefix), "cache must start with session header")
	tester.True(t, strings.Contains(content, "an editor is open"), "cache must carry descriptions")
	tester.Eq(t, len(updates), 2)
	tester.True(t, strings.Contains(updates[1], "a terminal is visible"), "callback gets current context")
	tester.Eq(t, g.Status().Integrated, 2)
}

func TestAddPreservesEarlierSessions(t *testing.T) {
	cache := filepath.Join(t.TempDir(), "20260826")
	prior := SessionPrefix + ": morning session (2026-08-26T09:00:00Z)\n[09:00:05] clip-1: old stuff\n"
	tester.NoErr(t, os.WriteFile(cache, []byte(prior), 0o644))

	g := New(llm.NewFakeClient(), cache, "afternoon session")
	tester.NoErr(t, g.Add(desc("clip-1", "new stuff")))

	raw, err := os.ReadFile(cache)
	tester.NoErr(t, err)
	content := string(raw)
	tester.True(t, strings.Contains(content, "old stuff"), "earlier session must survive")
	tester.True(t, strings.Contains(content, "afternoon session"), "new session must be appended")
	tester.True(t, strings.Index(content, "old stuff") < strings.Index(content, "new stuff"), "sessions in order")
}

func TestAddSkipsEmptyDescriptions(t *testing.T) {
	cache := filepath.Join(t.TempDir(), "ctx")
	g := New(llm.NewFakeClient(), cache, "s")
	tester.NoErr(t, g.Add(desc("clip-1", "   ")))
	tester.Eq(t, g.Status().Integrated, 0)
	if _, err := os.Stat(cache); !os.IsNotExist(err) {
		t.Fatalf("cache file should not exist, stat err=%v", err)
	}
}

func TestCallbackPanicIsRecovered(t *testing.T) {
	cache := filepath.Join(t.TempDir(), "ctx")
	g := New(llm.NewFakeClient(), cache, "s")
	g.SetCallback(func(string) { panic("callback bug") })
	tester.NoErr(t, g.Add(desc("clip-1", "something")))
	tester.Eq(t, g.Status().Integrated, 1)
}

func TestSummary(t *testing.T) {
	cache := filepath.Join(t.TempDir(), "ctx")
	g := New(llm.NewFakeClient(), cache, "s")

	if _, err := g.Summary(context.Background()); err == nil {
		t.Fatal("summary without context should fail")
	}

	tester.NoErr(t, g.Add(desc("clip-1", "coding in Go")))
	sum, err := g.Summary(context.Background())
	tester.NoErr(t, err)
	tester.Eq(t, sum, "fake session summary")
}
