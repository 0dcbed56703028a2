package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"inframe/internal/tester"
)

func rec(id string, started time.Time) Record {
	return Record{
		ID:             id,
		Title:          "session " + id,
		StartedAt:      started,
		EndedAt:        started.Add(time.Minute),
		ClipsRecorded:  10,
		ClipsProcessed: 9,
		QueriesTotal:   4,
		AvgConfidence:  0.8,
	}
}

func TestJSONStoreSaveGetList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	s := NewJSONStore(path)
	ctx := context.Background()
	base := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)

	tester.NoErr(t, s.Save(ctx, rec("b", base.Add(time.Hour))))
	tester.NoErr(t, s.Save(ctx, rec("a", base)))

	got, ok, err := s.Get(ctx, "a")
	tester.NoErr(t, err)
	tester.True(t, ok, "record a should exist")
	tester.Eq(t, got.ClipsRecorded, 10)

	list, err := s.List(ctx)
	tester.NoErr(t, err)
	tester.Eq(t, len(list), 2)
	tester.Eq(t, list[0].ID, "a", "list sorted by start time")

	_, ok, err = s.Get(ctx, "missing")
	tester.NoErr(t, err)
	tester.False(t, ok, "missing record")
}

func TestJSONStoreReloadsFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	ctx := context.Background()
	base := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)

	s1 := NewJSONStore(path)
	tester.NoErr(t, s1.Save(ctx, rec("x", base)))

	s2 := NewJSONStore(path)
	got, ok, err := s2.Get(ctx, "x")
	tester.NoErr(t, err)
	tester.True(t, ok, "record should survive reopen")
	tester.Eq(t, got.Title, "session x")
}

func TestJSONStoreUpsert(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	s := NewJSONStore(path)
	ctx := context.Background()
	base := time.Now()

	r := rec("u", base)
	tester.NoErr(t, s.Save(ctx, r))
	r.ClipsRecorded = 42
	tester.NoErr(t, s.Save(ctx, r))

	got, ok, err := s.Get(ctx, "u")
	tester.NoErr(t, err)
	tester.True(t, ok, "record should exist")
	tester.Eq(t, got.ClipsRecorded, 42)

	list, err := s.List(ctx)
	tester.NoErr(t, err)
	tester.Eq(t, len(list), 1, "upsert must not duplicate")
}

func TestJSONStoreRejectsEmptyID(t *testing.T) {
	s := NewJSONStore(filepath.Join(t.TempDir(), "sessions.json"))
	if err := s.Save(context.Background(), Record{}); err == nil {
		t.Fatal("expected error for empty id")
	}
}
