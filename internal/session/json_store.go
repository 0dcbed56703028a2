package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// JSONStore keeps records in one JSON file, loaded once and rewritten
// in full on every save.
type JSONStore struct {
	path string

	mu       sync.Mutex
	loadOnce sync.Once
	loadErr  error
	rows     map[string]Record
}

func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path, rows: map[string]Record{}}
}

func (s *JSONStore) Save(_ context.Context, rec Record) error {
	if rec.ID == "" {
		return fmt.Errorf("session: record id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(); err != nil {
		return err
	}
	s.rows[rec.ID] = rec
	return s.persistLocked()
}

func (s *JSONStore) Get(_ context.Context, id string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(); err != nil {
		return Record{}, false, err
	}
	rec, ok := s.rows[id]
	return rec, ok, nil
}

func (s *JSONStore) List(_ context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(); err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(s.rows))
	for _, rec := range s.rows {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (s *JSONStore) ensureLoadedLocked() error {
	s.loadOnce.Do(func() {
		raw, err := os.ReadFile(s.path)
		if err != nil {
			if os.IsNotExist(err) {
				return
			}
			s.loadErr = err
			return
		}
		var rows []Record
		if err := json.Unmarshal(raw, &rows); err != nil {
			s.loadErr = fmt.Errorf("session: corrupt store %s: %w", s.path, err)
			return
		}
		for _, rec := range rows {
			if rec.ID != "" {
				s.rows[rec.ID] = rec
			}
		}
	})
	return s.loadErr
}

func (s *JSONStore) persistLocked() error {
	rows := make([]Record, 0, len(s.rows))
	for _, rec := range s.rows {
		rows = append(rows, rec)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].StartedAt.Before(rows[j].StartedAt) })
	raw, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
