// Package session persists per-session recording and query statistics.
package session

import (
	"context"
	"time"
)

// Record is one recording session's outcome.
type Record struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	StartedAt          time.Time `json:"started_at"`
	EndedAt            time.Time `json:"ended_at"`
	ClipsRecorded      int       `json:"clips_recorded"`
	ClipsProcessed     int64     `json:"clips_processed"`
	ProcessingFailures int64     `json:"processing_failures"`
	QueriesTotal       int64     `json:"queries_total"`
	QueriesFailed      int64     `json:"queries_failed"`
	AvgConfidence      float64   `json:"avg_confidence"`
}

// Store persists session records.
type Store interface {
	Save(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, bool, error)
	List(ctx context.Context) ([]Record, error)
}
