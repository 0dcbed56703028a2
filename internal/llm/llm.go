package llm

import (
	"context"
	"encoding/json"
	"errors"
)

var ErrInvalidJSON = errors.New("llm: invalid JSON from model")

// Client is the minimal surface the recorder and querier need from a
// language model provider.
type Client interface {
	Name() string
	// GenerateJSON sends prompt plus a JSON-encoded input and returns the
	// model's JSON response body.
	GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error)
	// DescribeImage returns a plain-text description of a single image.
	DescribeImage(ctx context.Context, prompt, mimeType string, data []byte) (string, error)
	Close() error
}

// PermanentError marks a failure that will not resolve with retries
// (bad credentials, malformed request, content rejection).
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}
