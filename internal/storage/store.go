package storage

import (
	"context"
	"errors"
	"fmt"
)

const (
	CheckpointKey = "checkpoint"
	BestKey       = "best_genome"
)

var (
	// ErrNotFound means no record exists under the key. Callers treat it as
	// "no prior state", never as a failure.
	ErrNotFound = errors.New("record not found")
	ErrCorrupt  = errors.New("record corrupt")
)

// Backend is a key/blob store. Write replaces the whole record; a reader never
// observes a partially written value.
type Backend interface {
	Init(ctx context.Context) error
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// WriteError reports a failed save. It is logged by the shutdown path and never
// aborts it.
type WriteError struct {
	Key string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Key, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
