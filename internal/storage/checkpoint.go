package storage

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"flapevo/internal/model"
)

// CheckpointStore persists population, generation and the in-flight game
// snapshot as one record. Load never fails: anything unreadable is reported
// as absent.
type CheckpointStore struct {
	backend Backend
	log     *slog.Logger
}

func NewCheckpointStore(backend Backend, logger *slog.Logger) *CheckpointStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckpointStore{backend: backend, log: logger.With("record", CheckpointKey)}
}

// Save overwrites any prior checkpoint in full.
func (s *CheckpointStore) Save(ctx context.Context, population json.RawMessage, generation int, snapshot *model.GameSnapshot) error {
	data, err := EncodeCheckpoint(model.Checkpoint{
		Generation: generation,
		Population: population,
		Snapshot:   snapshot,
	})
	if err != nil {
		return &WriteError{Key: CheckpointKey, Err: err}
	}
	if err := s.backend.Write(ctx, CheckpointKey, data); err != nil {
		return &WriteError{Key: CheckpointKey, Err: err}
	}
	return nil
}

func (s *CheckpointStore) Load(ctx context.Context) (model.Checkpoint, bool) {
	data, err := s.backend.Read(ctx, CheckpointKey)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.log.Warn("checkpoint unreadable, starting fresh", "error", err)
		}
		return model.Checkpoint{}, false
	}
	checkpoint, err := DecodeCheckpoint(data)
	if err != nil {
		s.log.Warn("checkpoint corrupt, starting fresh", "error", err, "bytes", len(data))
		return model.Checkpoint{}, false
	}
	return checkpoint, true
}

func (s *CheckpointStore) Delete(ctx context.Context) error {
	return s.backend.Delete(ctx, CheckpointKey)
}
