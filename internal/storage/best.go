package storage

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"flapevo/internal/model"
)

// BestStore keeps the highest-fitness genome in its own record, independent of
// the checkpoint.
type BestStore struct {
	backend Backend
	log     *slog.Logger

	// Population, when set, is written alongside the best genome. Load ignores it.
	Population func() json.RawMessage
}

func NewBestStore(backend Backend, logger *slog.Logger) *BestStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &BestStore{backend: backend, log: logger.With("record", BestKey)}
}

func (s *BestStore) Save(ctx context.Context, genome model.Genome, fitness float64, generation int) error {
	record := model.BestRecord{
		Genome:     genome,
		Fitness:    fitness,
		Generation: generation,
	}
	if s.Population != nil {
		record.Population = s.Population()
	}
	data, err := EncodeBest(record)
	if err != nil {
		return &WriteError{Key: BestKey, Err: err}
	}
	if err := s.backend.Write(ctx, BestKey, data); err != nil {
		return &WriteError{Key: BestKey, Err: err}
	}
	return nil
}

func (s *BestStore) Load(ctx context.Context) (model.BestRecord, bool) {
	data, err := s.backend.Read(ctx, BestKey)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.log.Warn("best record unreadable", "error", err)
		}
		return model.BestRecord{}, false
	}
	record, err := DecodeBest(data)
	if err != nil {
		s.log.Warn("best record corrupt, ignoring", "error", err, "bytes", len(data))
		return model.BestRecord{}, false
	}
	return record, true
}

func (s *BestStore) Delete(ctx context.Context) error {
	return s.backend.Delete(ctx, BestKey)
}
