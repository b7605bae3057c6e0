package stats

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"flapevo/internal/model"
)

const GenerationsFile = "generations.csv"

// CSVWriter appends one row per generation to generations.csv. A nil writer
// discards rows.
type CSVWriter struct {
	file          *os.File
	headerWritten bool
}

func NewCSVWriter(dir string) (*CSVWriter, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	path := filepath.Join(dir, GenerationsFile)
	info, err := os.Stat(path)
	headerWritten := err == nil && info.Size() > 0

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", GenerationsFile, err)
	}
	return &CSVWriter{file: f, headerWritten: headerWritten}, nil
}

func (w *CSVWriter) Report(d model.GenerationDiagnostics) error {
	if w == nil {
		return nil
	}

	records := []model.GenerationDiagnostics{d}
	if !w.headerWritten {
		if err := gocsv.Marshal(records, w.file); err != nil {
			return fmt.Errorf("writing generation row: %w", err)
		}
		w.headerWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, w.file); err != nil {
		return fmt.Errorf("writing generation row: %w", err)
	}
	return nil
}

func (w *CSVWriter) Close() error {
	if w == nil {
		return nil
	}
	return w.file.Close()
}

func ReadGenerations(dir string) ([]model.GenerationDiagnostics, error) {
	f, err := os.Open(filepath.Join(dir, GenerationsFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows []model.GenerationDiagnostics
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
