package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

const (
	runIndexFile   = "run_index.json"
	runSummaryFile = "summary.json"
)

type RunSummary struct {
	RunID            string    `json:"run_id"`
	StartGeneration  int       `json:"start_generation"`
	EndGeneration    int       `json:"end_generation"`
	Generations      int       `json:"generations"`
	BestFitness      float64   `json:"best_fitness"`
	BestGeneration   int       `json:"best_generation"`
	FastDeathResets  int       `json:"fast_death_resets"`
	StopReason       string    `json:"stop_reason"`
	BestByGeneration []float64 `json:"best_by_generation"`
	StartedAtUTC     string    `json:"started_at_utc"`
	FinishedAtUTC    string    `json:"finished_at_utc"`
}

type RunIndexEntry struct {
	RunID         string  `json:"run_id"`
	Generations   int     `json:"generations"`
	BestFitness   float64 `json:"best_fitness"`
	StopReason    string  `json:"stop_reason"`
	FinishedAtUTC string  `json:"finished_at_utc"`
}

// WriteRunSummary stores summary.json under baseDir/<run id> and returns the
// run directory.
func WriteRunSummary(baseDir string, summary RunSummary) (string, error) {
	if summary.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}
	runDir := filepath.Join(baseDir, summary.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, runSummaryFile), summary); err != nil {
		return "", err
	}
	return runDir, nil
}

func ReadRunSummary(baseDir, runID string) (RunSummary, bool, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runID, runSummaryFile))
	if err != nil {
		if os.IsNotExist(err) {
			return RunSummary{}, false, nil
		}
		return RunSummary{}, false, err
	}
	var summary RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return RunSummary{}, false, err
	}
	return summary, true, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}
	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}
	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns runs newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].FinishedAtUTC > entries[j].FinishedAtUTC
	})
	return entries, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}
