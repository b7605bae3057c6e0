package model

import "encoding/json"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

type Genome struct {
	VersionedRecord
	ID        string    `json:"id"`
	Neurons   []Neuron  `json:"neurons"`
	Synapses  []Synapse `json:"synapses"`
	InputIDs  []string  `json:"input_ids"`
	OutputIDs []string  `json:"output_ids"`
}

type Neuron struct {
	ID         string  `json:"id"`
	Activation string  `json:"activation"`
	Bias       float64 `json:"bias"`
}

type Synapse struct {
	ID      string  `json:"id"`
	From    string  `json:"from"`
	To      string  `json:"to"`
	Weight  float64 `json:"weight"`
	Enabled bool    `json:"enabled"`
}

// BirdState is the persisted form of one agent mid-flight.
type BirdState struct {
	X        float64 `json:"pos_x"`
	Y        float64 `json:"pos_y"`
	Velocity float64 `json:"velocity"`
	Tilt     float64 `json:"tilt"`
}

// PipeState is the persisted form of one obstacle. Top and bottom extents are
// derived from Height on restore.
type PipeState struct {
	X      float64 `json:"pos_x"`
	Height float64 `json:"height"`
	Passed bool    `json:"passed"`
}

// GameSnapshot is the in-flight simulation state captured every tick with a
// positive score.
type GameSnapshot struct {
	Birds  []BirdState `json:"birds"`
	Pipes  []PipeState `json:"pipes"`
	BaseX1 float64     `json:"base_x1"`
	BaseX2 float64     `json:"base_x2"`
	Score  int         `json:"score"`
}

// Clone returns a deep copy so the live snapshot can keep mutating.
func (s *GameSnapshot) Clone() *GameSnapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.Birds = append([]BirdState(nil), s.Birds...)
	out.Pipes = append([]PipeState(nil), s.Pipes...)
	return &out
}

// Checkpoint is the composite record written once at shutdown. Population is
// opaque to the persistence layer; it belongs to the training library.
type Checkpoint struct {
	VersionedRecord
	Generation int             `json:"generation"`
	Population json.RawMessage `json:"population"`
	Snapshot   *GameSnapshot   `json:"game_state"`
}

// BestRecord is the single highest-fitness individual seen so far.
type BestRecord struct {
	VersionedRecord
	Genome     Genome          `json:"genome"`
	Fitness    float64         `json:"fitness"`
	Generation int             `json:"generation"`
	Population json.RawMessage `json:"population,omitempty"`
}

type GenerationDiagnostics struct {
	Generation  int     `json:"generation" csv:"generation"`
	Restored    bool    `json:"restored" csv:"restored"`
	SpawnX      float64 `json:"spawn_x" csv:"spawn_x"`
	Score       int     `json:"score" csv:"score"`
	Ticks       int     `json:"ticks" csv:"ticks"`
	DurationMS  int64   `json:"duration_ms" csv:"duration_ms"`
	BestFitness float64 `json:"best_fitness" csv:"best_fitness"`
	MeanFitness float64 `json:"mean_fitness" csv:"mean_fitness"`
	MinFitness  float64 `json:"min_fitness" csv:"min_fitness"`
	StdFitness  float64 `json:"std_fitness" csv:"std_fitness"`
	FastDeaths  int     `json:"fast_deaths" csv:"fast_deaths"`
	Reset       bool    `json:"reset" csv:"reset"`
}
