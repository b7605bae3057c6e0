package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"flapevo/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

func currentVersion() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func EncodeCheckpoint(c model.Checkpoint) ([]byte, error) {
	c.VersionedRecord = currentVersion()
	return json.Marshal(c)
}

func DecodeCheckpoint(data []byte) (model.Checkpoint, error) {
	var checkpoint model.Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return model.Checkpoint{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := checkVersion(checkpoint.VersionedRecord); err != nil {
		return model.Checkpoint{}, err
	}
	if isNullPayload(checkpoint.Population) {
		return model.Checkpoint{}, fmt.Errorf("%w: checkpoint has no population", ErrCorrupt)
	}
	if checkpoint.Generation < 0 {
		return model.Checkpoint{}, fmt.Errorf("%w: negative generation %d", ErrCorrupt, checkpoint.Generation)
	}
	return checkpoint, nil
}

func EncodeBest(r model.BestRecord) ([]byte, error) {
	r.VersionedRecord = currentVersion()
	r.Genome.VersionedRecord = currentVersion()
	return json.Marshal(r)
}

// DecodeBest accepts the current record layout and two older ones: a record
// written before generations were tracked, and a bare genome. Both of those
// load with generation 0.
func DecodeBest(data []byte) (model.BestRecord, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return model.BestRecord{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	if _, ok := fields["genome"]; !ok {
		var genome model.Genome
		if err := json.Unmarshal(data, &genome); err != nil {
			return model.BestRecord{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if genome.ID == "" && len(genome.Neurons) == 0 {
			return model.BestRecord{}, fmt.Errorf("%w: best record has no genome", ErrCorrupt)
		}
		return model.BestRecord{Genome: genome}, nil
	}

	var record model.BestRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return model.BestRecord{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if record.VersionedRecord != (model.VersionedRecord{}) {
		if err := checkVersion(record.VersionedRecord); err != nil {
			return model.BestRecord{}, err
		}
	}
	return record, nil
}

func isNullPayload(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
