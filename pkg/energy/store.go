package energy

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"
)

// recordSchema is bumped whenever the on-disk record layout changes, so a
// future reader can detect and refuse to misinterpret an older file.
const recordSchema = 1

type record struct {
	Schema       int     `cbor:"schema"`
	ChargedWh    float64 `cbor:"charged_wh"`
	DischargedWh float64 `cbor:"discharged_wh"`
}

// FileStore persists energy totals as a CBOR-encoded record on the local
// filesystem. Writes go to a temp file in the same directory followed by an
// atomic rename, so a crash mid-write never leaves a half-written record
// behind for Load to trip over.
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore backed by the file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load() (chargedWh, dischargedWh float64, err error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrNoRecord, err)
	}

	var rec record
	if err := cbor.Unmarshal(data, &rec); err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrNoRecord, err)
	}
	if rec.Schema != recordSchema {
		return 0, 0, fmt.Errorf("%w: unrecognised schema %d", ErrNoRecord, rec.Schema)
	}
	return rec.ChargedWh, rec.DischargedWh, nil
}

func (s *FileStore) Save(chargedWh, dischargedWh float64) error {
	mode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	data, err := mode.Marshal(record{Schema: recordSchema, ChargedWh: chargedWh, DischargedWh: dischargedWh})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".energy-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}
