package storage

import (
	"fmt"
	"path/filepath"
)

// NewBackend builds the backend named by kind. For "file" path is the data
// directory; for "sqlite" it is the database file.
func NewBackend(kind, path string) (Backend, error) {
	switch kind {
	case "memory":
		return NewMemoryBackend(), nil
	case "", "file":
		return NewFileBackend(path), nil
	case "sqlite":
		if filepath.Ext(path) == "" {
			path = filepath.Join(path, "flapevo.db")
		}
		return NewSQLiteBackend(path), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", kind)
	}
}
