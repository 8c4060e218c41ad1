// Package snapshot persists annotated event snapshots to local disk or
// S3-compatible object storage.
package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
)

// DirWriter stores snapshots as files under a directory.
type DirWriter struct {
	dir string
}

// NewDirWriter creates the snapshot directory if needed.
func NewDirWriter(dir string) (*DirWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating snapshot directory: %w", err)
	}
	return &DirWriter{dir: dir}, nil
}

// Save writes the snapshot and returns its path on disk.
func (w *DirWriter) Save(filename string, jpeg []byte) (string, error) {
	path := filepath.Join(w.dir, filename)
	if err := os.WriteFile(path, jpeg, 0o644); err != nil {
		return "", fmt.Errorf("writing snapshot: %w", err)
	}
	return path, nil
}
