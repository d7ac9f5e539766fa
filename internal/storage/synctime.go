package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SyncTimeFile persists the last successful sync timestamp as a single string
// in a sidecar file next to the database. It deliberately lives outside the
// versioned store: a schema-conflict wipe leaves it in place, and the next
// bootstrap overwrites it.
type SyncTimeFile struct {
	path string
}

func NewSyncTimeFile(dir string) *SyncTimeFile {
	return &SyncTimeFile{path: filepath.Join(dir, "last_sync")}
}

// Get returns the persisted timestamp string, or "" when none was recorded.
func (f *SyncTimeFile) Get() (string, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read last sync time: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Set persists the timestamp string.
func (f *SyncTimeFile) Set(value string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("create sync time directory: %w", err)
	}
	if err := os.WriteFile(f.path, []byte(value+"\n"), 0644); err != nil {
		return fmt.Errorf("write last sync time: %w", err)
	}
	return nil
}
