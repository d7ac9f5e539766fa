package storage

import (
	"testing"
)

func TestSyncTimeFile(t *testing.T) {
	f := NewSyncTimeFile(t.TempDir())

	t.Run("missing file reads as never synced", func(t *testing.T) {
		got, err := f.Get()
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got != "" {
			t.Errorf("expected empty value before first sync, got %q", got)
		}
	})

	t.Run("round trip", func(t *testing.T) {
		if err := f.Set("2024-01-15T10:30:00Z"); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		got, err := f.Get()
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got != "2024-01-15T10:30:00Z" {
			t.Errorf("expected stored timestamp back, got %q", got)
		}
	})

	t.Run("overwrite", func(t *testing.T) {
		if err := f.Set("2024-02-01T00:00:00Z"); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		got, err := f.Get()
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got != "2024-02-01T00:00:00Z" {
			t.Errorf("expected newest timestamp, got %q", got)
		}
	})
}

func TestSyncTimeFile_SurvivesStoreRecreation(t *testing.T) {
	// The sync timestamp lives outside the versioned store on purpose: a
	// schema-conflict wipe must not erase it.
	dir := t.TempDir()
	f := NewSyncTimeFile(dir)
	if err := f.Set("2024-01-15T10:30:00Z"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := removeDatabase(dir + "/kharcha.db"); err != nil {
		t.Fatalf("removeDatabase failed: %v", err)
	}

	got, err := f.Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "2024-01-15T10:30:00Z" {
		t.Errorf("expected sync time to survive store wipe, got %q", got)
	}
}
