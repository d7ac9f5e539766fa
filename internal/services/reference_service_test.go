package services

import (
	"context"
	"path/filepath"
	"testing"

	"kharcha/internal/core"
	"kharcha/internal/notify"
	"kharcha/internal/storage"
)

func newReferenceFixture(t *testing.T) (*storage.Store, *ReferenceService) {
	t.Helper()
	bus := notify.NewBus()
	store, err := storage.Open(filepath.Join(t.TempDir(), "kharcha.db"), bus)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	service := NewReferenceService(store, bus)
	t.Cleanup(service.Close)
	return store, service
}

func TestReferenceService_ListCategories(t *testing.T) {
	ctx := context.Background()
	store, service := newReferenceFixture(t)

	if got := service.ListCategories(ctx); len(got) != 0 {
		t.Errorf("expected empty list before any sync, got %d", len(got))
	}

	if err := store.ReplaceCategories(ctx, []core.Category{
		{ID: 1, Code: "food", Description: "Food", IsActive: true, SortOrder: 2},
		{ID: 2, Code: "rent", Description: "Rent", IsActive: true, SortOrder: 1},
	}); err != nil {
		t.Fatalf("ReplaceCategories failed: %v", err)
	}

	got := service.ListCategories(ctx)
	if len(got) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(got))
	}
	if got[0].Code != "rent" {
		t.Errorf("expected sort_order ordering, got %s first", got[0].Code)
	}
}

func TestReferenceService_CacheInvalidatedOnStoreChange(t *testing.T) {
	ctx := context.Background()
	store, service := newReferenceFixture(t)

	if err := store.ReplaceCategories(ctx, []core.Category{
		{ID: 1, Code: "old", Description: "Old"},
	}); err != nil {
		t.Fatalf("ReplaceCategories failed: %v", err)
	}
	if got := service.ListCategories(ctx); len(got) != 1 || got[0].Code != "old" {
		t.Fatalf("expected old snapshot, got %v", got)
	}

	// The replace publishes a change signal, which must drop the snapshot.
	if err := store.ReplaceCategories(ctx, []core.Category{
		{ID: 2, Code: "new", Description: "New"},
	}); err != nil {
		t.Fatalf("second ReplaceCategories failed: %v", err)
	}

	got := service.ListCategories(ctx)
	if len(got) != 1 || got[0].Code != "new" {
		t.Errorf("expected refreshed snapshot after change signal, got %v", got)
	}
}

func TestReferenceService_CallersCannotMutateCache(t *testing.T) {
	ctx := context.Background()
	store, service := newReferenceFixture(t)

	if err := store.ReplaceCategories(ctx, []core.Category{
		{ID: 1, Code: "food", Description: "Food"},
	}); err != nil {
		t.Fatalf("ReplaceCategories failed: %v", err)
	}

	first := service.ListCategories(ctx)
	first[0].Code = "mutated"

	second := service.ListCategories(ctx)
	if second[0].Code != "food" {
		t.Errorf("expected cache isolated from caller mutation, got %s", second[0].Code)
	}
}

func TestReferenceService_ListSubCategories(t *testing.T) {
	ctx := context.Background()
	store, service := newReferenceFixture(t)

	if err := store.ReplaceSubCategories(ctx, []core.SubCategory{
		{ID: 1, CategoryID: 5, Code: "groceries", Description: "Groceries"},
		{ID: 2, CategoryID: 6, Code: "flights", Description: "Flights"},
	}); err != nil {
		t.Fatalf("ReplaceSubCategories failed: %v", err)
	}

	got := service.ListSubCategories(ctx, 5)
	if len(got) != 1 || got[0].Code != "groceries" {
		t.Errorf("expected groceries for category 5, got %v", got)
	}

	if got := service.ListSubCategories(ctx, 0); got != nil {
		t.Errorf("expected nil for zero category id, got %v", got)
	}
}
