// Package services holds the accessor and sync layers between the local store
// and consumers.
package services

import (
	"context"
	"log/slog"
	"sync"

	"kharcha/internal/core"
	"kharcha/internal/notify"
	"kharcha/internal/storage"
)

// ReferenceService exposes the category and sub-category mirrors to consumers.
// It keeps a cached, sorted category snapshot that is refreshed whenever the
// store signals a change.
//
// Reference reads never fail the caller: a store problem degrades to an empty
// result with a logged warning.
type ReferenceService struct {
	store *storage.Store
	sub   *notify.Subscription

	mu         sync.Mutex
	categories []core.Category
	cached     bool
}

func NewReferenceService(store *storage.Store, bus *notify.Bus) *ReferenceService {
	s := &ReferenceService{store: store}
	if bus != nil {
		// The bus delivers synchronously on the mutator's goroutine, so the
		// callback only drops the snapshot; the re-read happens on next access.
		s.sub = bus.Subscribe(s.invalidate)
	}
	return s
}

// Close releases the bus subscription.
func (s *ReferenceService) Close() {
	s.sub.Unsubscribe()
}

func (s *ReferenceService) invalidate() {
	s.mu.Lock()
	s.cached = false
	s.mu.Unlock()
}

// ListCategories returns all categories sorted by sort_order, ties by
// description.
func (s *ReferenceService) ListCategories(ctx context.Context) []core.Category {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached {
		return append([]core.Category(nil), s.categories...)
	}

	if !s.store.Ready() {
		slog.WarnContext(ctx, "Category read before store is open, returning empty",
			"component", "reference_service")
		return nil
	}

	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to list categories", "error", err,
			"component", "reference_service")
		return nil
	}

	s.categories = categories
	s.cached = true
	return append([]core.Category(nil), categories...)
}

// ListSubCategories returns the sub-categories of one category, sorted like
// categories. A zero category id returns empty without touching the store.
func (s *ReferenceService) ListSubCategories(ctx context.Context, categoryID int64) []core.SubCategory {
	if categoryID == 0 {
		return nil
	}
	if !s.store.Ready() {
		slog.WarnContext(ctx, "Sub-category read before store is open, returning empty",
			"component", "reference_service", "category_id", categoryID)
		return nil
	}

	subCategories, err := s.store.ListSubCategoriesByCategory(ctx, categoryID)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to list sub-categories", "error", err,
			"component", "reference_service", "category_id", categoryID)
		return nil
	}
	return subCategories
}
