package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"kharcha/internal/backend"
	"kharcha/internal/core"
	"kharcha/internal/storage"
)

// ErrSyncInFlight rejects a sync request while another one is running.
var ErrSyncInFlight = errors.New("sync already in flight")

// SyncService reconciles the local store with the remote backend: a one-time
// reference+history bootstrap plus incremental pushes of locally created or
// mutated expenses. The direction is strictly device-to-server; nothing is
// pulled after bootstrap.
type SyncService struct {
	store    *storage.Store
	client   backend.Client
	syncTime *storage.SyncTimeFile
	nowFn    func() time.Time

	// serializes sync passes; a second caller is rejected, not queued
	inFlight sync.Mutex
}

func NewSyncService(store *storage.Store, client backend.Client, syncTime *storage.SyncTimeFile) *SyncService {
	return &SyncService{
		store:    store,
		client:   client,
		syncTime: syncTime,
		nowFn:    time.Now,
	}
}

// Bootstrap downloads reference data and historical expenses into an empty
// local store. A store with at least one category counts as already
// initialized and the call is a no-op with zero backend traffic. Partial
// bootstraps are not detected; the emptiness check is the whole guard.
//
// Backend failures propagate to the caller. Collections already written stay
// written; there is no rollback across collections.
func (s *SyncService) Bootstrap(ctx context.Context) error {
	if !s.store.Ready() {
		return core.ErrStoreUnavailable
	}

	count, err := s.store.CountCategories(ctx)
	if err != nil {
		return fmt.Errorf("check bootstrap state: %w", err)
	}
	if count > 0 {
		slog.InfoContext(ctx, "Bootstrap skipped, local data exists",
			"component", "sync_service", "categories", count)
		return nil
	}

	slog.InfoContext(ctx, "Starting bootstrap", "component", "sync_service")

	categories, err := s.client.SelectCategories(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap categories: %w", err)
	}
	if err := s.store.ReplaceCategories(ctx, categories); err != nil {
		return fmt.Errorf("bootstrap categories: %w", err)
	}

	subCategories, err := s.client.SelectSubCategories(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap sub-categories: %w", err)
	}
	if err := s.store.ReplaceSubCategories(ctx, subCategories); err != nil {
		return fmt.Errorf("bootstrap sub-categories: %w", err)
	}

	// The historical download mirrors every server row, soft-deleted ones
	// included; the read-side analytics filter them, the mirror does not.
	remote, err := s.client.SelectExpenses(ctx, backend.ExpenseQuery{IncludeDeleted: true})
	if err != nil {
		return fmt.Errorf("bootstrap expenses: %w", err)
	}
	expenses := make([]core.Expense, len(remote))
	for i, r := range remote {
		expenses[i] = fromRemote(r)
	}
	if err := s.store.BulkPutExpenses(ctx, expenses); err != nil {
		return fmt.Errorf("bootstrap expenses: %w", err)
	}

	if err := s.SetLastSyncTime(s.nowFn().UTC().Format(time.RFC3339)); err != nil {
		slog.WarnContext(ctx, "Failed to record bootstrap sync time", "error", err,
			"component", "sync_service")
	}

	slog.InfoContext(ctx, "Bootstrap completed",
		"component", "sync_service",
		"categories", len(categories),
		"sub_categories", len(subCategories),
		"expenses", len(expenses))
	return nil
}

// SyncCategories re-fetches the categories mirror wholesale. Full replace,
// never a field-by-field merge.
func (s *SyncService) SyncCategories(ctx context.Context) error {
	if !s.store.Ready() {
		return core.ErrStoreUnavailable
	}

	categories, err := s.client.SelectCategories(ctx)
	if err != nil {
		return fmt.Errorf("sync categories: %w", err)
	}
	if err := s.store.ReplaceCategories(ctx, categories); err != nil {
		return fmt.Errorf("sync categories: %w", err)
	}
	s.recordSyncTime(ctx)

	slog.InfoContext(ctx, "Categories synced", "component", "sync_service",
		"count", len(categories))
	return nil
}

// SyncSubcategories re-fetches the sub_categories mirror wholesale.
func (s *SyncService) SyncSubcategories(ctx context.Context) error {
	if !s.store.Ready() {
		return core.ErrStoreUnavailable
	}

	subCategories, err := s.client.SelectSubCategories(ctx)
	if err != nil {
		return fmt.Errorf("sync sub-categories: %w", err)
	}
	if err := s.store.ReplaceSubCategories(ctx, subCategories); err != nil {
		return fmt.Errorf("sync sub-categories: %w", err)
	}
	s.recordSyncTime(ctx)

	slog.InfoContext(ctx, "Sub-categories synced", "component", "sync_service",
		"count", len(subCategories))
	return nil
}

// PushChanges pushes every pending local expense to the backend, strictly one
// at a time in creation order. A record without a server id is inserted and
// adopts the returned id; one with a server id is updated in place. Either
// way the record flips to synced on success.
//
// A single record's failure is logged and skipped; the record stays pending
// and the next pass retries it with a payload rebuilt from current local
// state, so retries are idempotent. Only a failure to read the pending set is
// a hard error. Returns the number of records pushed.
func (s *SyncService) PushChanges(ctx context.Context) (int, error) {
	if !s.inFlight.TryLock() {
		return 0, ErrSyncInFlight
	}
	defer s.inFlight.Unlock()

	if !s.store.Ready() {
		return 0, core.ErrStoreUnavailable
	}

	pending, err := s.store.ListPendingExpenses(ctx)
	if err != nil {
		return 0, fmt.Errorf("read pending expenses: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	slog.InfoContext(ctx, "Pushing pending expenses",
		"component", "sync_service", "count", len(pending))

	pushed := 0
	for _, e := range pending {
		if err := s.pushOne(ctx, e); err != nil {
			slog.ErrorContext(ctx, "Failed to push expense, will retry next pass",
				"component", "sync_service",
				"local_id", e.LocalID,
				"server_id", e.ServerID,
				"error", err)
			continue
		}
		pushed++
	}

	slog.InfoContext(ctx, "Push pass completed",
		"component", "sync_service", "pushed", pushed, "pending", len(pending)-pushed)
	return pushed, nil
}

func (s *SyncService) pushOne(ctx context.Context, e core.Expense) error {
	rec := toRecord(e)

	if e.ServerID == 0 {
		// pending create
		remote, err := s.client.InsertExpense(ctx, rec)
		if err != nil {
			return err
		}
		e.ServerID = remote.ID
	} else {
		// pending update
		if err := s.client.UpdateExpense(ctx, e.ServerID, rec); err != nil {
			return err
		}
	}

	e.Synced = true
	if err := s.store.PutExpense(ctx, e); err != nil {
		// The backend write landed; losing the local flag only means a
		// redundant retry next pass.
		return fmt.Errorf("mark synced: %w", err)
	}
	return nil
}

// LastSyncTime returns the persisted last-sync timestamp string, "" if never
// synced.
func (s *SyncService) LastSyncTime() (string, error) {
	return s.syncTime.Get()
}

// SetLastSyncTime persists the last-sync timestamp string.
func (s *SyncService) SetLastSyncTime(value string) error {
	return s.syncTime.Set(value)
}

func (s *SyncService) recordSyncTime(ctx context.Context) {
	if err := s.SetLastSyncTime(s.nowFn().UTC().Format(time.RFC3339)); err != nil {
		slog.WarnContext(ctx, "Failed to record sync time", "error", err,
			"component", "sync_service")
	}
}

func toRecord(e core.Expense) backend.ExpenseRecord {
	return backend.ExpenseRecord{
		Amount:        e.Amount,
		Date:          e.Date,
		CategoryID:    e.CategoryID,
		SubCategoryID: e.SubCategoryID,
		Description:   e.Description,
		ItemName:      e.ItemName,
		Notes:         e.Notes,
		Priority:      e.Priority,
		PaymentType:   e.PaymentType,
		IsEMI:         e.IsEMI,
		IsVacation:    e.IsVacation,
	}
}

// fromRemote converts a bootstrap-downloaded row to its local form. Rows from
// the server are synced by definition.
func fromRemote(r backend.RemoteExpense) core.Expense {
	return core.Expense{
		ServerID:      r.ID,
		Amount:        r.Amount,
		Date:          r.Date,
		CategoryID:    r.CategoryID,
		SubCategoryID: r.SubCategoryID,
		Description:   r.Description,
		ItemName:      r.ItemName,
		Notes:         r.Notes,
		Priority:      r.Priority,
		PaymentType:   r.PaymentType,
		IsEMI:         r.IsEMI,
		IsVacation:    r.IsVacation,
		Synced:        true,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}
