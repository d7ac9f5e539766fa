package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"kharcha/internal/core"
	"kharcha/internal/storage"
)

// DefaultRecentLimit is the recent-list page size when the caller does not
// pick one.
const DefaultRecentLimit = 10

// PushRequester asks the sync side to run a push pass. Implemented by the
// AMQP client; nil means no out-of-process sync is configured.
type PushRequester interface {
	PublishPushRequest(ctx context.Context, localID int64) error
}

// ExpenseService is the read/write accessor for expense records.
type ExpenseService struct {
	store *storage.Store
	queue PushRequester
	nowFn func() time.Time
}

func NewExpenseService(store *storage.Store, queue PushRequester) *ExpenseService {
	return &ExpenseService{
		store: store,
		queue: queue,
		nowFn: time.Now,
	}
}

// ListRecent returns up to limit expenses, newest expense_date first. Date
// ties keep a stable order (latest insertion first). Returns empty during the
// startup window before the store is open.
func (s *ExpenseService) ListRecent(ctx context.Context, limit int) []core.Expense {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if !s.store.Ready() {
		slog.WarnContext(ctx, "Expense read before store is open, returning empty",
			"component", "expense_service")
		return nil
	}

	expenses, err := s.store.ListRecentExpenses(ctx, limit)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to list recent expenses", "error", err,
			"component", "expense_service")
		return nil
	}
	return expenses
}

// MonthToDateTotal sums amounts over [first day of current month, first day
// of next month). The end is exclusive so no next-month expense slips in.
func (s *ExpenseService) MonthToDateTotal(ctx context.Context) core.Money {
	if !s.store.Ready() {
		return core.Money{}
	}

	now := s.nowFn()
	from := core.NewDate(now.Year(), int(now.Month()), 1)
	to := core.Date{Time: from.AddDate(0, 1, 0)}

	total, err := s.store.SumAmountInRange(ctx, from, to)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to sum month-to-date total", "error", err,
			"component", "expense_service")
		return core.Money{}
	}
	return total
}

// AddExpense stores a new local expense: synced=false, timestamps stamped to
// now, local id assigned by the store. Missing category or an unknown
// priority/payment label is rejected before any store mutation.
func (s *ExpenseService) AddExpense(ctx context.Context, e core.Expense) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}
	if !s.store.Ready() {
		return 0, core.ErrStoreUnavailable
	}

	now := s.nowFn().UTC()
	e.LocalID = 0
	e.ServerID = 0
	e.Synced = false
	e.CreatedAt = now
	e.UpdatedAt = now

	localID, err := s.store.InsertExpense(ctx, e)
	if err != nil {
		return 0, fmt.Errorf("add expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved locally",
		"component", "expense_service",
		"local_id", localID,
		"amount_cents", e.Amount.Cents,
		"expense_date", e.Date.ISO(),
		"category_id", e.CategoryID)

	// Best-effort push request; the record stays pending either way and the
	// periodic sweep will pick it up.
	if s.queue != nil {
		if err := s.queue.PublishPushRequest(ctx, localID); err != nil {
			slog.WarnContext(ctx, "Failed to publish push request", "error", err,
				"component", "expense_service", "local_id", localID)
		}
	}

	return localID, nil
}

// DeleteExpense removes an expense from the local store only. Deletes are
// never propagated to the server in this design: a record already pushed
// stays in the remote store. Known asymmetry.
func (s *ExpenseService) DeleteExpense(ctx context.Context, localID int64) error {
	if !s.store.Ready() {
		return core.ErrStoreUnavailable
	}
	if err := s.store.DeleteExpense(ctx, localID); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense deleted locally",
		"component", "expense_service", "local_id", localID)
	return nil
}
