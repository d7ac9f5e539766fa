package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"kharcha/internal/core"
	"kharcha/internal/notify"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "kharcha.db"), notify.NewBus())
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testExpense(date core.Date, cents int64) core.Expense {
	now := time.Now().UTC()
	return core.Expense{
		Amount:      core.Money{Cents: cents},
		Date:        date,
		CategoryID:  1,
		Description: "test expense",
		Priority:    core.PriorityNeed,
		PaymentType: core.PaymentUPI,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestOpen_FreshStore(t *testing.T) {
	store := openTestStore(t)

	if !store.Ready() {
		t.Error("freshly opened store should be ready")
	}
	if store.RequiresBootstrap() {
		t.Error("fresh store should not report bootstrap required")
	}

	count, err := store.CountCategories(context.Background())
	if err != nil {
		t.Fatalf("CountCategories failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 categories in fresh store, got %d", count)
	}
}

func TestOpen_SchemaVersionConflictRecreatesStore(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "kharcha.db")

	store, err := Open(dbPath, notify.NewBus())
	if err != nil {
		t.Fatalf("first open failed: %v", err)
	}
	if err := store.ReplaceCategories(ctx, []core.Category{{ID: 1, Code: "food", Description: "Food"}}); err != nil {
		t.Fatalf("seed category failed: %v", err)
	}
	if _, err := store.InsertExpense(ctx, testExpense(core.NewDate(2024, 1, 15), 45000)); err != nil {
		t.Fatalf("seed expense failed: %v", err)
	}
	store.Close()

	// Pretend a newer build wrote this store.
	raw, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open raw db failed: %v", err)
	}
	if _, err := raw.Exec("UPDATE schema_migrations SET version = 999"); err != nil {
		t.Fatalf("bump schema version failed: %v", err)
	}
	raw.Close()

	reopened, err := Open(dbPath, notify.NewBus())
	if err != nil {
		t.Fatalf("reopen after version conflict failed: %v", err)
	}
	defer reopened.Close()

	if !reopened.Ready() {
		t.Error("recreated store should be ready")
	}
	if !reopened.RequiresBootstrap() {
		t.Error("recreated store should report bootstrap required")
	}

	count, err := reopened.CountCategories(ctx)
	if err != nil {
		t.Fatalf("CountCategories failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected empty store after recreation, got %d categories", count)
	}
	expenses, err := reopened.ListRecentExpenses(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecentExpenses failed: %v", err)
	}
	if len(expenses) != 0 {
		t.Errorf("expected no expenses after recreation, got %d", len(expenses))
	}
}

func TestReplaceCategories_FullReplace(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	first := []core.Category{
		{ID: 1, Code: "food", Description: "Food", IsActive: true, SortOrder: 2},
		{ID: 2, Code: "rent", Description: "Rent", IsActive: true, SortOrder: 1},
	}
	if err := store.ReplaceCategories(ctx, first); err != nil {
		t.Fatalf("ReplaceCategories failed: %v", err)
	}

	second := []core.Category{
		{ID: 3, Code: "travel", Description: "Travel", IsActive: true, SortOrder: 1},
	}
	if err := store.ReplaceCategories(ctx, second); err != nil {
		t.Fatalf("second ReplaceCategories failed: %v", err)
	}

	got, err := store.ListCategories(ctx)
	if err != nil {
		t.Fatalf("ListCategories failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected full replace to leave 1 category, got %d", len(got))
	}
	if got[0].Code != "travel" {
		t.Errorf("expected travel, got %s", got[0].Code)
	}
}

func TestListSubCategoriesByCategory(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	subs := []core.SubCategory{
		{ID: 1, CategoryID: 1, Code: "groceries", Description: "Groceries", IsActive: true, SortOrder: 2},
		{ID: 2, CategoryID: 1, Code: "dining", Description: "Dining out", IsActive: true, SortOrder: 1},
		{ID: 3, CategoryID: 2, Code: "flights", Description: "Flights", IsActive: true},
	}
	if err := store.ReplaceSubCategories(ctx, subs); err != nil {
		t.Fatalf("ReplaceSubCategories failed: %v", err)
	}

	got, err := store.ListSubCategoriesByCategory(ctx, 1)
	if err != nil {
		t.Fatalf("ListSubCategoriesByCategory failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 sub-categories for category 1, got %d", len(got))
	}
	if got[0].Code != "dining" {
		t.Errorf("expected sort_order ordering, got %s first", got[0].Code)
	}

	none, err := store.ListSubCategoriesByCategory(ctx, 99)
	if err != nil {
		t.Fatalf("ListSubCategoriesByCategory failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no sub-categories for unknown category, got %d", len(none))
	}
}

func TestListRecentExpenses_Ordering(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	// Insert out of date order, with a tie on the middle date.
	dates := []core.Date{
		core.NewDate(2024, 1, 10),
		core.NewDate(2024, 1, 20),
		core.NewDate(2024, 1, 15),
		core.NewDate(2024, 1, 15),
	}
	ids := make([]int64, len(dates))
	for i, d := range dates {
		id, err := store.InsertExpense(ctx, testExpense(d, 1000))
		if err != nil {
			t.Fatalf("InsertExpense failed: %v", err)
		}
		ids[i] = id
	}

	got, err := store.ListRecentExpenses(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecentExpenses failed: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 expenses, got %d", len(got))
	}
	if got[0].Date.ISO() != "2024-01-20" {
		t.Errorf("expected newest date first, got %s", got[0].Date.ISO())
	}
	// Tied dates break by insertion recency.
	if got[1].LocalID != ids[3] || got[2].LocalID != ids[2] {
		t.Errorf("expected tie to order by local id desc, got %d then %d", got[1].LocalID, got[2].LocalID)
	}

	limited, err := store.ListRecentExpenses(ctx, 2)
	if err != nil {
		t.Fatalf("ListRecentExpenses failed: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("expected limit to cap results at 2, got %d", len(limited))
	}
}

func TestSumAmountInRange_HalfOpenInterval(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	// One expense on each side of the month boundaries.
	for _, tc := range []struct {
		date  core.Date
		cents int64
	}{
		{core.NewDate(2024, 1, 31), 99900}, // previous month, excluded
		{core.NewDate(2024, 2, 1), 100},    // first day, included
		{core.NewDate(2024, 2, 15), 200},   // mid month, included
		{core.NewDate(2024, 2, 29), 400},   // last day (leap), included
		{core.NewDate(2024, 3, 1), 80000},  // next month, excluded
	} {
		if _, err := store.InsertExpense(ctx, testExpense(tc.date, tc.cents)); err != nil {
			t.Fatalf("InsertExpense failed: %v", err)
		}
	}

	total, err := store.SumAmountInRange(ctx, core.NewDate(2024, 2, 1), core.NewDate(2024, 3, 1))
	if err != nil {
		t.Fatalf("SumAmountInRange failed: %v", err)
	}
	if total.Cents != 700 {
		t.Errorf("expected 700 cents for February, got %d", total.Cents)
	}
}

func TestSumAmountInRange_Empty(t *testing.T) {
	store := openTestStore(t)

	total, err := store.SumAmountInRange(context.Background(), core.NewDate(2024, 2, 1), core.NewDate(2024, 3, 1))
	if err != nil {
		t.Fatalf("SumAmountInRange failed: %v", err)
	}
	if total.Cents != 0 {
		t.Errorf("expected zero total for empty store, got %d", total.Cents)
	}
}

func TestInsertExpense_LocalIDsNeverReused(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	first, err := store.InsertExpense(ctx, testExpense(core.NewDate(2024, 1, 1), 100))
	if err != nil {
		t.Fatalf("InsertExpense failed: %v", err)
	}
	if err := store.DeleteExpense(ctx, first); err != nil {
		t.Fatalf("DeleteExpense failed: %v", err)
	}

	second, err := store.InsertExpense(ctx, testExpense(core.NewDate(2024, 1, 2), 200))
	if err != nil {
		t.Fatalf("InsertExpense failed: %v", err)
	}
	if second <= first {
		t.Errorf("expected fresh local id after delete, got %d then %d", first, second)
	}
}

func TestPutExpense_UpsertByLocalID(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	id, err := store.InsertExpense(ctx, testExpense(core.NewDate(2024, 1, 15), 45000))
	if err != nil {
		t.Fatalf("InsertExpense failed: %v", err)
	}

	e, err := store.GetExpense(ctx, id)
	if err != nil {
		t.Fatalf("GetExpense failed: %v", err)
	}
	if e == nil {
		t.Fatal("expected expense, got nil")
	}
	if e.Synced {
		t.Error("freshly inserted expense should not be synced")
	}

	e.ServerID = 999
	e.Synced = true
	if err := store.PutExpense(ctx, *e); err != nil {
		t.Fatalf("PutExpense failed: %v", err)
	}

	got, err := store.GetExpense(ctx, id)
	if err != nil {
		t.Fatalf("GetExpense failed: %v", err)
	}
	if got.ServerID != 999 || !got.Synced {
		t.Errorf("expected server id 999 and synced, got id=%d synced=%t", got.ServerID, got.Synced)
	}

	// Upsert must not create a second row.
	all, err := store.ListRecentExpenses(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecentExpenses failed: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected 1 expense after upsert, got %d", len(all))
	}
}

func TestListPendingExpenses(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	a, err := store.InsertExpense(ctx, testExpense(core.NewDate(2024, 1, 20), 100))
	if err != nil {
		t.Fatalf("InsertExpense failed: %v", err)
	}
	b, err := store.InsertExpense(ctx, testExpense(core.NewDate(2024, 1, 10), 200))
	if err != nil {
		t.Fatalf("InsertExpense failed: %v", err)
	}

	synced := testExpense(core.NewDate(2024, 1, 5), 300)
	synced.ServerID = 7
	synced.Synced = true
	if err := store.PutExpense(ctx, synced); err != nil {
		t.Fatalf("PutExpense failed: %v", err)
	}

	pending, err := store.ListPendingExpenses(ctx)
	if err != nil {
		t.Fatalf("ListPendingExpenses failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending expenses, got %d", len(pending))
	}
	// Creation order, regardless of expense date.
	if pending[0].LocalID != a || pending[1].LocalID != b {
		t.Errorf("expected creation order %d,%d got %d,%d", a, b, pending[0].LocalID, pending[1].LocalID)
	}
}

func TestDeleteExpense_NotifiesOnlyWhenRowExisted(t *testing.T) {
	ctx := context.Background()
	bus := notify.NewBus()
	store, err := Open(filepath.Join(t.TempDir(), "kharcha.db"), bus)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	id, err := store.InsertExpense(ctx, testExpense(core.NewDate(2024, 1, 15), 100))
	if err != nil {
		t.Fatalf("InsertExpense failed: %v", err)
	}

	notifications := 0
	sub := bus.Subscribe(func() { notifications++ })
	defer sub.Unsubscribe()

	if err := store.DeleteExpense(ctx, id); err != nil {
		t.Fatalf("DeleteExpense failed: %v", err)
	}
	if notifications != 1 {
		t.Errorf("expected 1 notification after delete, got %d", notifications)
	}

	if err := store.DeleteExpense(ctx, id); err != nil {
		t.Fatalf("second DeleteExpense failed: %v", err)
	}
	if notifications != 1 {
		t.Errorf("deleting an absent row should not notify, got %d notifications", notifications)
	}
}

func TestBulkPutExpenses_SingleNotification(t *testing.T) {
	ctx := context.Background()
	bus := notify.NewBus()
	store, err := Open(filepath.Join(t.TempDir(), "kharcha.db"), bus)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	notifications := 0
	sub := bus.Subscribe(func() { notifications++ })
	defer sub.Unsubscribe()

	batch := []core.Expense{
		testExpense(core.NewDate(2024, 1, 1), 100),
		testExpense(core.NewDate(2024, 1, 2), 200),
		testExpense(core.NewDate(2024, 1, 3), 300),
	}
	for i := range batch {
		batch[i].Synced = true
		batch[i].ServerID = int64(i + 1)
	}
	if err := store.BulkPutExpenses(ctx, batch); err != nil {
		t.Fatalf("BulkPutExpenses failed: %v", err)
	}

	if notifications != 1 {
		t.Errorf("expected a single notification for the batch, got %d", notifications)
	}

	got, err := store.ListRecentExpenses(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecentExpenses failed: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("expected 3 expenses, got %d", len(got))
	}
}
