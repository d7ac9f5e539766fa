// Package storage implements the on-device local store: a SQLite mirror of
// reference data plus locally entered expenses, durable across restarts and
// scoped per device profile.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"kharcha/internal/core"
	"kharcha/internal/notify"

	_ "modernc.org/sqlite"
)

const timeFormat = time.RFC3339Nano

// Store is the single shared handle over the local SQLite database. All
// accessors and the sync engine go through one Store; its lifecycle is owned
// by the application root.
type Store struct {
	db   *sql.DB
	bus  *notify.Bus
	path string

	// set when a schema version conflict forced a destructive recreation
	requiresBootstrap bool
}

// Open establishes the store connection and brings the schema to the current
// version.
//
// If the persisted store was created at a newer (incompatible) schema version,
// the whole database is destroyed and recreated empty: the local store is a
// cache, not the source of truth. RequiresBootstrap reports when that
// happened so callers can re-bootstrap. The conflict itself never propagates.
func Open(dbPath string, bus *notify.Bus) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	recreated := false
	if err := runMigrations(dbPath); err != nil {
		if !errors.Is(err, ErrSchemaVersionConflict) {
			return nil, err
		}
		slog.Warn("Local store schema version conflict, recreating empty store",
			"db_path", dbPath, "error", err)
		if err := removeDatabase(dbPath); err != nil {
			return nil, fmt.Errorf("remove conflicting store: %w", err)
		}
		if err := runMigrations(dbPath); err != nil {
			return nil, fmt.Errorf("recreate store: %w", err)
		}
		recreated = true
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{
		db:                db,
		bus:               bus,
		path:              dbPath,
		requiresBootstrap: recreated,
	}, nil
}

func removeDatabase(dbPath string) error {
	// SQLite sidecar files must go too or the recreated db inherits stale pages
	for _, p := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ready reports whether the store is open and usable.
func (s *Store) Ready() bool {
	return s != nil && s.db != nil
}

// RequiresBootstrap reports whether Open had to destroy and recreate the
// store, leaving it empty.
func (s *Store) RequiresBootstrap() bool {
	return s != nil && s.requiresBootstrap
}

func (s *Store) notifyChanged() {
	if s.bus != nil {
		s.bus.Publish()
	}
}

// --- categories ---

const categoryColumns = "id, code, description, is_active, sort_order, created_at, updated_at"

// GetCategory returns the category with the given id, or nil if absent.
func (s *Store) GetCategory(ctx context.Context, id int64) (*core.Category, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+categoryColumns+" FROM categories WHERE id = ?", id)
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	return &c, nil
}

// ListCategories returns all categories ordered by sort_order, ties broken by
// description.
func (s *Store) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+categoryColumns+" FROM categories ORDER BY sort_order, description")
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountCategories returns the number of locally mirrored categories. The sync
// engine uses it as the bootstrap emptiness guard.
func (s *Store) CountCategories(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM categories").Scan(&n); err != nil {
		return 0, fmt.Errorf("count categories: %w", err)
	}
	return n, nil
}

// ReplaceCategories replaces the whole categories mirror in one transaction.
// Reference tables are full-replace, never merged field by field.
func (s *Store) ReplaceCategories(ctx context.Context, categories []core.Category) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace categories: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM categories"); err != nil {
		return fmt.Errorf("clear categories: %w", err)
	}
	for _, c := range categories {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO categories ("+categoryColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
			c.ID, c.Code, c.Description, c.IsActive, c.SortOrder,
			c.CreatedAt.Format(timeFormat), c.UpdatedAt.Format(timeFormat))
		if err != nil {
			return fmt.Errorf("insert category %d: %w", c.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace categories: %w", err)
	}

	s.notifyChanged()
	return nil
}

// --- sub-categories ---

const subCategoryColumns = "id, category_id, code, description, is_active, sort_order, created_at, updated_at"

// ListSubCategoriesByCategory returns the sub-categories of one category via
// the category_id index, ordered by sort_order then description.
func (s *Store) ListSubCategoriesByCategory(ctx context.Context, categoryID int64) ([]core.SubCategory, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+subCategoryColumns+" FROM sub_categories WHERE category_id = ? ORDER BY sort_order, description",
		categoryID)
	if err != nil {
		return nil, fmt.Errorf("list sub-categories: %w", err)
	}
	defer rows.Close()

	var out []core.SubCategory
	for rows.Next() {
		sc, err := scanSubCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sub-category: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// ReplaceSubCategories replaces the whole sub_categories mirror in one
// transaction.
func (s *Store) ReplaceSubCategories(ctx context.Context, subCategories []core.SubCategory) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace sub-categories: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM sub_categories"); err != nil {
		return fmt.Errorf("clear sub-categories: %w", err)
	}
	for _, sc := range subCategories {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO sub_categories ("+subCategoryColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			sc.ID, sc.CategoryID, sc.Code, sc.Description, sc.IsActive, sc.SortOrder,
			sc.CreatedAt.Format(timeFormat), sc.UpdatedAt.Format(timeFormat))
		if err != nil {
			return fmt.Errorf("insert sub-category %d: %w", sc.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace sub-categories: %w", err)
	}

	s.notifyChanged()
	return nil
}

// --- expenses ---

const expenseColumns = `local_id, server_id, amount_cents, expense_date, category_id,
	sub_category_id, description, item_name, notes, priority, payment_type,
	is_emi, is_vacation, synced, created_at, updated_at`

// GetExpense returns the expense with the given local id, or nil if absent.
func (s *Store) GetExpense(ctx context.Context, localID int64) (*core.Expense, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+expenseColumns+" FROM expenses WHERE local_id = ?", localID)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get expense: %w", err)
	}
	return &e, nil
}

// ListRecentExpenses returns up to limit expenses ordered by expense_date
// descending. Date ties resolve by descending local_id, which keeps the
// ordering stable across reads.
func (s *Store) ListRecentExpenses(ctx context.Context, limit int) ([]core.Expense, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+expenseColumns+" FROM expenses ORDER BY expense_date DESC, local_id DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, fmt.Errorf("list recent expenses: %w", err)
	}
	defer rows.Close()
	return collectExpenses(rows)
}

// ListPendingExpenses returns all unsynced expenses in local_id order, which
// is creation order. The sync engine pushes them strictly in this order.
func (s *Store) ListPendingExpenses(ctx context.Context) ([]core.Expense, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+expenseColumns+" FROM expenses WHERE synced = 0 ORDER BY local_id")
	if err != nil {
		return nil, fmt.Errorf("list pending expenses: %w", err)
	}
	defer rows.Close()
	return collectExpenses(rows)
}

// SumAmountInRange sums amounts over the half-open date interval [from, to).
// The exclusive end keeps next-period rows out regardless of their time part.
func (s *Store) SumAmountInRange(ctx context.Context, from, to core.Date) (core.Money, error) {
	var cents sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT SUM(amount_cents) FROM expenses WHERE expense_date >= ? AND expense_date < ?",
		from.ISO(), to.ISO()).Scan(&cents)
	if err != nil {
		return core.Money{}, fmt.Errorf("sum amount in range: %w", err)
	}
	return core.Money{Cents: cents.Int64}, nil
}

// InsertExpense inserts a new expense and returns its assigned local id.
func (s *Store) InsertExpense(ctx context.Context, e core.Expense) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO expenses (server_id, amount_cents, expense_date, category_id,
			sub_category_id, description, item_name, notes, priority, payment_type,
			is_emi, is_vacation, synced, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		expenseArgs(e)...)
	if err != nil {
		return 0, fmt.Errorf("insert expense: %w", err)
	}
	localID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert expense id: %w", err)
	}

	s.notifyChanged()
	return localID, nil
}

// PutExpense upserts an expense keyed by local_id. The sync engine uses it to
// attach server ids and flip the synced flag.
func (s *Store) PutExpense(ctx context.Context, e core.Expense) error {
	if e.LocalID == 0 {
		_, err := s.InsertExpense(ctx, e)
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO expenses (`+expenseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(local_id) DO UPDATE SET
			server_id = excluded.server_id,
			amount_cents = excluded.amount_cents,
			expense_date = excluded.expense_date,
			category_id = excluded.category_id,
			sub_category_id = excluded.sub_category_id,
			description = excluded.description,
			item_name = excluded.item_name,
			notes = excluded.notes,
			priority = excluded.priority,
			payment_type = excluded.payment_type,
			is_emi = excluded.is_emi,
			is_vacation = excluded.is_vacation,
			synced = excluded.synced,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		append([]any{e.LocalID}, expenseArgs(e)...)...)
	if err != nil {
		return fmt.Errorf("put expense: %w", err)
	}

	s.notifyChanged()
	return nil
}

// BulkPutExpenses upserts a batch in one transaction with a single change
// notification. Bootstrap uses it for the historical download.
func (s *Store) BulkPutExpenses(ctx context.Context, expenses []core.Expense) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bulk put expenses: %w", err)
	}
	defer tx.Rollback()

	for _, e := range expenses {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO expenses (server_id, amount_cents, expense_date, category_id,
				sub_category_id, description, item_name, notes, priority, payment_type,
				is_emi, is_vacation, synced, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			expenseArgs(e)...)
		if err != nil {
			return fmt.Errorf("bulk insert expense: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bulk put expenses: %w", err)
	}

	s.notifyChanged()
	return nil
}

// DeleteExpense removes an expense; a miss is a silent no-op and emits no
// change notification.
func (s *Store) DeleteExpense(ctx context.Context, localID int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM expenses WHERE local_id = ?", localID)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.notifyChanged()
	}
	return nil
}

// --- row scanning ---

type scanner interface {
	Scan(dest ...any) error
}

func scanCategory(row scanner) (core.Category, error) {
	var (
		c                    core.Category
		createdAt, updatedAt string
	)
	if err := row.Scan(&c.ID, &c.Code, &c.Description, &c.IsActive, &c.SortOrder,
		&createdAt, &updatedAt); err != nil {
		return core.Category{}, err
	}
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return c, nil
}

func scanSubCategory(row scanner) (core.SubCategory, error) {
	var (
		sc                   core.SubCategory
		createdAt, updatedAt string
	)
	if err := row.Scan(&sc.ID, &sc.CategoryID, &sc.Code, &sc.Description, &sc.IsActive,
		&sc.SortOrder, &createdAt, &updatedAt); err != nil {
		return core.SubCategory{}, err
	}
	sc.CreatedAt = parseTime(createdAt)
	sc.UpdatedAt = parseTime(updatedAt)
	return sc, nil
}

func scanExpense(row scanner) (core.Expense, error) {
	var (
		e                            core.Expense
		serverID, subCategoryID      sql.NullInt64
		description, itemName, notes sql.NullString
		date, priority, payment      string
		createdAt, updatedAt         string
	)
	if err := row.Scan(&e.LocalID, &serverID, &e.Amount.Cents, &date, &e.CategoryID,
		&subCategoryID, &description, &itemName, &notes, &priority, &payment,
		&e.IsEMI, &e.IsVacation, &e.Synced, &createdAt, &updatedAt); err != nil {
		return core.Expense{}, err
	}
	e.ServerID = serverID.Int64
	e.SubCategoryID = subCategoryID.Int64
	e.Description = description.String
	e.ItemName = itemName.String
	e.Notes = notes.String
	e.Priority = core.Priority(priority)
	e.PaymentType = core.PaymentType(payment)
	if d, err := core.ParseDate(date); err == nil {
		e.Date = d
	}
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	return e, nil
}

func collectExpenses(rows *sql.Rows) ([]core.Expense, error) {
	var out []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func expenseArgs(e core.Expense) []any {
	return []any{
		nullInt64(e.ServerID), e.Amount.Cents, e.Date.ISO(), e.CategoryID,
		nullInt64(e.SubCategoryID), nullString(e.Description), nullString(e.ItemName),
		nullString(e.Notes), string(e.Priority), string(e.PaymentType),
		e.IsEMI, e.IsVacation, e.Synced,
		e.CreatedAt.Format(timeFormat), e.UpdatedAt.Format(timeFormat),
	}
}

func nullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeFormat, s)
	return t
}
