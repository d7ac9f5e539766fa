package backend

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"kharcha/internal/core"

	_ "github.com/lib/pq"
)

// PostgresClient implements Client against the remote Postgres store.
type PostgresClient struct {
	db      *sql.DB
	timeout time.Duration
}

// NewPostgresClient opens a connection pool to the remote store. Every request
// is bounded by timeout; a hung call must not stall a sync pass forever.
func NewPostgresClient(dsn string, timeout time.Duration) (*PostgresClient, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresClient{db: db, timeout: timeout}, nil
}

func (c *PostgresClient) Close() error {
	return c.db.Close()
}

func (c *PostgresClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

func (c *PostgresClient) SelectCategories(ctx context.Context) ([]core.Category, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	rows, err := c.db.QueryContext(ctx,
		`SELECT id, code, description, is_active, sort_order, created_at, updated_at
		FROM categories`)
	if err != nil {
		return nil, requestErr("select", "categories", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var cat core.Category
		if err := rows.Scan(&cat.ID, &cat.Code, &cat.Description, &cat.IsActive,
			&cat.SortOrder, &cat.CreatedAt, &cat.UpdatedAt); err != nil {
			return nil, requestErr("select", "categories", err)
		}
		out = append(out, cat)
	}
	if err := rows.Err(); err != nil {
		return nil, requestErr("select", "categories", err)
	}
	return out, nil
}

func (c *PostgresClient) SelectSubCategories(ctx context.Context) ([]core.SubCategory, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	rows, err := c.db.QueryContext(ctx,
		`SELECT id, category_id, code, description, is_active, sort_order, created_at, updated_at
		FROM sub_categories`)
	if err != nil {
		return nil, requestErr("select", "sub_categories", err)
	}
	defer rows.Close()

	var out []core.SubCategory
	for rows.Next() {
		var sc core.SubCategory
		if err := rows.Scan(&sc.ID, &sc.CategoryID, &sc.Code, &sc.Description, &sc.IsActive,
			&sc.SortOrder, &sc.CreatedAt, &sc.UpdatedAt); err != nil {
			return nil, requestErr("select", "sub_categories", err)
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, requestErr("select", "sub_categories", err)
	}
	return out, nil
}

const remoteExpenseColumns = `id, amount, expense_date, category_id, sub_category_id,
	description, item_name, notes, priority, payment_type, is_emi, is_vacation,
	created_at, updated_at, deleted_at`

func (c *PostgresClient) SelectExpenses(ctx context.Context, q ExpenseQuery) ([]RemoteExpense, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if !q.From.IsZero() {
		where = append(where, "expense_date >= "+arg(q.From.ISO()))
	}
	if !q.To.IsZero() {
		where = append(where, "expense_date <= "+arg(q.To.ISO()))
	}
	if !q.IncludeDeleted {
		where = append(where, "deleted_at IS NULL")
	}

	query := "SELECT " + remoteExpenseColumns + " FROM expenses"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if q.OrderByDate {
		query += " ORDER BY expense_date"
	}
	if q.Limit > 0 {
		query += " LIMIT " + arg(q.Limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, requestErr("select", "expenses", err)
	}
	defer rows.Close()

	var out []RemoteExpense
	for rows.Next() {
		e, err := scanRemoteExpense(rows)
		if err != nil {
			return nil, requestErr("select", "expenses", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, requestErr("select", "expenses", err)
	}
	return out, nil
}

func (c *PostgresClient) InsertExpense(ctx context.Context, rec ExpenseRecord) (RemoteExpense, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	row := c.db.QueryRowContext(ctx,
		`INSERT INTO expenses (amount, expense_date, category_id, sub_category_id,
			description, item_name, notes, priority, payment_type, is_emi, is_vacation)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+remoteExpenseColumns,
		rec.Amount.Decimal(), rec.Date.ISO(), rec.CategoryID, nullID(rec.SubCategoryID),
		nullStr(rec.Description), nullStr(rec.ItemName), nullStr(rec.Notes),
		string(rec.Priority), string(rec.PaymentType), rec.IsEMI, rec.IsVacation)

	e, err := scanRemoteExpense(row)
	if err != nil {
		return RemoteExpense{}, requestErr("insert", "expenses", err)
	}
	return e, nil
}

func (c *PostgresClient) UpdateExpense(ctx context.Context, id int64, rec ExpenseRecord) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	res, err := c.db.ExecContext(ctx,
		`UPDATE expenses SET amount = $1, expense_date = $2, category_id = $3,
			sub_category_id = $4, description = $5, item_name = $6, notes = $7,
			priority = $8, payment_type = $9, is_emi = $10, is_vacation = $11,
			updated_at = now()
		WHERE id = $12`,
		rec.Amount.Decimal(), rec.Date.ISO(), rec.CategoryID, nullID(rec.SubCategoryID),
		nullStr(rec.Description), nullStr(rec.ItemName), nullStr(rec.Notes),
		string(rec.Priority), string(rec.PaymentType), rec.IsEMI, rec.IsVacation, id)
	if err != nil {
		return requestErr("update", "expenses", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return requestErr("update", "expenses", fmt.Errorf("no row with id %d", id))
	}
	return nil
}

type pgScanner interface {
	Scan(dest ...any) error
}

func scanRemoteExpense(row pgScanner) (RemoteExpense, error) {
	var (
		e                            RemoteExpense
		amount                       string
		date                         time.Time
		subCategoryID                sql.NullInt64
		description, itemName, notes sql.NullString
		priority, payment            string
		deletedAt                    sql.NullTime
	)
	if err := row.Scan(&e.ID, &amount, &date, &e.CategoryID, &subCategoryID,
		&description, &itemName, &notes, &priority, &payment, &e.IsEMI, &e.IsVacation,
		&e.CreatedAt, &e.UpdatedAt, &deletedAt); err != nil {
		return RemoteExpense{}, err
	}

	cents, err := core.ParseDecimalToCents(amount)
	if err != nil {
		return RemoteExpense{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	e.Amount = core.Money{Cents: cents}
	e.Date = core.NewDate(date.Year(), int(date.Month()), date.Day())

	e.SubCategoryID = subCategoryID.Int64
	e.Description = description.String
	e.ItemName = itemName.String
	e.Notes = notes.String
	e.Priority = core.Priority(priority)
	e.PaymentType = core.PaymentType(payment)
	if deletedAt.Valid {
		t := deletedAt.Time
		e.DeletedAt = &t
	}
	return e, nil
}

func nullID(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

func nullStr(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
