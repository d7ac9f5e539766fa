// Package backend defines the port to the remote relational store and its
// adapters. The sync engine and analytics depend on the Client capability,
// never on a concrete driver.
package backend

import (
	"context"
	"fmt"
	"time"

	"kharcha/internal/core"
)

// ExpenseQuery narrows a SelectExpenses call. Zero dates mean unbounded; the
// date range is inclusive on both ends, matching the server's read-side
// filters.
type ExpenseQuery struct {
	From           core.Date
	To             core.Date
	IncludeDeleted bool
	OrderByDate    bool
	Limit          int
}

// ExpenseRecord is the wire payload for an expense write. It carries exactly
// the server-side columns: no local id, no synced flag.
type ExpenseRecord struct {
	Amount        core.Money
	Date          core.Date
	CategoryID    int64
	SubCategoryID int64
	Description   string
	ItemName      string
	Notes         string
	Priority      core.Priority
	PaymentType   core.PaymentType
	IsEMI         bool
	IsVacation    bool
}

// RemoteExpense is a server-side expense row, including the server-assigned
// primary key and the soft-delete marker maintained server-side.
type RemoteExpense struct {
	ID        int64
	ExpenseRecord
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// Client is the CRUD-style capability over the remote store. Insert must
// return the row with its assigned primary key.
type Client interface {
	SelectCategories(ctx context.Context) ([]core.Category, error)
	SelectSubCategories(ctx context.Context) ([]core.SubCategory, error)
	SelectExpenses(ctx context.Context, q ExpenseQuery) ([]RemoteExpense, error)
	InsertExpense(ctx context.Context, rec ExpenseRecord) (RemoteExpense, error)
	UpdateExpense(ctx context.Context, id int64, rec ExpenseRecord) error
}

// RequestError wraps any network or backend failure with the operation and
// table it happened on.
type RequestError struct {
	Op    string
	Table string
	Err   error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("backend %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

func requestErr(op, table string, err error) error {
	return &RequestError{Op: op, Table: table, Err: err}
}
