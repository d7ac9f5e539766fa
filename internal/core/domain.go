package core

import (
	"errors"
	"strings"
	"time"
)

const (
	PriorityNeed     Priority = "need"
	PriorityWant     Priority = "want"
	PriorityUnwanted Priority = "unwanted"
	PriorityPlanned  Priority = "planned"
	PriorityCapex    Priority = "capex"
)

const (
	PaymentUPI          PaymentType = "upi"
	PaymentCreditCard   PaymentType = "credit_card"
	PaymentDebitCard    PaymentType = "debit_card"
	PaymentBankTransfer PaymentType = "bank_transfer"
	PaymentCash         PaymentType = "cash"
)

type (
	// Priority classifies how necessary an expense was.
	Priority string

	// PaymentType is the instrument the expense was paid with.
	PaymentType string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Category is a read-only mirror of a server-side category row. It is
	// replaced wholesale on bootstrap and reference sync, never edited locally.
	Category struct {
		ID          int64
		Code        string
		Description string
		IsActive    bool
		SortOrder   int64
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}

	// SubCategory mirrors a server-side sub-category row. Same lifecycle as
	// Category; always retrieved through its parent category.
	SubCategory struct {
		ID          int64
		CategoryID  int64
		Code        string
		Description string
		IsActive    bool
		SortOrder   int64
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}

	// Expense is the local representation of an expense record.
	//
	// LocalID is the device-local primary key, assigned on insert and never
	// sent to the server. ServerID is zero until the record is known to the
	// server. Synced=false with ServerID==0 is a pending create; Synced=false
	// with ServerID!=0 is a pending update.
	Expense struct {
		LocalID       int64
		ServerID      int64
		Amount        Money
		Date          Date
		CategoryID    int64
		SubCategoryID int64 // 0 means no sub-category selected
		Description   string
		ItemName      string
		Notes         string
		Priority      Priority
		PaymentType   PaymentType
		IsEMI         bool
		IsVacation    bool
		Synced        bool
		CreatedAt     time.Time
		UpdatedAt     time.Time
	}
)

var (
	ErrInvalidDate        = errors.New("invalid expense date")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidPriority    = errors.New("invalid priority")
	ErrInvalidPaymentType = errors.New("invalid payment type")
	ErrMissingCategory    = errors.New("missing category")

	// ErrStoreUnavailable means the local store has not been opened yet.
	// Read accessors absorb it into empty results.
	ErrStoreUnavailable = errors.New("local store unavailable")
)

// ParsePriority validates a priority label at the boundary. Unknown values
// are rejected instead of passed through.
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.TrimSpace(s))
	switch p {
	case PriorityNeed, PriorityWant, PriorityUnwanted, PriorityPlanned, PriorityCapex:
		return p, nil
	}
	return "", ErrInvalidPriority
}

// ParsePaymentType validates a payment type label at the boundary.
func ParsePaymentType(s string) (PaymentType, error) {
	p := PaymentType(strings.TrimSpace(s))
	switch p {
	case PaymentUPI, PaymentCreditCard, PaymentDebitCard, PaymentBankTransfer, PaymentCash:
		return p, nil
	}
	return "", ErrInvalidPaymentType
}

// NewDate creates a Date at midnight UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string, rejecting anything that is not a
// valid calendar date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

// ISO renders the date in YYYY-MM-DD form, the sortable format used by the
// local expense_date index and the backend wire format.
func (d Date) ISO() string {
	return d.Format("2006-01-02")
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Validate checks the fields the accessor layer is responsible for. Form-level
// presentation rules stay in the UI.
func (e Expense) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if e.CategoryID == 0 {
		return ErrMissingCategory
	}
	if _, err := ParsePriority(string(e.Priority)); err != nil {
		return err
	}
	if _, err := ParsePaymentType(string(e.PaymentType)); err != nil {
		return err
	}
	return nil
}
