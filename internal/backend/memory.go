package backend

import (
	"context"
	"sort"
	"sync"
	"time"

	"kharcha/internal/core"
)

// MemoryClient is an in-process Client used for local development and tests.
// It assigns primary keys the way the remote store would.
type MemoryClient struct {
	mu            sync.Mutex
	categories    []core.Category
	subCategories []core.SubCategory
	expenses      map[int64]RemoteExpense
	nextID        int64
}

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		expenses: make(map[int64]RemoteExpense),
		nextID:   1,
	}
}

// Seed replaces the reference data served by the client.
func (c *MemoryClient) Seed(categories []core.Category, subCategories []core.SubCategory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.categories = categories
	c.subCategories = subCategories
}

// SeedExpenses loads historical expense rows, keeping the id counter ahead of
// every seeded id.
func (c *MemoryClient) SeedExpenses(expenses []RemoteExpense) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range expenses {
		c.expenses[e.ID] = e
		if e.ID >= c.nextID {
			c.nextID = e.ID + 1
		}
	}
}

func (c *MemoryClient) SelectCategories(ctx context.Context) ([]core.Category, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.Category, len(c.categories))
	copy(out, c.categories)
	return out, nil
}

func (c *MemoryClient) SelectSubCategories(ctx context.Context) ([]core.SubCategory, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.SubCategory, len(c.subCategories))
	copy(out, c.subCategories)
	return out, nil
}

func (c *MemoryClient) SelectExpenses(ctx context.Context, q ExpenseQuery) ([]RemoteExpense, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []RemoteExpense
	for _, e := range c.expenses {
		if !q.From.IsZero() && e.Date.Before(q.From.Time) {
			continue
		}
		if !q.To.IsZero() && e.Date.After(q.To.Time) {
			continue
		}
		if !q.IncludeDeleted && e.DeletedAt != nil {
			continue
		}
		out = append(out, e)
	}
	if q.OrderByDate {
		sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date.Time) })
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (c *MemoryClient) InsertExpense(ctx context.Context, rec ExpenseRecord) (RemoteExpense, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC()
	e := RemoteExpense{
		ID:            c.nextID,
		ExpenseRecord: rec,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	c.nextID++
	c.expenses[e.ID] = e
	return e, nil
}

func (c *MemoryClient) UpdateExpense(ctx context.Context, id int64, rec ExpenseRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.expenses[id]
	if !ok {
		return requestErr("update", "expenses", errNoSuchRow)
	}
	e.ExpenseRecord = rec
	e.UpdatedAt = time.Now().UTC()
	c.expenses[id] = e
	return nil
}

// ExpenseCount returns the number of stored expense rows.
func (c *MemoryClient) ExpenseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.expenses)
}
