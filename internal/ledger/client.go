// Package ledger keeps the signed-in user's expenses in memory and in sync
// with the remote document store.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"expense-ledger/internal/format"
	"expense-ledger/internal/models"

	"github.com/shopspring/decimal"
)

// Validation errors. They are returned before any remote call is made.
var (
	ErrInvalidAmount    = errors.New("amount must be a positive number")
	ErrEmptyDescription = errors.New("description is required")
	ErrEmptyCategory    = errors.New("category is required")
	ErrUnknownCategory  = errors.New("unknown category")
)

// ErrNotFound is returned by a Store when the addressed expense does not exist.
var ErrNotFound = errors.New("ledger: expense not found")

// Store is the remote document store, partitioned by user id.
type Store interface {
	CreateExpense(ctx context.Context, userID string, e models.Expense) error
	ListExpenses(ctx context.Context, userID string) ([]models.Expense, error)
	UpdateExpense(ctx context.Context, userID, id string, u models.ExpenseUpdate) error
	DeleteExpense(ctx context.Context, userID, id string) error
}

// Identity reports who is signed in.
type Identity interface {
	UserID() (string, bool)
}

// Persister is a local cache of a user's ledger that survives restarts.
type Persister interface {
	LoadExpenses(userID string) ([]models.Expense, error)
	SaveExpenses(userID string, expenses []models.Expense) error
}

// Candidate is the input of Add. Amount is the raw text the user typed.
type Candidate struct {
	Amount      string
	Description string
	Category    string
	Date        time.Time
}

// Client is the single writer of the in-memory ledger.
type Client struct {
	store    Store
	identity Identity
	cache    Persister
	now      func() time.Time
	newID    func() string

	// ops serializes operations so they run in call order.
	ops sync.Mutex

	mu       sync.RWMutex
	owner    string
	expenses []models.Expense
}

// NewClient returns an empty ledger. cache may be nil.
func NewClient(store Store, identity Identity, cache Persister) *Client {
	return &Client{
		store:    store,
		identity: identity,
		cache:    cache,
		now:      time.Now,
		newID:    format.NewID,
	}
}

// List returns a copy of the signed-in user's expenses.
func (c *Client) List() []models.Expense {
	uid, ok := c.identity.UserID()
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !ok || uid != c.owner {
		return []models.Expense{}
	}
	return slices.Clone(c.expenses)
}

// Hydrate loads the cached ledger of the signed-in user, if any.
func (c *Client) Hydrate() error {
	uid, ok := c.identity.UserID()
	if !ok || c.cache == nil {
		return nil
	}
	c.ops.Lock()
	defer c.ops.Unlock()

	expenses, err := c.cache.LoadExpenses(uid)
	if err != nil {
		return fmt.Errorf("load cached expenses: %w", err)
	}
	sortByDateDesc(expenses)
	c.replace(uid, expenses)
	return nil
}

// Refresh replaces the in-memory list with the remote one.
func (c *Client) Refresh(ctx context.Context) error {
	uid, ok := c.identity.UserID()
	if !ok {
		return nil
	}
	c.ops.Lock()
	defer c.ops.Unlock()

	expenses, err := c.store.ListExpenses(ctx, uid)
	if err != nil {
		slog.Error("fetch expenses failed", "uid", uid, "error", err)
		return fmt.Errorf("fetch expenses: %w", err)
	}
	sortByDateDesc(expenses)
	c.replace(uid, expenses)
	c.persist(uid)
	return nil
}

// Add validates the candidate, stores it remotely and prepends it to the list.
func (c *Client) Add(ctx context.Context, cand Candidate) (*models.Expense, error) {
	e, err := c.build(cand)
	if err != nil {
		return nil, err
	}
	uid, ok := c.identity.UserID()
	if !ok {
		return nil, nil
	}
	c.ops.Lock()
	defer c.ops.Unlock()

	if err := c.store.CreateExpense(ctx, uid, e); err != nil {
		slog.Error("add expense failed", "uid", uid, "error", err)
		return nil, fmt.Errorf("add expense: %w", err)
	}

	c.mu.Lock()
	c.claim(uid)
	c.expenses = append([]models.Expense{e}, c.expenses...)
	c.mu.Unlock()
	c.persist(uid)
	return &e, nil
}

func (c *Client) build(cand Candidate) (models.Expense, error) {
	amount, err := ParseAmount(cand.Amount)
	if err != nil {
		return models.Expense{}, err
	}
	desc := strings.TrimSpace(cand.Description)
	if desc == "" {
		return models.Expense{}, ErrEmptyDescription
	}
	cat, err := validCategory(cand.Category)
	if err != nil {
		return models.Expense{}, err
	}
	date := cand.Date
	if date.IsZero() {
		date = c.now()
	}
	return models.Expense{
		ID:          c.newID(),
		Amount:      amount,
		Description: desc,
		Category:    cat,
		Date:        date,
	}, nil
}

// maxAmount is the first value the NUMERIC(14, 2) amount column cannot hold.
var maxAmount = decimal.New(1, 12)

// ParseAmount accepts a positive decimal number in plain notation.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if strings.ContainsAny(s, "eE") {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if err := checkAmount(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// checkAmount requires 0 < d < maxAmount with at most two decimals. The
// exponent is bounded first so that no comparison rescales a huge value.
func checkAmount(d decimal.Decimal) error {
	if exp := d.Exponent(); exp > 0 || exp < -maxScale {
		return ErrInvalidAmount
	}
	if !d.IsPositive() || d.GreaterThanOrEqual(maxAmount) || !d.Round(2).Equal(d) {
		return ErrInvalidAmount
	}
	return nil
}

// maxScale allows trailing zeros such as "1.500" but nothing unbounded.
const maxScale = 18

func validCategory(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", ErrEmptyCategory
	}
	cat, ok := models.LookupCategory(name)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, name)
	}
	return cat.Name, nil
}

// ValidateUpdate checks the fields an update sets.
func ValidateUpdate(u models.ExpenseUpdate) (models.ExpenseUpdate, error) {
	if u.Amount != nil {
		if err := checkAmount(*u.Amount); err != nil {
			return u, err
		}
	}
	if u.Description != nil {
		desc := strings.TrimSpace(*u.Description)
		if desc == "" {
			return u, ErrEmptyDescription
		}
		u.Description = &desc
	}
	if u.Category != nil {
		cat, err := validCategory(*u.Category)
		if err != nil {
			return u, err
		}
		u.Category = &cat
	}
	return u, nil
}

// Modify stores the update remotely and merges it into the local record.
func (c *Client) Modify(ctx context.Context, id string, u models.ExpenseUpdate) error {
	u, err := ValidateUpdate(u)
	if err != nil {
		return err
	}
	uid, ok := c.identity.UserID()
	if !ok {
		return nil
	}
	c.ops.Lock()
	defer c.ops.Unlock()

	if err := c.store.UpdateExpense(ctx, uid, id, u); err != nil {
		slog.Error("update expense failed", "uid", uid, "id", id, "error", err)
		return fmt.Errorf("update expense: %w", err)
	}

	c.mu.Lock()
	c.claim(uid)
	if i := c.index(id); i >= 0 {
		c.expenses[i] = u.Apply(c.expenses[i])
	}
	c.mu.Unlock()
	c.persist(uid)
	return nil
}

// Remove deletes the expense remotely and drops it from the list.
func (c *Client) Remove(ctx context.Context, id string) error {
	uid, ok := c.identity.UserID()
	if !ok {
		return nil
	}
	c.ops.Lock()
	defer c.ops.Unlock()

	if err := c.store.DeleteExpense(ctx, uid, id); err != nil {
		slog.Error("delete expense failed", "uid", uid, "id", id, "error", err)
		return fmt.Errorf("delete expense: %w", err)
	}

	c.mu.Lock()
	c.claim(uid)
	if i := c.index(id); i >= 0 {
		c.expenses = slices.Delete(c.expenses, i, i+1)
	}
	c.mu.Unlock()
	c.persist(uid)
	return nil
}

// Reset forgets the in-memory list, e.g. after sign-out.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.owner = ""
	c.expenses = nil
}

// claim drops another user's list before uid's is modified. Caller holds mu.
func (c *Client) claim(uid string) {
	if c.owner != uid {
		c.owner = uid
		c.expenses = nil
	}
}

func (c *Client) replace(uid string, expenses []models.Expense) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.owner = uid
	c.expenses = expenses
}

func (c *Client) index(id string) int {
	return slices.IndexFunc(c.expenses, func(e models.Expense) bool { return e.ID == id })
}

// persist writes the list to the local cache. Cache failures are logged only.
func (c *Client) persist(uid string) {
	if c.cache == nil {
		return
	}
	c.mu.RLock()
	snapshot := slices.Clone(c.expenses)
	c.mu.RUnlock()
	if err := c.cache.SaveExpenses(uid, snapshot); err != nil {
		slog.Warn("cache expenses failed", "uid", uid, "error", err)
	}
}

func sortByDateDesc(expenses []models.Expense) {
	slices.SortStableFunc(expenses, func(a, b models.Expense) int {
		return b.Date.Compare(a.Date)
	})
}
