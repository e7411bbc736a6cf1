package securestore

import (
	"encoding/json"
	"errors"

	"expense-ledger/internal/models"
)

// ExpenseCache keeps each user's ledger in the expense store.
type ExpenseCache struct {
	store *Store
}

func NewExpenseCache(s *Store) *ExpenseCache {
	return &ExpenseCache{store: s}
}

// LoadExpenses returns the cached ledger, empty when none was saved.
func (c *ExpenseCache) LoadExpenses(userID string) ([]models.Expense, error) {
	raw, err := c.store.Get(ExpenseStore, userID)
	if errors.Is(err, ErrNotFound) {
		return []models.Expense{}, nil
	}
	if err != nil {
		return nil, err
	}
	var expenses []models.Expense
	if err := json.Unmarshal(raw, &expenses); err != nil {
		return nil, err
	}
	return expenses, nil
}

func (c *ExpenseCache) SaveExpenses(userID string, expenses []models.Expense) error {
	raw, err := json.Marshal(expenses)
	if err != nil {
		return err
	}
	return c.store.Put(ExpenseStore, userID, raw)
}

const credentialKey = "credential"

// SessionCache remembers the credential of the last signed-in session.
type SessionCache struct {
	store *Store
}

func NewSessionCache(s *Store) *SessionCache {
	return &SessionCache{store: s}
}

// LoadToken returns the saved credential, or "" when signed out.
func (c *SessionCache) LoadToken() (string, error) {
	raw, err := c.store.Get(SessionStore, credentialKey)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// SaveToken stores token; an empty token clears it.
func (c *SessionCache) SaveToken(token string) error {
	if token == "" {
		return c.store.Delete(SessionStore, credentialKey)
	}
	return c.store.Put(SessionStore, credentialKey, []byte(token))
}
