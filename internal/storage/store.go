package storage

import (
	"context"
	"strings"
	"time"

	"expense-ledger/internal/models"
)

// Store is the backend document store: accounts, profiles, per-user expense
// collections and sessions. *DB and *PostgresDB both implement it.
type Store interface {
	CreateExpense(ctx context.Context, userID string, e models.Expense) error
	GetExpense(ctx context.Context, userID, id string) (*models.Expense, error)
	ListExpenses(ctx context.Context, userID string) ([]models.Expense, error)
	UpdateExpense(ctx context.Context, userID, id string, u models.ExpenseUpdate) error
	DeleteExpense(ctx context.Context, userID, id string) error

	CreateUser(ctx context.Context, u models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByIdentity(ctx context.Context, provider, subject string) (*models.User, error)
	LinkIdentity(ctx context.Context, provider, subject, userID string) error
	UserCount(ctx context.Context) (int, error)

	PutProfile(ctx context.Context, userID string, p models.Profile) error
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)

	CreateSession(ctx context.Context, token, userID string, expiresAt time.Time) error
	ValidateSessionWithInfo(ctx context.Context, token string) (*SessionInfo, error)
	RenewSession(ctx context.Context, token string, newExpiresAt time.Time) error
	DeleteSession(ctx context.Context, token string) error
	CleanExpiredSessions(ctx context.Context) error

	Close() error
}

var (
	_ Store = (*DB)(nil)
	_ Store = (*PostgresDB)(nil)
)

// Open picks the backend from the DSN: postgres URLs use pgx, anything else is
// a SQLite path.
func Open(ctx context.Context, dsn string) (Store, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		db, err := NewPostgresDB(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return db, nil
	}
	db, err := NewDB(dsn)
	if err != nil {
		return nil, err
	}
	return db, nil
}
