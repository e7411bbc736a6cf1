package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"expense-ledger/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresDB is the same document store backed by a pgx connection pool.
type PostgresDB struct {
	pool *pgxpool.Pool
}

// NewPostgresDB connects to dsn and runs migrations.
func NewPostgresDB(ctx context.Context, dsn string) (*PostgresDB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to reach database: %w", err)
	}

	db := &PostgresDB{pool: pool}
	if err := db.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return db, nil
}

func (db *PostgresDB) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS identities (
			provider TEXT NOT NULL,
			subject TEXT NOT NULL,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			PRIMARY KEY (provider, subject)
		)`,
		`CREATE TABLE IF NOT EXISTS profiles (
			user_id TEXT PRIMARY KEY,
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS expenses (
			user_id TEXT NOT NULL,
			id TEXT NOT NULL,
			amount NUMERIC(14, 2) NOT NULL,
			description TEXT NOT NULL,
			category TEXT NOT NULL,
			date TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (user_id, id)
		)`,
		`CREATE INDEX IF NOT EXISTS expenses_user_date ON expenses (user_id, date DESC)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			token TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			expires_at TIMESTAMPTZ NOT NULL,
			last_activity TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, m := range migrations {
		if _, err := db.pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close releases the pool.
func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

func pgError(err error, what string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%s: %w", what, ErrDuplicate)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

// CreateExpense inserts a new expense document under the user's partition.
func (db *PostgresDB) CreateExpense(ctx context.Context, userID string, e models.Expense) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO expenses (user_id, id, amount, description, category, date)
		 VALUES ($1, $2, $3::numeric, $4, $5, $6)`,
		userID, e.ID, e.Amount.String(), e.Description, e.Category, e.Date.UTC(),
	)
	if err != nil {
		return pgError(err, "expense "+e.ID)
	}
	return nil
}

func scanPgExpense(row pgx.Row) (models.Expense, error) {
	var e models.Expense
	var amount string
	if err := row.Scan(&e.ID, &amount, &e.Description, &e.Category, &e.Date); err != nil {
		return e, err
	}
	var err error
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return e, fmt.Errorf("expense %s amount: %w", e.ID, err)
	}
	return e, nil
}

// GetExpense retrieves a single expense by ID.
func (db *PostgresDB) GetExpense(ctx context.Context, userID, id string) (*models.Expense, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT id, amount::text, description, category, date FROM expenses WHERE user_id = $1 AND id = $2`,
		userID, id,
	)
	e, err := scanPgExpense(row)
	if err != nil {
		return nil, pgError(err, "expense "+id)
	}
	return &e, nil
}

// ListExpenses retrieves all of the user's expenses ordered by date descending.
func (db *PostgresDB) ListExpenses(ctx context.Context, userID string) ([]models.Expense, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, amount::text, description, category, date FROM expenses WHERE user_id = $1 ORDER BY date DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses for user %s: %w", userID, err)
	}
	defer rows.Close()

	expenses := []models.Expense{}
	for rows.Next() {
		e, err := scanPgExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

// UpdateExpense writes the non-nil fields of u to an existing expense.
func (db *PostgresDB) UpdateExpense(ctx context.Context, userID, id string, u models.ExpenseUpdate) error {
	sets, args := updateColumns(u, "$")
	if len(sets) == 0 {
		_, err := db.GetExpense(ctx, userID, id)
		return err
	}
	for i, s := range sets {
		if strings.HasPrefix(s, "amount ") {
			sets[i] = s + "::numeric"
		}
	}
	n := len(args)
	args = append(args, userID, id)
	tag, err := db.pool.Exec(ctx,
		fmt.Sprintf("UPDATE expenses SET %s WHERE user_id = $%d AND id = $%d", strings.Join(sets, ", "), n+1, n+2),
		args...,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("expense %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteExpense removes an expense. Deleting a missing expense is not an error.
func (db *PostgresDB) DeleteExpense(ctx context.Context, userID, id string) error {
	_, err := db.pool.Exec(ctx, `DELETE FROM expenses WHERE user_id = $1 AND id = $2`, userID, id)
	return err
}

// CreateUser stores a new account. The email must be unused.
func (db *PostgresDB) CreateUser(ctx context.Context, u models.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES ($1, $2, $3, $4)`,
		u.ID, u.Email, u.PasswordHash, u.CreatedAt,
	)
	if err != nil {
		return pgError(err, "user "+u.Email)
	}
	return nil
}

// GetUserByID retrieves a user by ID.
func (db *PostgresDB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return db.getUser(ctx, `SELECT id, email, password_hash, created_at FROM users WHERE id = $1`, id)
}

// GetUserByEmail retrieves a user by email.
func (db *PostgresDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return db.getUser(ctx, `SELECT id, email, password_hash, created_at FROM users WHERE email = $1`, email)
}

// GetUserByIdentity retrieves the user linked to an external provider subject.
func (db *PostgresDB) GetUserByIdentity(ctx context.Context, provider, subject string) (*models.User, error) {
	return db.getUser(ctx, `
		SELECT u.id, u.email, u.password_hash, u.created_at
		FROM identities i JOIN users u ON i.user_id = u.id
		WHERE i.provider = $1 AND i.subject = $2`, provider, subject)
}

func (db *PostgresDB) getUser(ctx context.Context, query string, args ...any) (*models.User, error) {
	var u models.User
	if err := db.pool.QueryRow(ctx, query, args...).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		return nil, pgError(err, "user")
	}
	return &u, nil
}

// LinkIdentity records that an external provider subject signs in as userID.
func (db *PostgresDB) LinkIdentity(ctx context.Context, provider, subject, userID string) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO identities (provider, subject, user_id) VALUES ($1, $2, $3)`,
		provider, subject, userID,
	)
	if err != nil {
		return pgError(err, "identity "+provider+"/"+subject)
	}
	return nil
}

// UserCount returns the number of users in the database.
func (db *PostgresDB) UserCount(ctx context.Context) (int, error) {
	var count int
	err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

// PutProfile creates or replaces the user's profile document.
func (db *PostgresDB) PutProfile(ctx context.Context, userID string, p models.Profile) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	_, err := db.pool.Exec(ctx, `
		INSERT INTO profiles (user_id, first_name, last_name, email, created_at) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			email = EXCLUDED.email,
			created_at = EXCLUDED.created_at`,
		userID, p.FirstName, p.LastName, p.Email, p.CreatedAt,
	)
	return err
}

// GetProfile retrieves the user's profile document.
func (db *PostgresDB) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var p models.Profile
	err := db.pool.QueryRow(ctx,
		`SELECT first_name, last_name, email, created_at FROM profiles WHERE user_id = $1`,
		userID,
	).Scan(&p.FirstName, &p.LastName, &p.Email, &p.CreatedAt)
	if err != nil {
		return nil, pgError(err, "profile "+userID)
	}
	return &p, nil
}

// CreateSession creates a new session for a user.
func (db *PostgresDB) CreateSession(ctx context.Context, token, userID string, expiresAt time.Time) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO sessions (token, user_id, expires_at, last_activity) VALUES ($1, $2, $3, now())`,
		token, userID, expiresAt,
	)
	return err
}

// ValidateSessionWithInfo checks if a session token is valid and returns session details.
func (db *PostgresDB) ValidateSessionWithInfo(ctx context.Context, token string) (*SessionInfo, error) {
	var u models.User
	var info SessionInfo
	err := db.pool.QueryRow(ctx, `
		SELECT u.id, u.email, u.password_hash, u.created_at, s.last_activity, s.expires_at
		FROM sessions s
		JOIN users u ON s.user_id = u.id
		WHERE s.token = $1 AND s.expires_at > now()`, token,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &info.LastActivity, &info.ExpiresAt)
	if err != nil {
		return nil, pgError(err, "session")
	}
	info.User = &u
	return &info, nil
}

// RenewSession updates the last_activity and expires_at for a session.
func (db *PostgresDB) RenewSession(ctx context.Context, token string, newExpiresAt time.Time) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE sessions SET last_activity = now(), expires_at = $1 WHERE token = $2`,
		newExpiresAt, token,
	)
	return err
}

// DeleteSession removes a session by token.
func (db *PostgresDB) DeleteSession(ctx context.Context, token string) error {
	_, err := db.pool.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	return err
}

// CleanExpiredSessions removes all expired sessions.
func (db *PostgresDB) CleanExpiredSessions(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= now()`)
	return err
}
