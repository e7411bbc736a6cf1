package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"expense-ledger/internal/models"

	"github.com/shopspring/decimal"

	// Import sqlite driver
	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when the addressed document does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("storage: duplicate key")
)

// dateLayout is fixed width in UTC so that ORDER BY on the text column is chronological.
const dateLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatDate(t time.Time) string { return t.UTC().Format(dateLayout) }

func parseDate(s string) (time.Time, error) { return time.Parse(time.RFC3339Nano, s) }

// DB wraps a sql.DB connection.
type DB struct {
	conn *sql.DB
}

// NewDB opens a database connection and runs migrations.
func NewDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// :memory: databases are per connection.
	if path == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		return nil, err
	}

	return db, nil
}

func (db *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS identities (
			provider TEXT NOT NULL,
			subject TEXT NOT NULL,
			user_id TEXT NOT NULL,
			PRIMARY KEY (provider, subject),
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS profiles (
			user_id TEXT PRIMARY KEY,
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS expenses (
			user_id TEXT NOT NULL,
			id TEXT NOT NULL,
			amount TEXT NOT NULL,
			description TEXT NOT NULL,
			category TEXT NOT NULL,
			date TEXT NOT NULL,
			PRIMARY KEY (user_id, id)
		)`,
		`CREATE INDEX IF NOT EXISTS expenses_user_date ON expenses (user_id, date DESC)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			token TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			expires_at DATETIME NOT NULL,
			last_activity DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		)`,
	}

	for _, m := range migrations {
		if _, err := db.conn.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// CreateExpense inserts a new expense document under the user's partition.
func (db *DB) CreateExpense(ctx context.Context, userID string, e models.Expense) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO expenses (user_id, id, amount, description, category, date) VALUES (?, ?, ?, ?, ?, ?)",
		userID, e.ID, e.Amount.String(), e.Description, e.Category, formatDate(e.Date),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("expense %s: %w", e.ID, ErrDuplicate)
	}
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExpense(row scanner) (models.Expense, error) {
	var e models.Expense
	var amount, date string
	if err := row.Scan(&e.ID, &amount, &e.Description, &e.Category, &date); err != nil {
		return e, err
	}
	var err error
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return e, fmt.Errorf("expense %s amount: %w", e.ID, err)
	}
	if e.Date, err = parseDate(date); err != nil {
		return e, fmt.Errorf("expense %s date: %w", e.ID, err)
	}
	return e, nil
}

// GetExpense retrieves a single expense by ID.
func (db *DB) GetExpense(ctx context.Context, userID, id string) (*models.Expense, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, amount, description, category, date FROM expenses WHERE user_id = ? AND id = ?",
		userID, id,
	)
	e, err := scanExpense(row)
	if err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

// ListExpenses retrieves all of the user's expenses ordered by date descending.
func (db *DB) ListExpenses(ctx context.Context, userID string) ([]models.Expense, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT id, amount, description, category, date FROM expenses WHERE user_id = ? ORDER BY date DESC",
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := []models.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}

	return expenses, rows.Err()
}

// UpdateExpense writes the non-nil fields of u to an existing expense.
func (db *DB) UpdateExpense(ctx context.Context, userID, id string, u models.ExpenseUpdate) error {
	sets, args := updateColumns(u, "?")
	if len(sets) == 0 {
		_, err := db.GetExpense(ctx, userID, id)
		return err
	}
	args = append(args, userID, id)
	res, err := db.conn.ExecContext(ctx,
		"UPDATE expenses SET "+strings.Join(sets, ", ")+" WHERE user_id = ? AND id = ?",
		args...,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("expense %s: %w", id, ErrNotFound)
	}
	return nil
}

// updateColumns renders the SET clause for u. placeholder is "?" or "$" (numbered).
func updateColumns(u models.ExpenseUpdate, placeholder string) ([]string, []any) {
	var sets []string
	var args []any
	add := func(col string, v any) {
		args = append(args, v)
		if placeholder == "$" {
			sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
			return
		}
		sets = append(sets, col+" = ?")
	}
	if u.Amount != nil {
		add("amount", u.Amount.String())
	}
	if u.Description != nil {
		add("description", *u.Description)
	}
	if u.Category != nil {
		add("category", *u.Category)
	}
	if u.Date != nil {
		if placeholder == "$" {
			add("date", u.Date.UTC())
		} else {
			add("date", formatDate(*u.Date))
		}
	}
	return sets, args
}

// DeleteExpense removes an expense. Deleting a missing expense is not an error.
func (db *DB) DeleteExpense(ctx context.Context, userID, id string) error {
	_, err := db.conn.ExecContext(ctx, "DELETE FROM expenses WHERE user_id = ? AND id = ?", userID, id)
	return err
}

// CreateUser stores a new account. The email must be unused.
func (db *DB) CreateUser(ctx context.Context, u models.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)",
		u.ID, u.Email, u.PasswordHash, u.CreatedAt.UTC(),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("user %s: %w", u.Email, ErrDuplicate)
	}
	return err
}

// GetUserByID retrieves a user by ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return db.getUser(ctx, "SELECT id, email, password_hash, created_at FROM users WHERE id = ?", id)
}

// GetUserByEmail retrieves a user by email.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return db.getUser(ctx, "SELECT id, email, password_hash, created_at FROM users WHERE email = ?", email)
}

// GetUserByIdentity retrieves the user linked to an external provider subject.
func (db *DB) GetUserByIdentity(ctx context.Context, provider, subject string) (*models.User, error) {
	return db.getUser(ctx, `
		SELECT u.id, u.email, u.password_hash, u.created_at
		FROM identities i JOIN users u ON i.user_id = u.id
		WHERE i.provider = ? AND i.subject = ?`, provider, subject)
}

func (db *DB) getUser(ctx context.Context, query string, args ...any) (*models.User, error) {
	var u models.User
	if err := db.conn.QueryRowContext(ctx, query, args...).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// LinkIdentity records that an external provider subject signs in as userID.
func (db *DB) LinkIdentity(ctx context.Context, provider, subject, userID string) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO identities (provider, subject, user_id) VALUES (?, ?, ?)",
		provider, subject, userID,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("identity %s/%s: %w", provider, subject, ErrDuplicate)
	}
	return err
}

// UserCount returns the number of users in the database.
func (db *DB) UserCount(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count)
	return count, err
}

// PutProfile creates or replaces the user's profile document.
func (db *DB) PutProfile(ctx context.Context, userID string, p models.Profile) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO profiles (user_id, first_name, last_name, email, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			email = excluded.email,
			created_at = excluded.created_at`,
		userID, p.FirstName, p.LastName, p.Email, p.CreatedAt.UTC(),
	)
	return err
}

// GetProfile retrieves the user's profile document.
func (db *DB) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var p models.Profile
	err := db.conn.QueryRowContext(ctx,
		"SELECT first_name, last_name, email, created_at FROM profiles WHERE user_id = ?",
		userID,
	).Scan(&p.FirstName, &p.LastName, &p.Email, &p.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// CreateSession creates a new session for a user.
func (db *DB) CreateSession(ctx context.Context, token, userID string, expiresAt time.Time) error {
	now := time.Now().UTC()
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO sessions (token, user_id, expires_at, last_activity) VALUES (?, ?, ?, ?)",
		token, userID, expiresAt.UTC(), now,
	)
	return err
}

// SessionInfo holds session validation data.
type SessionInfo struct {
	User         *models.User
	LastActivity time.Time
	ExpiresAt    time.Time
}

// ValidateSessionWithInfo checks if a session token is valid and returns session details.
func (db *DB) ValidateSessionWithInfo(ctx context.Context, token string) (*SessionInfo, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT u.id, u.email, u.password_hash, u.created_at, s.last_activity, s.expires_at
		FROM sessions s
		JOIN users u ON s.user_id = u.id
		WHERE s.token = ?
	`, token)

	var u models.User
	var lastActivity, expiresAt time.Time
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &lastActivity, &expiresAt); err != nil {
		return nil, notFound(err)
	}
	if !expiresAt.After(time.Now()) {
		return nil, fmt.Errorf("session expired: %w", ErrNotFound)
	}
	return &SessionInfo{
		User:         &u,
		LastActivity: lastActivity,
		ExpiresAt:    expiresAt,
	}, nil
}

// RenewSession updates the last_activity and expires_at for a session.
func (db *DB) RenewSession(ctx context.Context, token string, newExpiresAt time.Time) error {
	now := time.Now().UTC()
	_, err := db.conn.ExecContext(ctx,
		"UPDATE sessions SET last_activity = ?, expires_at = ? WHERE token = ?",
		now, newExpiresAt.UTC(), token,
	)
	return err
}

// DeleteSession removes a session by token.
func (db *DB) DeleteSession(ctx context.Context, token string) error {
	_, err := db.conn.ExecContext(ctx, "DELETE FROM sessions WHERE token = ?", token)
	return err
}

// CleanExpiredSessions removes all expired sessions.
func (db *DB) CleanExpiredSessions(ctx context.Context) error {
	_, err := db.conn.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", time.Now().UTC())
	return err
}
