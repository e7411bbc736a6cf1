package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"expense-ledger/internal/models"
	"expense-ledger/internal/storage"

	"github.com/google/uuid"
)

// SessionDuration is how long sessions last (30 days).
const SessionDuration = 30 * 24 * time.Hour

// Users is the part of the document store the auth backend needs.
type Users interface {
	CreateUser(ctx context.Context, u models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByIdentity(ctx context.Context, provider, subject string) (*models.User, error)
	LinkIdentity(ctx context.Context, provider, subject, userID string) error

	CreateSession(ctx context.Context, token, userID string, expiresAt time.Time) error
	ValidateSessionWithInfo(ctx context.Context, token string) (*storage.SessionInfo, error)
	RenewSession(ctx context.Context, token string, newExpiresAt time.Time) error
	DeleteSession(ctx context.Context, token string) error
}

// Credential is a signed-in session as handed to clients.
type Credential struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	Identity  models.Identity `json:"identity"`
}

// Service is the authentication backend: credential issuance and verification.
type Service struct {
	users     Users
	tokens    *Issuer
	providers map[string]Provider
	now       func() time.Time
}

// NewService wires the backend to its user store, signer and external providers.
func NewService(users Users, tokens *Issuer, providers ...Provider) *Service {
	s := &Service{users: users, tokens: tokens, providers: map[string]Provider{}, now: time.Now}
	for _, p := range providers {
		s.providers[p.Name()] = p
	}
	return s
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// SignUp creates an email/password account and signs it in.
func (s *Service) SignUp(ctx context.Context, email, password string) (*Credential, error) {
	u, err := s.CreateAccount(ctx, email, password)
	if err != nil {
		return nil, err
	}
	slog.Info("user signed up", "uid", u.ID)
	return s.startSession(ctx, models.Identity{UserID: u.ID, Email: u.Email, Provider: "password"})
}

// CreateAccount stores a new email/password user without starting a session.
func (s *Service) CreateAccount(ctx context.Context, email, password string) (*models.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len(password) < 6 {
		return nil, ErrWeakPassword
	}
	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return nil, ErrEmailInUse
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	u := models.User{ID: id.String(), Email: email, PasswordHash: hash, CreatedAt: s.now()}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, ErrEmailInUse
		}
		return nil, err
	}
	return &u, nil
}

// SignIn verifies an email/password pair.
func (s *Service) SignIn(ctx context.Context, email, password string) (*Credential, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	u, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	if u.PasswordHash == "" || !CheckPassword(password, u.PasswordHash) {
		return nil, ErrWrongPassword
	}
	return s.startSession(ctx, models.Identity{UserID: u.ID, Email: u.Email, Provider: "password"})
}

// SignInWithToken exchanges a third-party identity token for a session,
// creating the account on first use.
func (s *Service) SignInWithToken(ctx context.Context, provider, token string) (*Credential, error) {
	p, ok := s.providers[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	ext, err := p.Verify(ctx, token)
	if err != nil {
		slog.Warn("external token rejected", "provider", provider, "error", err)
		return nil, err
	}

	u, err := s.users.GetUserByIdentity(ctx, provider, ext.Subject)
	if errors.Is(err, storage.ErrNotFound) {
		u, err = s.linkExternal(ctx, provider, ext)
	}
	if err != nil {
		return nil, err
	}
	return s.startSession(ctx, models.Identity{UserID: u.ID, Email: u.Email, DisplayName: ext.DisplayName, Provider: provider})
}

// linkExternal attaches the provider subject to the account with the same
// verified email, or to a new account. An unverified email is never used.
func (s *Service) linkExternal(ctx context.Context, provider string, ext *ExternalIdentity) (*models.User, error) {
	email := ""
	if ext.EmailVerified {
		email = strings.ToLower(strings.TrimSpace(ext.Email))
	}
	if email == "" {
		email = ext.Subject + "@" + provider + ".invalid"
	}
	u, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		id, idErr := uuid.NewV7()
		if idErr != nil {
			return nil, idErr
		}
		u = &models.User{ID: id.String(), Email: email, CreatedAt: s.now()}
		err = s.users.CreateUser(ctx, *u)
	}
	if err != nil {
		return nil, err
	}
	if err := s.users.LinkIdentity(ctx, provider, ext.Subject, u.ID); err != nil {
		return nil, err
	}
	slog.Info("external identity linked", "uid", u.ID, "provider", provider)
	return u, nil
}

func (s *Service) startSession(ctx context.Context, id models.Identity) (*Credential, error) {
	sessionID, err := GenerateSessionToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}
	now := s.now()
	expiresAt := now.Add(SessionDuration)
	if err := s.users.CreateSession(ctx, sessionID, id.UserID, expiresAt); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	token, err := s.tokens.Issue(id.UserID, id.Email, sessionID, now, expiresAt)
	if err != nil {
		return nil, err
	}
	return &Credential{Token: token, ExpiresAt: expiresAt, Identity: id}, nil
}

// Verify checks a credential and returns the identity it was issued to.
// A credential is only valid while its session exists.
func (s *Service) Verify(ctx context.Context, token string) (*models.Identity, *Claims, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, nil, err
	}
	info, err := s.users.ValidateSessionWithInfo(ctx, claims.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: session ended", ErrInvalidToken)
	}
	if err != nil {
		return nil, nil, err
	}
	if info.User.ID != claims.Subject {
		return nil, nil, fmt.Errorf("%w: session belongs to another user", ErrInvalidToken)
	}
	return &models.Identity{UserID: info.User.ID, Email: info.User.Email}, claims, nil
}

// Refresh extends the session behind token and returns a fresh credential.
func (s *Service) Refresh(ctx context.Context, token string) (*Credential, error) {
	id, claims, err := s.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	now := s.now()
	expiresAt := now.Add(SessionDuration)
	if err := s.users.RenewSession(ctx, claims.ID, expiresAt); err != nil {
		return nil, err
	}
	fresh, err := s.tokens.Issue(id.UserID, id.Email, claims.ID, now, expiresAt)
	if err != nil {
		return nil, err
	}
	return &Credential{Token: fresh, ExpiresAt: expiresAt, Identity: *id}, nil
}

// SignOut ends the session behind token. Unknown sessions are ignored.
func (s *Service) SignOut(ctx context.Context, token string) error {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return err
	}
	return s.users.DeleteSession(ctx, claims.ID)
}
