// Package remote is the client side of the ledger HTTP API. One *Client
// serves as the session backend, the profile store and the ledger's
// document store.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"expense-ledger/internal/api"
	"expense-ledger/internal/auth"
	"expense-ledger/internal/ledger"
	"expense-ledger/internal/models"
	"expense-ledger/internal/session"
)

var (
	_ session.Backend      = (*Client)(nil)
	_ session.ProfileStore = (*Client)(nil)
	_ ledger.Store         = (*Client)(nil)
)

// TokenCache persists the credential between runs.
type TokenCache interface {
	SaveToken(token string) error
}

// Client talks to the API and keeps the current credential.
type Client struct {
	baseURL string
	http    *http.Client
	cache   TokenCache
	now     func() time.Time

	mu        sync.Mutex
	cred      *auth.Credential
	listeners map[int]func(*models.Identity)
	nextID    int
}

// New returns a signed-out client for the API at baseURL. cache may be nil.
func New(baseURL string, cache TokenCache) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: 30 * time.Second},
		cache:     cache,
		now:       time.Now,
		listeners: map[int]func(*models.Identity){},
	}
}

// Identity returns the signed-in identity, or nil.
func (c *Client) Identity() *models.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cred == nil {
		return nil
	}
	id := c.cred.Identity
	return &id
}

// Token returns the current credential, or "".
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cred == nil {
		return ""
	}
	return c.cred.Token
}

// Subscribe calls fn with the current identity now and on every change.
func (c *Client) Subscribe(fn func(*models.Identity)) func() {
	c.mu.Lock()
	key := c.nextID
	c.nextID++
	c.listeners[key] = fn
	var current *models.Identity
	if c.cred != nil {
		id := c.cred.Identity
		current = &id
	}
	c.mu.Unlock()

	fn(current)
	return func() {
		c.mu.Lock()
		delete(c.listeners, key)
		c.mu.Unlock()
	}
}

// setCredential swaps the credential, persists it and notifies listeners.
func (c *Client) setCredential(cred *auth.Credential) {
	c.mu.Lock()
	c.cred = cred
	fns := make([]func(*models.Identity), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	if c.cache != nil {
		token := ""
		if cred != nil {
			token = cred.Token
		}
		if err := c.cache.SaveToken(token); err != nil {
			slog.Warn("persist credential failed", "error", err)
		}
	}
	var id *models.Identity
	if cred != nil {
		cp := cred.Identity
		id = &cp
	}
	for _, fn := range fns {
		fn(id)
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// StatusError is a non-2xx response outside the auth taxonomy.
type StatusError struct {
	Status int
	Body   api.Error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%d %s", e.Status, e.Body.Error())
}

func decodeError(resp *http.Response) error {
	var body api.Error
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Code == "" {
		body = api.Error{Code: api.CodeInternal, Message: resp.Status}
	}
	if sentinel := auth.FromCode(body.Code); sentinel != nil {
		return fmt.Errorf("%w: %s", sentinel, body.Message)
	}
	return &StatusError{Status: resp.StatusCode, Body: body}
}

func isNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Body.Code == api.CodeNotFound
}

func (c *Client) signIn(ctx context.Context, path string, in any) (*models.Identity, error) {
	var cred auth.Credential
	if err := c.do(ctx, http.MethodPost, path, in, &cred); err != nil {
		return nil, err
	}
	c.setCredential(&cred)
	id := cred.Identity
	return &id, nil
}

func (c *Client) SignUp(ctx context.Context, email, password string) (*models.Identity, error) {
	return c.signIn(ctx, "/auth/signup", api.PasswordRequest{Email: email, Password: password})
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*models.Identity, error) {
	return c.signIn(ctx, "/auth/login", api.PasswordRequest{Email: email, Password: password})
}

func (c *Client) SignInWithToken(ctx context.Context, provider, token string) (*models.Identity, error) {
	return c.signIn(ctx, "/auth/token", api.TokenRequest{Provider: provider, Token: token})
}

// SignInWithGitHubCode lets the server exchange an OAuth authorization code.
func (c *Client) SignInWithGitHubCode(ctx context.Context, code, verifier string) (*models.Identity, error) {
	return c.signIn(ctx, "/auth/token", api.TokenRequest{Provider: auth.ProviderGitHub, Code: code, CodeVerifier: verifier})
}

// SignOut ends the server session. The local credential is dropped even when
// the server cannot be reached.
func (c *Client) SignOut(ctx context.Context) error {
	if c.Token() == "" {
		return nil
	}
	err := c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
	c.setCredential(nil)
	if err != nil && !errors.Is(err, auth.ErrInvalidToken) {
		return err
	}
	return nil
}

// Resume adopts a saved credential after checking it with the server.
func (c *Client) Resume(ctx context.Context, token string) error {
	c.mu.Lock()
	c.cred = &auth.Credential{Token: token}
	c.mu.Unlock()

	if err := c.Refresh(ctx); err != nil {
		c.mu.Lock()
		c.cred = nil
		c.mu.Unlock()
		if errors.Is(err, auth.ErrInvalidToken) && c.cache != nil {
			if err := c.cache.SaveToken(""); err != nil {
				slog.Warn("clear credential failed", "error", err)
			}
		}
		return err
	}
	return nil
}

// Refresh extends the session and swaps in the fresh credential.
func (c *Client) Refresh(ctx context.Context) error {
	var cred auth.Credential
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", nil, &cred); err != nil {
		return err
	}
	c.setCredential(&cred)
	return nil
}

// RefreshIfStale refreshes once the credential is past half its lifetime.
func (c *Client) RefreshIfStale(ctx context.Context) error {
	c.mu.Lock()
	cred := c.cred
	c.mu.Unlock()
	if cred == nil {
		return nil
	}
	if cred.ExpiresAt.Sub(c.now()) >= auth.SessionDuration/2 {
		return nil
	}
	return c.Refresh(ctx)
}

func userPath(uid string, parts ...string) string {
	p := "/api/users/" + url.PathEscape(uid)
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

func (c *Client) GetProfile(ctx context.Context, uid string) (*models.Profile, error) {
	var p models.Profile
	err := c.do(ctx, http.MethodGet, userPath(uid, "profile"), nil, &p)
	if isNotFound(err) {
		return nil, session.ErrNoProfile
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) PutProfile(ctx context.Context, uid string, p models.Profile) error {
	return c.do(ctx, http.MethodPut, userPath(uid, "profile"), p, nil)
}

func (c *Client) CreateExpense(ctx context.Context, uid string, e models.Expense) error {
	return c.do(ctx, http.MethodPost, userPath(uid, "expenses"), e, nil)
}

func (c *Client) ListExpenses(ctx context.Context, uid string) ([]models.Expense, error) {
	expenses := []models.Expense{}
	if err := c.do(ctx, http.MethodGet, userPath(uid, "expenses"), nil, &expenses); err != nil {
		return nil, err
	}
	return expenses, nil
}

func (c *Client) UpdateExpense(ctx context.Context, uid, id string, u models.ExpenseUpdate) error {
	err := c.do(ctx, http.MethodPatch, userPath(uid, "expenses", id), u, nil)
	if isNotFound(err) {
		return fmt.Errorf("%w: %s", ledger.ErrNotFound, id)
	}
	return err
}

func (c *Client) DeleteExpense(ctx context.Context, uid, id string) error {
	return c.do(ctx, http.MethodDelete, userPath(uid, "expenses", id), nil, nil)
}

// Stats is the server-side spending summary of one period.
type Stats struct {
	Period     string `json:"period"`
	Title      string `json:"title"`
	Total      string `json:"total"`
	Count      int    `json:"count"`
	Categories []struct {
		Category   string `json:"category"`
		Glyph      string `json:"glyph"`
		Total      string `json:"total"`
		Percentage string `json:"percentage"`
	} `json:"categories"`
}

// Insights fetches the spending summary for a period name such as "This Month".
func (c *Client) Insights(ctx context.Context, uid, period string) (*Stats, error) {
	var s Stats
	path := userPath(uid, "insights") + "?period=" + url.QueryEscape(period)
	if err := c.do(ctx, http.MethodGet, path, nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
