package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"expense-ledger/internal/api"
	"expense-ledger/internal/auth"
	"expense-ledger/internal/events"
	"expense-ledger/internal/models"
	"expense-ledger/internal/storage"

	"github.com/go-chi/chi/v5"
)

// Context key type to avoid collisions.
type contextKey string

const (
	// IdentityContextKey is the context key for the authenticated identity.
	IdentityContextKey contextKey = "identity"
	// TokenContextKey is the context key for the raw bearer credential.
	TokenContextKey contextKey = "token"
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	store  storage.Store
	auth   *auth.Service
	github *auth.GitHub
	events events.Publisher
	now    func() time.Time
}

// NewHandlers creates a new Handlers instance. github may be nil when no
// OAuth app is configured; publisher may be nil to drop events.
func NewHandlers(store storage.Store, authSvc *auth.Service, github *auth.GitHub, publisher events.Publisher) *Handlers {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Handlers{store: store, auth: authSvc, github: github, events: publisher, now: time.Now}
}

// GetIdentityFromContext retrieves the authenticated identity from request context.
func GetIdentityFromContext(r *http.Request) *models.Identity {
	if id, ok := r.Context().Value(IdentityContextKey).(*models.Identity); ok {
		return id
	}
	return nil
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// AuthMiddleware wraps handlers to require a valid bearer credential.
func (h *Handlers) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, api.CodeUnauthenticated, "missing bearer credential")
			return
		}

		id, _, err := h.auth.Verify(r.Context(), token)
		if err != nil {
			if !errors.Is(err, auth.ErrInvalidToken) {
				log.Printf("Verify credential error: %v", err)
			}
			h.authError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), IdentityContextKey, id)
		ctx = context.WithValue(ctx, TokenContextKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OwnerOnly rejects requests whose {uid} is not the caller's own.
func (h *Handlers) OwnerOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := GetIdentityFromContext(r)
		if id == nil || chi.URLParam(r, "uid") != id.UserID {
			writeError(w, http.StatusForbidden, api.CodePermissionDenied, "not your ledger")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Encode response error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, api.Error{Code: code, Message: message})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, api.CodeInvalidArgument, "invalid request payload")
		return false
	}
	return true
}

// authError maps the auth taxonomy to a status code and a wire code.
func (h *Handlers) authError(w http.ResponseWriter, err error) {
	code := auth.Code(err)
	if code == "" {
		log.Printf("Auth error: %v", err)
		writeError(w, http.StatusInternalServerError, api.CodeInternal, "internal server error")
		return
	}
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, auth.ErrEmailInUse):
		status = http.StatusConflict
	case errors.Is(err, auth.ErrUserNotFound), errors.Is(err, auth.ErrWrongPassword),
		errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrProviderFailed):
		status = http.StatusUnauthorized
	}
	writeError(w, status, code, auth.Message(err))
}

// SignUp creates an email/password account.
func (h *Handlers) SignUp(w http.ResponseWriter, r *http.Request) {
	var req api.PasswordRequest
	if !decode(w, r, &req) {
		return
	}
	cred, err := h.auth.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		h.authError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cred)
}

// Login handles email/password sign-in.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req api.PasswordRequest
	if !decode(w, r, &req) {
		return
	}
	cred, err := h.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.authError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cred)
}

// Token signs in with a third-party identity token. A GitHub authorization
// code is exchanged for an access token first.
func (h *Handlers) Token(w http.ResponseWriter, r *http.Request) {
	var req api.TokenRequest
	if !decode(w, r, &req) {
		return
	}
	token := req.Token
	if req.Code != "" {
		if req.Provider != auth.ProviderGitHub || h.github == nil {
			h.authError(w, auth.ErrUnknownProvider)
			return
		}
		var err error
		token, err = h.github.ExchangeCode(r.Context(), req.Code, req.CodeVerifier)
		if err != nil {
			h.authError(w, err)
			return
		}
	}
	if token == "" {
		writeError(w, http.StatusBadRequest, api.CodeInvalidArgument, "token or code is required")
		return
	}
	cred, err := h.auth.SignInWithToken(r.Context(), req.Provider, token)
	if err != nil {
		h.authError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cred)
}

// Refresh extends the caller's session and returns a fresh credential.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	token, _ := r.Context().Value(TokenContextKey).(string)
	cred, err := h.auth.Refresh(r.Context(), token)
	if err != nil {
		h.authError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cred)
}

// Logout ends the caller's session.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	token, _ := r.Context().Value(TokenContextKey).(string)
	if err := h.auth.SignOut(r.Context(), token); err != nil {
		log.Printf("Failed to delete session: %v", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetProfile returns the caller's profile document.
func (h *Handlers) GetProfile(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	p, err := h.store.GetProfile(r.Context(), uid)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, api.CodeNotFound, "profile not found")
		return
	}
	if err != nil {
		log.Printf("GetProfile error: %v", err)
		writeError(w, http.StatusInternalServerError, api.CodeInternal, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// PutProfile writes the caller's profile document.
func (h *Handlers) PutProfile(w http.ResponseWriter, r *http.Request) {
	var p models.Profile
	if !decode(w, r, &p) {
		return
	}
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	if p.CreatedAt.IsZero() {
		p.CreatedAt = h.now().UTC()
	}
	uid := chi.URLParam(r, "uid")
	if err := h.store.PutProfile(r.Context(), uid, p); err != nil {
		log.Printf("PutProfile error: %v", err)
		writeError(w, http.StatusInternalServerError, api.CodeInternal, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, p)
}
