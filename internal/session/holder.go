// Package session tracks who is signed in and broadcasts identity changes
// reported by the authentication backend.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"expense-ledger/internal/models"
)

// ErrNoProfile is returned by a ProfileStore when the user has no profile document.
var ErrNoProfile = errors.New("session: profile not found")

// Backend is the authentication backend.
type Backend interface {
	SignUp(ctx context.Context, email, password string) (*models.Identity, error)
	SignIn(ctx context.Context, email, password string) (*models.Identity, error)
	SignInWithToken(ctx context.Context, provider, token string) (*models.Identity, error)
	SignOut(ctx context.Context) error
	// Subscribe registers fn for identity changes. fn is called once with the
	// current identity (nil when signed out) and again on every change.
	Subscribe(fn func(*models.Identity)) (unsubscribe func())
}

// ProfileStore reads and writes per-user profile documents.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	PutProfile(ctx context.Context, userID string, p models.Profile) error
}

// State is the session lifecycle.
type State int

const (
	Uninitialized State = iota
	Loading
	Authenticated
	Unauthenticated
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Authenticated:
		return "authenticated"
	case Unauthenticated:
		return "unauthenticated"
	default:
		return "uninitialized"
	}
}

// Snapshot is a copy of the holder's state.
type Snapshot struct {
	State       State
	Identity    *models.Identity
	Profile     *models.Profile
	Loading     bool
	Initialized bool
}

// Holder owns the current identity and profile. Only the holder mutates them.
type Holder struct {
	backend  Backend
	profiles ProfileStore
	now      func() time.Time

	mu          sync.RWMutex
	state       State
	identity    *models.Identity
	profile     *models.Profile
	initialized bool
}

// NewHolder returns an uninitialized holder.
func NewHolder(backend Backend, profiles ProfileStore) *Holder {
	return &Holder{backend: backend, profiles: profiles, now: time.Now}
}

// Snapshot returns the current state.
func (h *Holder) Snapshot() Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s := Snapshot{
		State:       h.state,
		Loading:     h.state == Loading,
		Initialized: h.initialized,
	}
	if h.identity != nil {
		id := *h.identity
		s.Identity = &id
	}
	if h.profile != nil {
		p := *h.profile
		s.Profile = &p
	}
	return s
}

// UserID returns the signed-in user's id.
func (h *Holder) UserID() (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.identity == nil {
		return "", false
	}
	return h.identity.UserID, true
}

// SignUp creates the account, writes its profile document and loads it.
func (h *Holder) SignUp(ctx context.Context, email, password, firstName, lastName string) error {
	id, err := h.backend.SignUp(ctx, email, password)
	if err != nil {
		return err
	}
	p := models.Profile{FirstName: firstName, LastName: lastName, Email: id.Email, CreatedAt: h.now().UTC()}
	if err := h.profiles.PutProfile(ctx, id.UserID, p); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	h.setIdentity(id)
	return h.FetchProfile(ctx)
}

// Login exchanges credentials for a session. State follows from the
// backend's notification.
func (h *Holder) Login(ctx context.Context, email, password string) error {
	_, err := h.backend.SignIn(ctx, email, password)
	return err
}

// LoginWithExternalToken signs in with a third-party identity token and
// creates a profile from the provider's display name on first use.
func (h *Holder) LoginWithExternalToken(ctx context.Context, provider, token string) error {
	id, err := h.backend.SignInWithToken(ctx, provider, token)
	if err != nil {
		slog.Error("external sign-in failed", "provider", provider, "error", err)
		return err
	}
	return h.CompleteExternalSignIn(ctx, id)
}

// CompleteExternalSignIn adopts an identity obtained from a provider flow the
// backend finished on its own, creating the profile on first use.
func (h *Holder) CompleteExternalSignIn(ctx context.Context, id *models.Identity) error {
	_, err := h.profiles.GetProfile(ctx, id.UserID)
	if errors.Is(err, ErrNoProfile) {
		first, last := SplitDisplayName(id.DisplayName)
		p := models.Profile{FirstName: first, LastName: last, Email: id.Email, CreatedAt: h.now().UTC()}
		err = h.profiles.PutProfile(ctx, id.UserID, p)
	}
	if err != nil {
		return fmt.Errorf("profile: %w", err)
	}
	h.setIdentity(id)
	return h.FetchProfile(ctx)
}

// SplitDisplayName takes the first word as the first name and the rest as the last name.
func SplitDisplayName(name string) (first, last string) {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

// Logout ends the backend session and clears identity and profile.
func (h *Holder) Logout(ctx context.Context) error {
	if err := h.backend.SignOut(ctx); err != nil {
		return err
	}
	h.mu.Lock()
	h.identity = nil
	h.profile = nil
	h.mu.Unlock()
	return nil
}

// FetchProfile loads the signed-in user's profile. A missing document leaves
// the cached profile unchanged.
func (h *Holder) FetchProfile(ctx context.Context) error {
	uid, ok := h.UserID()
	if !ok {
		return nil
	}
	p, err := h.profiles.GetProfile(ctx, uid)
	if errors.Is(err, ErrNoProfile) {
		return nil
	}
	if err != nil {
		return err
	}
	h.mu.Lock()
	if h.identity != nil && h.identity.UserID == uid {
		h.profile = p
	}
	h.mu.Unlock()
	return nil
}

func (h *Holder) setIdentity(id *models.Identity) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if id == nil {
		h.identity = nil
		return
	}
	cp := *id
	if h.identity == nil || h.identity.UserID != cp.UserID {
		h.profile = nil
	}
	h.identity = &cp
}

// applyNotification is the only place the state machine moves.
func (h *Holder) applyNotification(id *models.Identity) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.initialized = true
	if id == nil {
		h.state = Unauthenticated
		h.identity = nil
		h.profile = nil
		return
	}
	cp := *id
	if h.identity == nil || h.identity.UserID != cp.UserID {
		h.profile = nil
	}
	h.identity = &cp
	h.state = Authenticated
}

// Subscription is the handle of an Observe call.
type Subscription struct {
	unsubscribe func()
	cancel      context.CancelFunc
	done        chan struct{}
	once        sync.Once
}

// Close stops the listener and waits for it to finish.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.unsubscribe()
		s.cancel()
	})
	<-s.done
}

// Observe registers the session listener. On every backend notification the
// holder updates its state, fetches the profile when signed in, then calls fn
// (which may be nil). The listener lives until Close or ctx is cancelled.
func (h *Holder) Observe(ctx context.Context, fn func(Snapshot)) *Subscription {
	h.mu.Lock()
	if h.state == Uninitialized {
		h.state = Loading
	}
	h.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	events := make(chan *models.Identity, 16)
	sub := &Subscription{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(sub.done)
		for {
			select {
			case <-ctx.Done():
				return
			case id := <-events:
				h.applyNotification(id)
				if id != nil {
					if err := h.FetchProfile(ctx); err != nil && ctx.Err() == nil {
						slog.Error("fetch profile failed", "uid", id.UserID, "error", err)
					}
				}
				if fn != nil {
					fn(h.Snapshot())
				}
			}
		}
	}()

	sub.unsubscribe = h.backend.Subscribe(func(id *models.Identity) {
		select {
		case events <- id:
		case <-ctx.Done():
		}
	})
	go func() {
		<-ctx.Done()
		sub.once.Do(sub.unsubscribe)
	}()
	return sub
}
