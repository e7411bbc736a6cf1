package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"expense-ledger/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errEmailInUse = errors.New("email already in use")

type fakeBackend struct {
	mu        sync.Mutex
	current   *models.Identity
	listeners map[int]func(*models.Identity)
	next      int
	accounts  map[string]string
	external  map[string]*models.Identity
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		listeners: map[int]func(*models.Identity){},
		accounts:  map[string]string{},
		external:  map[string]*models.Identity{},
	}
}

func (b *fakeBackend) notify(id *models.Identity) {
	b.mu.Lock()
	b.current = id
	fns := make([]func(*models.Identity), 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn(id)
	}
}

func (b *fakeBackend) SignUp(_ context.Context, email, password string) (*models.Identity, error) {
	b.mu.Lock()
	if _, ok := b.accounts[email]; ok {
		b.mu.Unlock()
		return nil, errEmailInUse
	}
	b.accounts[email] = password
	b.mu.Unlock()
	id := &models.Identity{UserID: "uid-" + email, Email: email}
	b.notify(id)
	return id, nil
}

func (b *fakeBackend) SignIn(_ context.Context, email, password string) (*models.Identity, error) {
	b.mu.Lock()
	pw, ok := b.accounts[email]
	b.mu.Unlock()
	if !ok || pw != password {
		return nil, errors.New("bad credentials")
	}
	id := &models.Identity{UserID: "uid-" + email, Email: email}
	b.notify(id)
	return id, nil
}

func (b *fakeBackend) SignInWithToken(_ context.Context, provider, token string) (*models.Identity, error) {
	id, ok := b.external[provider+":"+token]
	if !ok {
		return nil, errors.New("rejected")
	}
	b.notify(id)
	return id, nil
}

func (b *fakeBackend) SignOut(context.Context) error {
	b.notify(nil)
	return nil
}

func (b *fakeBackend) Subscribe(fn func(*models.Identity)) func() {
	b.mu.Lock()
	key := b.next
	b.next++
	b.listeners[key] = fn
	current := b.current
	b.mu.Unlock()
	fn(current)
	return func() {
		b.mu.Lock()
		delete(b.listeners, key)
		b.mu.Unlock()
	}
}

func (b *fakeBackend) listenerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

type memProfiles struct {
	mu       sync.Mutex
	profiles map[string]models.Profile
}

func (m *memProfiles) GetProfile(_ context.Context, uid string) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[uid]
	if !ok {
		return nil, ErrNoProfile
	}
	return &p, nil
}

func (m *memProfiles) PutProfile(_ context.Context, uid string, p models.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[uid] = p
	return nil
}

func newHolder() (*Holder, *fakeBackend, *memProfiles) {
	b := newFakeBackend()
	p := &memProfiles{profiles: map[string]models.Profile{}}
	return NewHolder(b, p), b, p
}

// waitFor drains snapshots until one matches.
func waitFor(t *testing.T, ch <-chan Snapshot, match func(Snapshot) bool) Snapshot {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case s := <-ch:
			if match(s) {
				return s
			}
		case <-timeout:
			t.Fatal("timed out waiting for session state")
			return Snapshot{}
		}
	}
}

func TestObserveStateMachine(t *testing.T) {
	h, b, profiles := newHolder()
	ctx := context.Background()

	assert.Equal(t, Uninitialized, h.Snapshot().State)

	changes := make(chan Snapshot, 16)
	sub := h.Observe(ctx, func(s Snapshot) { changes <- s })
	defer sub.Close()

	s := waitFor(t, changes, func(s Snapshot) bool { return s.Initialized })
	assert.Equal(t, Unauthenticated, s.State)
	assert.False(t, s.Loading)

	require.NoError(t, profiles.PutProfile(ctx, "uid-ada@example.com", models.Profile{FirstName: "Ada"}))
	b.mu.Lock()
	b.accounts["ada@example.com"] = "secret1"
	b.mu.Unlock()

	require.NoError(t, h.Login(ctx, "ada@example.com", "secret1"))
	s = waitFor(t, changes, func(s Snapshot) bool { return s.State == Authenticated })
	require.NotNil(t, s.Identity)
	assert.Equal(t, "uid-ada@example.com", s.Identity.UserID)
	require.NotNil(t, s.Profile, "profile fetched on sign-in")
	assert.Equal(t, "Ada", s.Profile.FirstName)

	uid, ok := h.UserID()
	assert.True(t, ok)
	assert.Equal(t, "uid-ada@example.com", uid)

	require.NoError(t, h.Logout(ctx))
	s = waitFor(t, changes, func(s Snapshot) bool { return s.State == Unauthenticated })
	assert.Nil(t, s.Identity)
	assert.Nil(t, s.Profile)
}

func TestLogoutClearsEagerly(t *testing.T) {
	h, _, _ := newHolder()
	ctx := context.Background()

	require.NoError(t, h.SignUp(ctx, "ada@example.com", "secret1", "Ada", "Lovelace"))
	_, ok := h.UserID()
	require.True(t, ok)

	// No observer registered: only the eager clear can have happened.
	require.NoError(t, h.Logout(ctx))
	_, ok = h.UserID()
	assert.False(t, ok)
	assert.Nil(t, h.Snapshot().Profile)
}

func TestSignUpWritesProfile(t *testing.T) {
	h, _, profiles := newHolder()
	ctx := context.Background()

	require.NoError(t, h.SignUp(ctx, "ada@example.com", "secret1", "Ada", "Lovelace"))

	p, err := profiles.GetProfile(ctx, "uid-ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Ada", p.FirstName)
	assert.Equal(t, "Lovelace", p.LastName)
	assert.Equal(t, "ada@example.com", p.Email)
	assert.False(t, p.CreatedAt.IsZero())

	snap := h.Snapshot()
	require.NotNil(t, snap.Profile)
	assert.Equal(t, "Ada", snap.Profile.FirstName)

	err = h.SignUp(ctx, "ada@example.com", "other1", "A", "L")
	assert.ErrorIs(t, err, errEmailInUse)
}

func TestLoginWithExternalTokenCreatesProfileOnce(t *testing.T) {
	h, b, profiles := newHolder()
	ctx := context.Background()
	b.external["google:tok"] = &models.Identity{UserID: "g-1", Email: "grace@example.com", DisplayName: "Grace Brewster Hopper"}

	require.NoError(t, h.LoginWithExternalToken(ctx, "google", "tok"))

	p, err := profiles.GetProfile(ctx, "g-1")
	require.NoError(t, err)
	assert.Equal(t, "Grace", p.FirstName)
	assert.Equal(t, "Brewster Hopper", p.LastName)

	// An existing profile is not overwritten.
	require.NoError(t, profiles.PutProfile(ctx, "g-1", models.Profile{FirstName: "Admiral"}))
	require.NoError(t, h.LoginWithExternalToken(ctx, "google", "tok"))
	p, err = profiles.GetProfile(ctx, "g-1")
	require.NoError(t, err)
	assert.Equal(t, "Admiral", p.FirstName)
	assert.Equal(t, "Admiral", h.Snapshot().Profile.FirstName)

	assert.Error(t, h.LoginWithExternalToken(ctx, "github", "nope"))
}

func TestSplitDisplayName(t *testing.T) {
	tests := []struct {
		name, first, last string
	}{
		{"Grace Brewster Hopper", "Grace", "Brewster Hopper"},
		{"Cher", "Cher", ""},
		{"", "", ""},
		{"  Alan   Turing ", "Alan", "Turing"},
	}
	for _, tt := range tests {
		first, last := SplitDisplayName(tt.name)
		assert.Equal(t, tt.first, first, tt.name)
		assert.Equal(t, tt.last, last, tt.name)
	}
}

func TestSubscriptionTeardown(t *testing.T) {
	h, b, _ := newHolder()

	sub := h.Observe(context.Background(), nil)
	assert.Equal(t, 1, b.listenerCount())
	sub.Close()
	assert.Equal(t, 0, b.listenerCount())
	sub.Close() // idempotent

	ctx, cancel := context.WithCancel(context.Background())
	h.Observe(ctx, nil)
	assert.Equal(t, 1, b.listenerCount())
	cancel()
	assert.Eventually(t, func() bool { return b.listenerCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "uninitialized", Uninitialized.String())
	assert.Equal(t, "loading", Loading.String())
	assert.Equal(t, "authenticated", Authenticated.String())
	assert.Equal(t, "unauthenticated", Unauthenticated.String())
}
