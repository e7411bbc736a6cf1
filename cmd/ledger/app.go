package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"expense-ledger/internal/auth"
	"expense-ledger/internal/ledger"
	"expense-ledger/internal/remote"
	"expense-ledger/internal/securestore"
	"expense-ledger/internal/session"
)

// settleTimeout bounds the wait for the session listener.
const settleTimeout = 5 * time.Second

// app is one run of the client: the API connection, the session holder and
// the ledger, restored from the encrypted local stores.
type app struct {
	*env
	remote *remote.Client
	holder *session.Holder
	book   *ledger.Client

	sub     *session.Subscription
	changed chan struct{}
}

func (e *env) open(ctx context.Context) (*app, error) {
	key := e.cfg.Store.Key
	if key == "" {
		var err error
		if key, err = e.readPassword("Store passphrase: "); err != nil {
			return nil, fmt.Errorf("read passphrase: %w", err)
		}
	}
	store, err := securestore.Open(e.cfg.Store.Dir, key)
	if err != nil {
		return nil, err
	}
	tokens := securestore.NewSessionCache(store)

	a := &app{env: e, changed: make(chan struct{}, 1)}
	a.remote = remote.New(e.cfg.Server.URL, tokens)
	a.holder = session.NewHolder(a.remote, a.remote)
	a.book = ledger.NewClient(a.remote, a.holder, securestore.NewExpenseCache(store))
	a.sub = a.holder.Observe(ctx, func(session.Snapshot) {
		select {
		case a.changed <- struct{}{}:
		default:
		}
	})

	token, err := tokens.LoadToken()
	if err != nil {
		a.Close()
		if errors.Is(err, securestore.ErrCorrupt) {
			return nil, errors.New("wrong store passphrase")
		}
		return nil, err
	}
	if token != "" {
		switch err := a.remote.Resume(ctx, token); {
		case errors.Is(err, auth.ErrInvalidToken):
			fmt.Fprintln(e.stderr, auth.Message(err))
		case err != nil:
			slog.Warn("could not reach the server, signed out for this run", "error", err)
		}
	}
	if err := a.settle(ctx, a.remote.Identity() != nil); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.book.Hydrate(); err != nil {
		slog.Warn("ignoring local ledger cache", "error", err)
	}
	return a, nil
}

// settle waits until the holder has caught up with the backend.
func (a *app) settle(ctx context.Context, signedIn bool) error {
	ctx, cancel := context.WithTimeout(ctx, settleTimeout)
	defer cancel()
	for {
		s := a.holder.Snapshot()
		if s.Initialized && (s.State == session.Authenticated) == signedIn {
			return nil
		}
		select {
		case <-a.changed:
		case <-ctx.Done():
			return fmt.Errorf("session did not settle: %w", ctx.Err())
		}
	}
}

// userID returns the signed-in user or reports that nobody is.
func (a *app) userID() (string, bool) {
	uid, ok := a.holder.UserID()
	if !ok {
		fmt.Fprintln(a.stderr, "Not signed in. Run `ledger login` first.")
	}
	return uid, ok
}

func (a *app) Close() {
	a.sub.Close()
}
