package remote

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"expense-ledger/internal/auth"
	"expense-ledger/internal/handlers"
	"expense-ledger/internal/ledger"
	"expense-ledger/internal/models"
	"expense-ledger/internal/session"
	"expense-ledger/internal/storage"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type memTokens struct {
	mu    sync.Mutex
	token string
	saves int
	err   error
}

func (m *memTokens) SaveToken(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.token = token
	m.saves++
	return nil
}

// ClientTestSuite runs the client against the real API over httptest.
type ClientTestSuite struct {
	suite.Suite
	db     *storage.DB
	srv    *httptest.Server
	tokens *memTokens
	client *Client
	ctx    context.Context
}

func (suite *ClientTestSuite) SetupTest() {
	db, err := storage.NewDB(":memory:")
	require.NoError(suite.T(), err)
	suite.db = db

	issuer, err := auth.NewIssuer("remote-test-secret-012345")
	require.NoError(suite.T(), err)
	h := handlers.NewHandlers(db, auth.NewService(db, issuer), nil, nil)
	suite.srv = httptest.NewServer(h.Router())

	suite.tokens = &memTokens{}
	suite.client = New(suite.srv.URL, suite.tokens)
	suite.ctx = context.Background()
}

func (suite *ClientTestSuite) TearDownTest() {
	suite.srv.Close()
	suite.db.Close()
}

func (suite *ClientTestSuite) TestSignUpSignOutNotifies() {
	var mu sync.Mutex
	var seen []*models.Identity
	unsubscribe := suite.client.Subscribe(func(id *models.Identity) {
		mu.Lock()
		seen = append(seen, id)
		mu.Unlock()
	})
	defer unsubscribe()

	id, err := suite.client.SignUp(suite.ctx, "ada@example.com", "secret1")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "ada@example.com", id.Email)
	assert.NotEmpty(suite.T(), suite.tokens.token)

	require.NoError(suite.T(), suite.client.SignOut(suite.ctx))
	assert.Empty(suite.T(), suite.tokens.token)
	assert.Nil(suite.T(), suite.client.Identity())

	mu.Lock()
	defer mu.Unlock()
	require.Len(suite.T(), seen, 3)
	assert.Nil(suite.T(), seen[0])
	require.NotNil(suite.T(), seen[1])
	assert.Equal(suite.T(), id.UserID, seen[1].UserID)
	assert.Nil(suite.T(), seen[2])
}

func (suite *ClientTestSuite) TestAuthErrorsMapToSentinels() {
	_, err := suite.client.SignIn(suite.ctx, "nobody@example.com", "secret1")
	assert.ErrorIs(suite.T(), err, auth.ErrUserNotFound)
	assert.Equal(suite.T(), "No user found with this email.", auth.Message(err))

	_, err = suite.client.SignUp(suite.ctx, "ada@example.com", "secret1")
	require.NoError(suite.T(), err)
	_, err = suite.client.SignUp(suite.ctx, "ada@example.com", "secret1")
	assert.ErrorIs(suite.T(), err, auth.ErrEmailInUse)

	_, err = suite.client.SignInWithToken(suite.ctx, "myspace", "tok")
	assert.ErrorIs(suite.T(), err, auth.ErrUnknownProvider)
}

func (suite *ClientTestSuite) TestResume() {
	_, err := suite.client.SignUp(suite.ctx, "ada@example.com", "secret1")
	require.NoError(suite.T(), err)
	saved := suite.tokens.token

	other := New(suite.srv.URL, &memTokens{})
	require.NoError(suite.T(), other.Resume(suite.ctx, saved))
	require.NotNil(suite.T(), other.Identity())
	assert.Equal(suite.T(), "ada@example.com", other.Identity().Email)

	cache := &memTokens{token: "x"}
	stale := New(suite.srv.URL, cache)
	err = stale.Resume(suite.ctx, "garbage")
	assert.ErrorIs(suite.T(), err, auth.ErrInvalidToken)
	assert.Nil(suite.T(), stale.Identity())
	assert.Empty(suite.T(), cache.token, "rejected credential is forgotten")

	broken := New(suite.srv.URL, &memTokens{token: "x", err: assert.AnError})
	err = broken.Resume(suite.ctx, "garbage")
	assert.ErrorIs(suite.T(), err, auth.ErrInvalidToken, "a failing cache does not mask the auth error")
	assert.Nil(suite.T(), broken.Identity())
}

func (suite *ClientTestSuite) TestRefreshIfStale() {
	_, err := suite.client.SignUp(suite.ctx, "ada@example.com", "secret1")
	require.NoError(suite.T(), err)
	saves := suite.tokens.saves

	require.NoError(suite.T(), suite.client.RefreshIfStale(suite.ctx))
	assert.Equal(suite.T(), saves, suite.tokens.saves, "fresh credential is left alone")

	suite.client.now = func() time.Time { return time.Now().Add(20 * 24 * time.Hour) }
	require.NoError(suite.T(), suite.client.RefreshIfStale(suite.ctx))
	assert.Equal(suite.T(), saves+1, suite.tokens.saves)
}

func (suite *ClientTestSuite) TestProfilesAndExpenses() {
	id, err := suite.client.SignUp(suite.ctx, "ada@example.com", "secret1")
	require.NoError(suite.T(), err)

	_, err = suite.client.GetProfile(suite.ctx, id.UserID)
	assert.ErrorIs(suite.T(), err, session.ErrNoProfile)

	require.NoError(suite.T(), suite.client.PutProfile(suite.ctx, id.UserID, models.Profile{FirstName: "Ada"}))
	p, err := suite.client.GetProfile(suite.ctx, id.UserID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "Ada", p.FirstName)

	e := models.Expense{ID: "e1", Amount: decimal.RequireFromString("42.50"), Description: "Lunch", Category: "Food", Date: time.Now()}
	require.NoError(suite.T(), suite.client.CreateExpense(suite.ctx, id.UserID, e))

	amount := decimal.NewFromInt(3)
	err = suite.client.UpdateExpense(suite.ctx, id.UserID, "nope", models.ExpenseUpdate{Amount: &amount})
	assert.ErrorIs(suite.T(), err, ledger.ErrNotFound)

	list, err := suite.client.ListExpenses(suite.ctx, id.UserID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), list, 1)
	assert.Equal(suite.T(), "e1", list[0].ID)

	_, err = suite.client.ListExpenses(suite.ctx, "someone-else")
	var se *StatusError
	require.ErrorAs(suite.T(), err, &se)
	assert.Equal(suite.T(), 403, se.Status)

	require.NoError(suite.T(), suite.client.DeleteExpense(suite.ctx, id.UserID, "e1"))
	list, err = suite.client.ListExpenses(suite.ctx, id.UserID)
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), list)
}

func (suite *ClientTestSuite) TestSessionHolderAndLedgerOverHTTP() {
	holder := session.NewHolder(suite.client, suite.client)
	changes := make(chan session.Snapshot, 16)
	sub := holder.Observe(suite.ctx, func(s session.Snapshot) { changes <- s })
	defer sub.Close()

	require.NoError(suite.T(), holder.SignUp(suite.ctx, "ada@example.com", "secret1", "Ada", "Lovelace"))
	require.Eventually(suite.T(), func() bool {
		s := holder.Snapshot()
		return s.State == session.Authenticated && s.Profile != nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(suite.T(), "Lovelace", holder.Snapshot().Profile.LastName)

	book := ledger.NewClient(suite.client, holder, nil)
	_, err := book.Add(suite.ctx, ledger.Candidate{
		Amount:      "42.50",
		Description: "Lunch",
		Category:    "Food",
		Date:        time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(suite.T(), err)

	fresh := ledger.NewClient(suite.client, holder, nil)
	require.NoError(suite.T(), fresh.Refresh(suite.ctx))
	list := fresh.List()
	require.Len(suite.T(), list, 1)
	assert.Equal(suite.T(), "42.5", list[0].Amount.String())
	assert.Equal(suite.T(), "Food", list[0].Category)

	require.NoError(suite.T(), holder.Logout(suite.ctx))
	require.Eventually(suite.T(), func() bool {
		return holder.Snapshot().State == session.Unauthenticated
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(suite.T(), fresh.List())
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}
