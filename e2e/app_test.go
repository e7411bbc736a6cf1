package e2e

import (
	"context"
	"testing"
	"time"

	"expense-ledger/internal/auth"
	"expense-ledger/internal/ledger"
	"expense-ledger/internal/models"
	"expense-ledger/internal/remote"
	"expense-ledger/internal/session"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// E2ETestSuite drives the running server through the client packages.
type E2ETestSuite struct {
	suite.Suite
	ctx    context.Context
	client *remote.Client
	holder *session.Holder
	book   *ledger.Client
	sub    *session.Subscription
}

// SetupTest gives every test a fresh, signed-out client.
func (suite *E2ETestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.client = remote.New(appURL, nil)
	suite.holder = session.NewHolder(suite.client, suite.client)
	suite.book = ledger.NewClient(suite.client, suite.holder, nil)
	suite.sub = suite.holder.Observe(suite.ctx, nil)
}

// TearDownTest signs out and stops the session listener.
func (suite *E2ETestSuite) TearDownTest() {
	suite.holder.Logout(suite.ctx)
	suite.sub.Close()
}

func (suite *E2ETestSuite) waitFor(state session.State) {
	require.Eventually(suite.T(), func() bool {
		return suite.holder.Snapshot().State == state
	}, 5*time.Second, 20*time.Millisecond, "session never reached %s", state)
}

func (suite *E2ETestSuite) login() {
	err := suite.holder.Login(suite.ctx, adminEmail, adminPassword)
	require.NoError(suite.T(), err, "admin login failed")
	suite.waitFor(session.Authenticated)
}

func (suite *E2ETestSuite) TestCompleteUserFlow() {
	suite.login()
	require.NoError(suite.T(), suite.book.Refresh(suite.ctx))
	before := len(suite.book.List())

	added, err := suite.book.Add(suite.ctx, ledger.Candidate{
		Amount:      "12.50",
		Description: "Lunch Test",
		Category:    "food",
	})
	require.NoError(suite.T(), err, "failed to add expense")
	require.NotNil(suite.T(), added)
	assert.Equal(suite.T(), "Food", added.Category)

	require.NoError(suite.T(), suite.book.Refresh(suite.ctx))
	list := suite.book.List()
	require.Len(suite.T(), list, before+1)
	assert.Equal(suite.T(), "Lunch Test", list[0].Description)
	assert.True(suite.T(), decimal.RequireFromString("12.5").Equal(list[0].Amount))

	desc := "Team Lunch"
	require.NoError(suite.T(), suite.book.Modify(suite.ctx, added.ID, models.ExpenseUpdate{Description: &desc}))

	uid, ok := suite.holder.UserID()
	require.True(suite.T(), ok)
	stats, err := suite.client.Insights(suite.ctx, uid, "Today")
	require.NoError(suite.T(), err)
	assert.GreaterOrEqual(suite.T(), stats.Count, 1)

	require.NoError(suite.T(), suite.book.Remove(suite.ctx, added.ID))
	require.NoError(suite.T(), suite.book.Refresh(suite.ctx))
	assert.Len(suite.T(), suite.book.List(), before)
}

func (suite *E2ETestSuite) TestSignUpIsolatesLedgers() {
	email := "user-" + time.Now().Format("150405.000000") + "@example.com"
	require.NoError(suite.T(), suite.holder.SignUp(suite.ctx, email, "secret1", "Grace", "Hopper"))
	suite.waitFor(session.Authenticated)
	assert.Equal(suite.T(), "Grace", suite.holder.Snapshot().Profile.FirstName)

	require.NoError(suite.T(), suite.book.Refresh(suite.ctx))
	assert.Empty(suite.T(), suite.book.List(), "a new account starts with an empty ledger")

	_, err := suite.client.ListExpenses(suite.ctx, "someone-else")
	assert.Error(suite.T(), err)
}

func (suite *E2ETestSuite) TestWrongPassword() {
	err := suite.holder.Login(suite.ctx, adminEmail, "nope!!")
	assert.ErrorIs(suite.T(), err, auth.ErrWrongPassword)
	assert.Nil(suite.T(), suite.client.Identity())
}

// TestE2ESuite runs the e2e test suite
func TestE2ESuite(t *testing.T) {
	suite.Run(t, new(E2ETestSuite))
}
