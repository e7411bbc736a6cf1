package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"expense-ledger/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const testSecret = "test-secret-0123456789"

type stubProvider struct {
	name string
	ids  map[string]*ExternalIdentity
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Verify(_ context.Context, token string) (*ExternalIdentity, error) {
	if id, ok := p.ids[token]; ok {
		return id, nil
	}
	return nil, ErrProviderFailed
}

// ServiceTestSuite exercises the auth backend over an in-memory store.
type ServiceTestSuite struct {
	suite.Suite
	db  *storage.DB
	svc *Service
	ctx context.Context
}

func (suite *ServiceTestSuite) SetupTest() {
	db, err := storage.NewDB(":memory:")
	require.NoError(suite.T(), err)
	suite.db = db

	issuer, err := NewIssuer(testSecret)
	require.NoError(suite.T(), err)

	google := &stubProvider{name: ProviderGoogle, ids: map[string]*ExternalIdentity{
		"good-token":     {Subject: "g-1", Email: "grace@example.com", EmailVerified: true, DisplayName: "Grace Brewster Hopper"},
		"ada-verified":   {Subject: "g-2", Email: "Ada@example.com", EmailVerified: true},
		"ada-unverified": {Subject: "g-3", Email: "ada@example.com"},
	}}
	suite.svc = NewService(db, issuer, google)
	suite.ctx = context.Background()
}

func (suite *ServiceTestSuite) TearDownTest() {
	suite.db.Close()
}

func (suite *ServiceTestSuite) TestSignUpAndSignIn() {
	cred, err := suite.svc.SignUp(suite.ctx, "Ada@Example.com", "secret1")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "ada@example.com", cred.Identity.Email)
	assert.NotEmpty(suite.T(), cred.Token)

	again, err := suite.svc.SignIn(suite.ctx, "ada@example.com", "secret1")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), cred.Identity.UserID, again.Identity.UserID)
}

func (suite *ServiceTestSuite) TestSignUpErrors() {
	_, err := suite.svc.SignUp(suite.ctx, "not-an-email", "secret1")
	assert.ErrorIs(suite.T(), err, ErrInvalidEmail)

	_, err = suite.svc.SignUp(suite.ctx, "ada@example.com", "123")
	assert.ErrorIs(suite.T(), err, ErrWeakPassword)

	_, err = suite.svc.SignUp(suite.ctx, "ada@example.com", "secret1")
	require.NoError(suite.T(), err)
	_, err = suite.svc.SignUp(suite.ctx, "ada@example.com", "secret2")
	assert.ErrorIs(suite.T(), err, ErrEmailInUse)
	assert.Equal(suite.T(), "Email already in use.", Message(err))
}

func (suite *ServiceTestSuite) TestCreateAccountStartsNoSession() {
	u, err := suite.svc.CreateAccount(suite.ctx, " Root@Example.com ", "secret1")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "root@example.com", u.Email)
	assert.NotEqual(suite.T(), "secret1", u.PasswordHash)

	cred, err := suite.svc.SignIn(suite.ctx, "root@example.com", "secret1")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), u.ID, cred.Identity.UserID)
}

func (suite *ServiceTestSuite) TestSignInErrors() {
	_, err := suite.svc.SignIn(suite.ctx, "nobody@example.com", "secret1")
	assert.ErrorIs(suite.T(), err, ErrUserNotFound)
	assert.Equal(suite.T(), "No user found with this email.", Message(err))

	_, err = suite.svc.SignUp(suite.ctx, "ada@example.com", "secret1")
	require.NoError(suite.T(), err)
	_, err = suite.svc.SignIn(suite.ctx, "ada@example.com", "wrong!")
	assert.ErrorIs(suite.T(), err, ErrWrongPassword)
}

func (suite *ServiceTestSuite) TestVerifyRefreshSignOut() {
	cred, err := suite.svc.SignUp(suite.ctx, "ada@example.com", "secret1")
	require.NoError(suite.T(), err)

	id, _, err := suite.svc.Verify(suite.ctx, cred.Token)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), cred.Identity.UserID, id.UserID)

	fresh, err := suite.svc.Refresh(suite.ctx, cred.Token)
	require.NoError(suite.T(), err)
	assert.False(suite.T(), fresh.ExpiresAt.Before(cred.ExpiresAt))

	require.NoError(suite.T(), suite.svc.SignOut(suite.ctx, fresh.Token))
	_, _, err = suite.svc.Verify(suite.ctx, cred.Token)
	assert.ErrorIs(suite.T(), err, ErrInvalidToken)
}

func (suite *ServiceTestSuite) TestVerifyRejectsForeignSignature() {
	other, err := NewIssuer("another-secret-0123456789")
	require.NoError(suite.T(), err)
	forged, err := other.Issue("uid", "x@example.com", "sid", suite.svc.now(), suite.svc.now().Add(SessionDuration))
	require.NoError(suite.T(), err)

	_, _, err = suite.svc.Verify(suite.ctx, forged)
	assert.ErrorIs(suite.T(), err, ErrInvalidToken)
}

func (suite *ServiceTestSuite) TestSignInWithToken() {
	cred, err := suite.svc.SignInWithToken(suite.ctx, ProviderGoogle, "good-token")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "grace@example.com", cred.Identity.Email)
	assert.Equal(suite.T(), "Grace Brewster Hopper", cred.Identity.DisplayName)

	again, err := suite.svc.SignInWithToken(suite.ctx, ProviderGoogle, "good-token")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), cred.Identity.UserID, again.Identity.UserID)

	_, err = suite.svc.SignInWithToken(suite.ctx, ProviderGoogle, "bad-token")
	assert.ErrorIs(suite.T(), err, ErrProviderFailed)

	_, err = suite.svc.SignInWithToken(suite.ctx, "myspace", "good-token")
	assert.ErrorIs(suite.T(), err, ErrUnknownProvider)
}

func (suite *ServiceTestSuite) TestSignInWithTokenLinksOnlyVerifiedEmail() {
	owner, err := suite.svc.SignUp(suite.ctx, "ada@example.com", "secret1")
	require.NoError(suite.T(), err)

	other, err := suite.svc.SignInWithToken(suite.ctx, ProviderGoogle, "ada-unverified")
	require.NoError(suite.T(), err)
	assert.NotEqual(suite.T(), owner.Identity.UserID, other.Identity.UserID)
	assert.Equal(suite.T(), "g-3@google.invalid", other.Identity.Email)

	u, err := suite.db.GetUserByEmail(suite.ctx, "ada@example.com")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), owner.Identity.UserID, u.ID, "password account keeps its address")

	linked, err := suite.svc.SignInWithToken(suite.ctx, ProviderGoogle, "ada-verified")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), owner.Identity.UserID, linked.Identity.UserID)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceTestSuite))
}

func TestGoogleVerify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tokeninfo", r.URL.Path)
		switch r.URL.Query().Get("id_token") {
		case "ok":
			w.Write([]byte(`{"sub":"123","aud":"client-1","email":"a@b.c","email_verified":"true","name":"Ann Bee"}`))
		case "claims":
			w.Write([]byte(`{"sub":"123","aud":"client-1","email":"a@b.c","email_verified":true}`))
		case "unverified":
			w.Write([]byte(`{"sub":"666","aud":"client-1","email":"victim@example.com","email_verified":"false"}`))
		case "wrong-aud":
			w.Write([]byte(`{"sub":"123","aud":"client-2"}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	g := NewGoogle("client-1")
	g.BaseURL = srv.URL

	id, err := g.Verify(context.Background(), "ok")
	require.NoError(t, err)
	assert.Equal(t, "123", id.Subject)
	assert.Equal(t, "Ann Bee", id.DisplayName)
	assert.True(t, id.EmailVerified)

	id, err = g.Verify(context.Background(), "claims")
	require.NoError(t, err)
	assert.True(t, id.EmailVerified)

	id, err = g.Verify(context.Background(), "unverified")
	require.NoError(t, err)
	assert.Equal(t, "victim@example.com", id.Email)
	assert.False(t, id.EmailVerified)

	_, err = g.Verify(context.Background(), "wrong-aud")
	assert.ErrorIs(t, err, ErrProviderFailed)

	_, err = g.Verify(context.Background(), "garbage")
	assert.ErrorIs(t, err, ErrProviderFailed)
}

func TestGitHubVerifyAndExchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/user":
			if h := r.Header.Get("Authorization"); h != "Bearer gho_ok" && h != "Bearer gho_public" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Write([]byte(`{"id":42,"login":"octocat","name":"","email":"public@example.com"}`))
		case "/user/emails":
			if r.Header.Get("Authorization") != "Bearer gho_ok" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.Write([]byte(`[{"email":"old@example.com","primary":false,"verified":true},
				{"email":"octo@example.com","primary":true,"verified":true}]`))
		case "/login/oauth/access_token":
			assert.NoError(t, r.ParseForm())
			if r.Form.Get("code") == "good" {
				w.Write([]byte(`{"access_token":"gho_ok"}`))
				return
			}
			w.Write([]byte(`{"error":"bad_verification_code","error_description":"The code passed is incorrect or expired."}`))
		}
	}))
	defer srv.Close()

	g := NewGitHub("cid", "csecret")
	g.APIURL = srv.URL
	g.WebURL = srv.URL

	token, err := g.ExchangeCode(context.Background(), "good", "verifier")
	require.NoError(t, err)
	assert.Equal(t, "gho_ok", token)

	_, err = g.ExchangeCode(context.Background(), "bad", "")
	assert.ErrorIs(t, err, ErrProviderFailed)
	assert.Contains(t, err.Error(), "incorrect or expired")

	id, err := g.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "42", id.Subject)
	assert.Equal(t, "octocat", id.DisplayName)
	assert.Equal(t, "octo@example.com", id.Email)
	assert.True(t, id.EmailVerified)

	id, err = g.Verify(context.Background(), "gho_public")
	require.NoError(t, err)
	assert.Equal(t, "public@example.com", id.Email)
	assert.False(t, id.EmailVerified, "profile email is not proof of ownership")

	_, err = g.Verify(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrProviderFailed)
}

func TestCodeRoundTrip(t *testing.T) {
	assert.Equal(t, "user-not-found", Code(ErrUserNotFound))
	assert.ErrorIs(t, FromCode("email-already-in-use"), ErrEmailInUse)
	assert.Nil(t, FromCode("unheard-of"))
	assert.Equal(t, "", Code(assert.AnError))
	assert.Equal(t, "Something went wrong", Message(assert.AnError))
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("testpass")
	require.NoError(t, err)
	assert.True(t, CheckPassword("testpass", hash))
	assert.False(t, CheckPassword("nope", hash))

	a, err := GenerateSessionToken()
	require.NoError(t, err)
	b, err := GenerateSessionToken()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
