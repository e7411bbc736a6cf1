package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Provider names accepted by SignInWithToken.
const (
	ProviderGoogle = "google"
	ProviderGitHub = "github"
)

// ExternalIdentity is what a provider vouches for. Email is only trusted
// for account linking when EmailVerified is set.
type ExternalIdentity struct {
	Subject       string
	Email         string
	EmailVerified bool
	DisplayName   string
}

// Provider verifies a third-party identity token.
type Provider interface {
	Name() string
	Verify(ctx context.Context, token string) (*ExternalIdentity, error)
}

var defaultHTTPClient = &http.Client{Timeout: 15 * time.Second}

func getJSON(ctx context.Context, client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s %s returned %s", ErrProviderFailed, req.Method, req.URL.Host, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Google verifies Google ID tokens against the tokeninfo endpoint.
type Google struct {
	ClientID string
	BaseURL  string
	Client   *http.Client
}

// NewGoogle returns a Google provider accepting tokens issued to clientID.
func NewGoogle(clientID string) *Google {
	return &Google{ClientID: clientID, BaseURL: "https://oauth2.googleapis.com", Client: defaultHTTPClient}
}

func (g *Google) Name() string { return ProviderGoogle }

// Verify checks the ID token and its audience.
func (g *Google) Verify(ctx context.Context, token string) (*ExternalIdentity, error) {
	req, err := http.NewRequest(http.MethodGet, g.BaseURL+"/tokeninfo?id_token="+url.QueryEscape(token), nil)
	if err != nil {
		return nil, err
	}
	var info struct {
		Sub           string `json:"sub"`
		Aud           string `json:"aud"`
		Email         string `json:"email"`
		EmailVerified any    `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := getJSON(ctx, g.Client, req, &info); err != nil {
		return nil, err
	}
	if info.Sub == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrProviderFailed)
	}
	if g.ClientID != "" && info.Aud != g.ClientID {
		return nil, fmt.Errorf("%w: token audience %q", ErrProviderFailed, info.Aud)
	}
	// tokeninfo reports the flag as the string "true"; ID token claims use a bool.
	verified := info.EmailVerified == true || info.EmailVerified == "true"
	return &ExternalIdentity{Subject: info.Sub, Email: info.Email, EmailVerified: verified, DisplayName: info.Name}, nil
}

// GitHub verifies GitHub OAuth access tokens and exchanges authorization codes.
type GitHub struct {
	ClientID     string
	ClientSecret string
	APIURL       string
	WebURL       string
	Client       *http.Client
}

// NewGitHub returns a GitHub provider for the given OAuth app.
func NewGitHub(clientID, clientSecret string) *GitHub {
	return &GitHub{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		APIURL:       "https://api.github.com",
		WebURL:       "https://github.com",
		Client:       defaultHTTPClient,
	}
}

func (g *GitHub) Name() string { return ProviderGitHub }

// Verify resolves the access token to the GitHub user it belongs to.
func (g *GitHub) Verify(ctx context.Context, token string) (*ExternalIdentity, error) {
	req, err := http.NewRequest(http.MethodGet, g.APIURL+"/user", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")
	var user struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := getJSON(ctx, g.Client, req, &user); err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, fmt.Errorf("%w: no user id", ErrProviderFailed)
	}
	name := user.Name
	if name == "" {
		name = user.Login
	}
	id := &ExternalIdentity{Subject: strconv.FormatInt(user.ID, 10), Email: user.Email, DisplayName: name}
	if email, err := g.primaryEmail(ctx, token); err != nil {
		slog.Warn("github email lookup failed", "error", err)
	} else if email != "" {
		id.Email, id.EmailVerified = email, true
	}
	return id, nil
}

// primaryEmail returns the user's primary address if GitHub has verified it.
// The public profile email carries no such guarantee.
func (g *GitHub) primaryEmail(ctx context.Context, token string) (string, error) {
	req, err := http.NewRequest(http.MethodGet, g.APIURL+"/user/emails", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := getJSON(ctx, g.Client, req, &emails); err != nil {
		return "", err
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, nil
		}
	}
	return "", nil
}

// ExchangeCode trades an OAuth authorization code for an access token.
func (g *GitHub) ExchangeCode(ctx context.Context, code, codeVerifier string) (string, error) {
	form := url.Values{
		"client_id":     {g.ClientID},
		"client_secret": {g.ClientSecret},
		"code":          {code},
	}
	if codeVerifier != "" {
		form.Set("code_verifier", codeVerifier)
	}
	req, err := http.NewRequest(http.MethodPost, g.WebURL+"/login/oauth/access_token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	var out struct {
		AccessToken      string `json:"access_token"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := getJSON(ctx, g.Client, req, &out); err != nil {
		return "", err
	}
	if out.Error != "" {
		return "", fmt.Errorf("%w: GitHub OAuth Error: %s", ErrProviderFailed, out.ErrorDescription)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("%w: failed to obtain access token", ErrProviderFailed)
	}
	return out.AccessToken, nil
}
