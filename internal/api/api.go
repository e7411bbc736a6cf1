// Package api holds the JSON bodies exchanged between the server and its clients.
package api

// Error codes beyond the auth taxonomy.
const (
	CodeInvalidArgument  = "invalid-argument"
	CodeNotFound         = "not-found"
	CodeAlreadyExists    = "already-exists"
	CodePermissionDenied = "permission-denied"
	CodeUnauthenticated  = "unauthenticated"
	CodeInternal         = "internal"
)

// Error is the body of every non-2xx response.
type Error struct {
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

type PasswordRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenRequest signs in with a provider token, or with an authorization
// code that the server exchanges first.
type TokenRequest struct {
	Provider     string `json:"provider"`
	Token        string `json:"token,omitempty"`
	Code         string `json:"code,omitempty"`
	CodeVerifier string `json:"code_verifier,omitempty"`
}
