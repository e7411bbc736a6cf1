package auth

import "errors"

var (
	ErrEmailInUse      = errors.New("auth: email already in use")
	ErrUserNotFound    = errors.New("auth: user not found")
	ErrWrongPassword   = errors.New("auth: wrong password")
	ErrInvalidEmail    = errors.New("auth: invalid email")
	ErrWeakPassword    = errors.New("auth: weak password")
	ErrInvalidToken    = errors.New("auth: invalid or expired credential")
	ErrUnknownProvider = errors.New("auth: unknown identity provider")
	ErrProviderFailed  = errors.New("auth: identity provider rejected the token")
)

// codes is the wire name of each error, shared by the HTTP API and its client.
var codes = map[error]string{
	ErrEmailInUse:      "email-already-in-use",
	ErrUserNotFound:    "user-not-found",
	ErrWrongPassword:   "wrong-password",
	ErrInvalidEmail:    "invalid-email",
	ErrWeakPassword:    "weak-password",
	ErrInvalidToken:    "invalid-credential",
	ErrUnknownProvider: "unknown-provider",
	ErrProviderFailed:  "provider-failed",
}

var messages = map[error]string{
	ErrEmailInUse:      "Email already in use.",
	ErrUserNotFound:    "No user found with this email.",
	ErrWrongPassword:   "Incorrect password.",
	ErrInvalidEmail:    "Please enter a valid email address.",
	ErrWeakPassword:    "Password should be at least 6 characters.",
	ErrInvalidToken:    "Your session has expired. Please sign in again.",
	ErrUnknownProvider: "This sign-in method is not supported.",
	ErrProviderFailed:  "Sign-in with the provider failed.",
}

// Code returns the wire code for err, or "" if err is not an auth error.
func Code(err error) string {
	for e, c := range codes {
		if errors.Is(err, e) {
			return c
		}
	}
	return ""
}

// FromCode maps a wire code back to its sentinel error.
func FromCode(code string) error {
	for e, c := range codes {
		if c == code {
			return e
		}
	}
	return nil
}

// Message maps err to a short human-readable string for inline display.
func Message(err error) string {
	if err == nil {
		return ""
	}
	for e, m := range messages {
		if errors.Is(err, e) {
			return m
		}
	}
	return "Something went wrong"
}
