package auth

import (
	"errors"
	"fmt"
)

// Kind classifies authentication failures so callers can branch on the
// failure mode without string matching.
type Kind int

const (
	// KindTokenParse indicates the login-form token triple could not be parsed.
	KindTokenParse Kind = iota
	// KindLoginRejected indicates the platform rejected the credentials (422).
	KindLoginRejected
	// KindCSRFInvalid indicates a stale or missing cross-site-request-forgery token (419).
	KindCSRFInvalid
	// KindAntiBotBlocked indicates the anti-bot layer rejected the request (403).
	KindAntiBotBlocked
	// KindTwoFactorRequired indicates the account has 2FA enabled; the bot cannot log in.
	KindTwoFactorRequired
	// KindUserInfo indicates the post-login identity fetch failed.
	KindUserInfo
	// KindSocketAuth indicates a broadcasting-auth token request failed.
	KindSocketAuth
	// KindUnexpected covers any other response status.
	KindUnexpected
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindTokenParse:
		return "token parse failure"
	case KindLoginRejected:
		return "login rejected"
	case KindCSRFInvalid:
		return "csrf invalid"
	case KindAntiBotBlocked:
		return "anti-bot blocked"
	case KindTwoFactorRequired:
		return "two-factor required"
	case KindUserInfo:
		return "user info failure"
	case KindSocketAuth:
		return "socket auth failure"
	case KindUnexpected:
		return "unexpected response"
	default:
		return "unknown"
	}
}

// Error is the authentication error type. Status and Body carry the raw HTTP
// response for the KindUnexpected case and for diagnostics.
type Error struct {
	Kind   Kind
	Status int
	Body   string
	err    error
}

func (e *Error) Error() string {
	msg := "auth: " + e.Kind.String()
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.err != nil {
		msg += ": " + e.err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.err }

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, k Kind) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind == k
	}
	return false
}
