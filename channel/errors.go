package channel

import (
	"errors"
	"fmt"
)

// Kind classifies channel resolution failures.
type Kind int

const (
	// KindBlocked indicates the anti-bot layer rejected the lookup (403/429).
	KindBlocked Kind = iota
	// KindNotFound indicates no channel exists under the requested name.
	KindNotFound
	// KindBadPayload indicates the channel info response could not be decoded.
	KindBadPayload
	// KindSettingsFailure indicates the settings or membership fetch failed.
	KindSettingsFailure
)

func (k Kind) String() string {
	switch k {
	case KindBlocked:
		return "blocked"
	case KindNotFound:
		return "not found"
	case KindBadPayload:
		return "bad payload"
	case KindSettingsFailure:
		return "settings failure"
	default:
		return "unknown"
	}
}

// Error is the channel resolution error type.
type Error struct {
	Kind    Kind
	Channel string
	Status  int
	err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("channel %q: %s", e.Channel, e.Kind)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.err != nil {
		msg += ": " + e.err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.err }

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, k Kind) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind == k
	}
	return false
}
