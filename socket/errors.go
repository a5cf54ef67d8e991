package socket

import "errors"

// Kind classifies protocol failures.
type Kind int

const (
	// KindHandshake indicates the connection handshake failed.
	KindHandshake Kind = iota
	// KindSubscription indicates a channel subscription was not confirmed.
	KindSubscription
	// KindMalformedFrame indicates an undecodable frame during a handshake
	// phase. Once the receive loop is active, malformed frames are dropped
	// instead of raised.
	KindMalformedFrame
)

func (k Kind) String() string {
	switch k {
	case KindHandshake:
		return "handshake failure"
	case KindSubscription:
		return "subscription failure"
	case KindMalformedFrame:
		return "malformed frame"
	default:
		return "unknown"
	}
}

// Error is the protocol error type. Raw carries the offending frame for
// diagnosis; Channel names the channel a subscription failure was for.
type Error struct {
	Kind    Kind
	Channel string
	Raw     string
	err     error
}

func (e *Error) Error() string {
	msg := "socket: " + e.Kind.String()
	if e.Channel != "" {
		msg += " for " + e.Channel
	}
	if e.Raw != "" {
		msg += ": " + e.Raw
	}
	if e.err != nil {
		msg += ": " + e.err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.err }

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, k Kind) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == k
	}
	return false
}
