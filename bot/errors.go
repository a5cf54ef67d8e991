package bot

import (
	"errors"
	"fmt"
)

// ConfigKind classifies bot configuration errors. These surface at
// registration time, never at dispatch time.
type ConfigKind int

const (
	// KindDuplicateKey indicates a handler key that is already registered.
	KindDuplicateKey ConfigKind = iota
	// KindEmptyKey indicates a handler key that is empty after case-folding.
	KindEmptyKey
	// KindStreamerSet indicates a second SetStreamer call; only one streamer
	// may be monitored for the bot's lifetime.
	KindStreamerSet
	// KindStreamerNotSet indicates setup was attempted before SetStreamer.
	KindStreamerNotSet
	// KindInvalidInterval indicates a non-positive timed event interval.
	KindInvalidInterval
	// KindInvalidMessage indicates an empty outbound message.
	KindInvalidMessage
	// KindRunning indicates setup was attempted after polling started.
	KindRunning
)

func (k ConfigKind) String() string {
	switch k {
	case KindDuplicateKey:
		return "duplicate handler key"
	case KindEmptyKey:
		return "empty handler key"
	case KindStreamerSet:
		return "streamer already set"
	case KindStreamerNotSet:
		return "streamer not set"
	case KindInvalidInterval:
		return "invalid interval"
	case KindInvalidMessage:
		return "invalid message"
	case KindRunning:
		return "bot already polling"
	default:
		return "unknown"
	}
}

// ConfigError reports a bot misconfiguration.
type ConfigError struct {
	Kind ConfigKind
	Key  string
}

func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("bot config: %s: %q", e.Kind, e.Key)
	}
	return "bot config: " + e.Kind.String()
}

// IsConfigKind reports whether err is a *ConfigError of the given kind.
func IsConfigKind(err error, k ConfigKind) bool {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return ce.Kind == k
	}
	return false
}
