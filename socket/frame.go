// Package socket implements the realtime pub/sub protocol client: the
// connection and subscription handshakes, keepalive, and inbound frame
// decoding. Frames are JSON objects {event, data}; for a handful of event
// types the data field is itself a JSON-encoded string and needs a second
// decode.
package socket

import (
	"encoding/json"
	"fmt"
)

// Inbound event tags. Tags outside this set are legal and ignored, which
// keeps the client forward-compatible with new upstream event types.
const (
	EventConnectionEstablished = "pusher:connection_established"
	EventSubscriptionSucceeded = "pusher_internal:subscription_succeeded"
	EventPong                  = "pusher:pong"
	EventChatMessage           = `App\Events\ChatMessageEvent`
)

// Outbound event tags.
const (
	EventSubscribe = "pusher:subscribe"
	EventPing      = "pusher:ping"
)

// Frame is one protocol message in either direction.
type Frame struct {
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data,omitempty"`
	Channel string          `json:"channel,omitempty"`
}

// SubscribeFrame builds the channel subscription command. Public channels
// subscribe with an empty auth token; private channels carry the token issued
// by the broadcasting-auth endpoint.
func SubscribeFrame(channel, auth string) Frame {
	data, _ := json.Marshal(map[string]string{"auth": auth, "channel": channel})
	return Frame{Event: EventSubscribe, Data: data}
}

// PingFrame builds the keepalive ping command.
func PingFrame() Frame {
	return Frame{Event: EventPing, Data: json.RawMessage(`{}`)}
}

// nested returns the twice-encoded payload carried by events whose data field
// is a JSON string containing JSON.
func (f Frame) nested() ([]byte, error) {
	var s string
	if err := json.Unmarshal(f.Data, &s); err != nil {
		return nil, fmt.Errorf("nested payload is not a JSON string: %w", err)
	}
	return []byte(s), nil
}

// SocketID extracts the socket identifier from a connection-established frame.
func (f Frame) SocketID() (string, error) {
	raw, err := f.nested()
	if err != nil {
		return "", err
	}
	var payload struct {
		SocketID string `json:"socket_id"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("decode connection payload: %w", err)
	}
	if payload.SocketID == "" {
		return "", fmt.Errorf("connection payload missing socket_id")
	}
	return payload.SocketID, nil
}

// ChatMessage decodes the nested chat message entity from a chat-message frame.
func (f Frame) ChatMessage() (*ChatMessage, error) {
	raw, err := f.nested()
	if err != nil {
		return nil, err
	}
	var msg ChatMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("decode chat message: %w", err)
	}
	return &msg, nil
}
