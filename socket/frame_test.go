package socket

import (
	"encoding/json"
	"testing"
)

// nestedFrame builds a frame whose data field is a JSON-encoded string, the
// way the upstream server delivers connection-established and chat-message
// events.
func nestedFrame(t *testing.T, event string, payload string) Frame {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal nested payload: %v", err)
	}
	return Frame{Event: event, Data: data}
}

func TestFrameSocketID(t *testing.T) {
	f := nestedFrame(t, EventConnectionEstablished, `{"socket_id":"123.456","activity_timeout":120}`)
	id, err := f.SocketID()
	if err != nil {
		t.Fatalf("SocketID(): %v", err)
	}
	if id != "123.456" {
		t.Errorf("SocketID() = %q, want %q", id, "123.456")
	}
}

func TestFrameSocketID_MissingOrMalformed(t *testing.T) {
	tests := []struct {
		name string
		f    Frame
	}{
		{"payload without socket_id", nestedFrame(t, EventConnectionEstablished, `{}`)},
		{"data not a string", Frame{Event: EventConnectionEstablished, Data: json.RawMessage(`{"socket_id":"1.2"}`)}},
		{"nested payload not json", nestedFrame(t, EventConnectionEstablished, `garbage`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.f.SocketID(); err == nil {
				t.Error("SocketID() error = nil, want failure")
			}
		})
	}
}

func TestSubscribeFrameWire(t *testing.T) {
	raw, err := json.Marshal(SubscribeFrame("chatrooms.42.v2", ""))
	if err != nil {
		t.Fatalf("marshal subscribe frame: %v", err)
	}
	var got struct {
		Event string `json:"event"`
		Data  struct {
			Auth    string `json:"auth"`
			Channel string `json:"channel"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal subscribe frame: %v", err)
	}
	if got.Event != "pusher:subscribe" {
		t.Errorf("event = %q, want pusher:subscribe", got.Event)
	}
	if got.Data.Auth != "" || got.Data.Channel != "chatrooms.42.v2" {
		t.Errorf("data = %+v, want empty auth and chatrooms.42.v2", got.Data)
	}
}

const sampleChatPayload = `{
	"id": "msg-1",
	"chatroom_id": 42,
	"content": "!Greet World",
	"type": "message",
	"created_at": "2024-05-01T12:00:00Z",
	"sender": {
		"id": 1001,
		"username": "Viewer_One",
		"slug": "viewer-one",
		"identity": {"badges": [{"type": "moderator", "text": "Moderator"}]}
	}
}`

func TestFrameChatMessage(t *testing.T) {
	f := nestedFrame(t, EventChatMessage, sampleChatPayload)
	msg, err := f.ChatMessage()
	if err != nil {
		t.Fatalf("ChatMessage(): %v", err)
	}
	if msg.ID != "msg-1" || msg.ChatroomID != 42 {
		t.Errorf("identity = (%q, %d), want (msg-1, 42)", msg.ID, msg.ChatroomID)
	}
	if msg.Content != "!Greet World" {
		t.Errorf("Content = %q", msg.Content)
	}
	if len(msg.Args) != 2 || msg.Args[0] != "!Greet" {
		t.Errorf("Args = %v, want [!Greet World]", msg.Args)
	}
	if msg.Command() != "!greet" {
		t.Errorf("Command() = %q, want !greet (case-folded)", msg.Command())
	}
	if msg.Sender.Username != "Viewer_One" || msg.Sender.ID != 1001 {
		t.Errorf("Sender = %+v", msg.Sender)
	}
	if len(msg.Sender.Badges) != 1 || msg.Sender.Badges[0].Type != "moderator" {
		t.Errorf("Badges = %v", msg.Sender.Badges)
	}
}

func TestChatMessage_MissingBadges(t *testing.T) {
	payload := `{"id":"m","chatroom_id":1,"content":"hi","sender":{"id":2,"username":"u","slug":"u"}}`
	f := nestedFrame(t, EventChatMessage, payload)
	msg, err := f.ChatMessage()
	if err != nil {
		t.Fatalf("ChatMessage(): %v", err)
	}
	if msg.Sender.Badges == nil || len(msg.Sender.Badges) != 0 {
		t.Errorf("Badges = %v, want empty non-nil set", msg.Sender.Badges)
	}
}
