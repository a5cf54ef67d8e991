package bot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sub20hz/kickbot/auth"
	"github.com/sub20hz/kickbot/channel"
	"github.com/sub20hz/kickbot/socket"
)

// newConfiguredBot returns a bot with a streamer already bound, skipping the
// HTTP resolution SetStreamer would do.
func newConfiguredBot(opts ...Option) *Bot {
	b := New(auth.NewClient("bot@example.com", "hunter2"), opts...)
	b.streamer = &channel.Descriptor{Name: "Cool_Streamer", Slug: "cool-streamer", ChatroomID: 42}
	return b
}

func chatMsg(t *testing.T, content string) *socket.ChatMessage {
	t.Helper()
	var msg socket.ChatMessage
	payload := `{"id":"m1","content":` + string(mustJSON(t, content)) + `,"chatroom_id":42,"sender":{"id":7,"username":"fan"}}`
	require.NoError(t, json.Unmarshal([]byte(payload), &msg))
	return &msg
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestRegistration_RequiresStreamer(t *testing.T) {
	b := New(auth.NewClient("bot@example.com", "hunter2"))
	err := b.AddCommandHandler("!hi", func(context.Context, *Bot, *socket.ChatMessage) error { return nil })
	assert.True(t, IsConfigKind(err, KindStreamerNotSet), "err = %v", err)

	err = b.AddTimedEvent(time.Minute, func(context.Context, *Bot) error { return nil })
	assert.True(t, IsConfigKind(err, KindStreamerNotSet), "err = %v", err)
}

func TestRegistration_EmptyKey(t *testing.T) {
	b := newConfiguredBot()
	err := b.AddMessageHandler("", func(context.Context, *Bot, *socket.ChatMessage) error { return nil })
	assert.True(t, IsConfigKind(err, KindEmptyKey), "err = %v", err)
}

func TestRegistration_DuplicateKeepsFirst(t *testing.T) {
	b := newConfiguredBot()
	var fired string
	require.NoError(t, b.AddCommandHandler("!joke", func(context.Context, *Bot, *socket.ChatMessage) error {
		fired = "first"
		return nil
	}))

	// Duplicate detection is case-insensitive and leaves the first handler in place.
	err := b.AddCommandHandler("!JOKE", func(context.Context, *Bot, *socket.ChatMessage) error {
		fired = "second"
		return nil
	})
	require.True(t, IsConfigKind(err, KindDuplicateKey), "err = %v", err)

	require.NoError(t, b.dispatch(context.Background(), chatMsg(t, "!joke please")))
	assert.Equal(t, "first", fired)
}

func TestRegistration_RejectedWhileRunning(t *testing.T) {
	b := newConfiguredBot()
	b.running.Store(true)
	err := b.AddMessageHandler("hello", func(context.Context, *Bot, *socket.ChatMessage) error { return nil })
	assert.True(t, IsConfigKind(err, KindRunning), "err = %v", err)
}

func TestSetStreamer_Twice(t *testing.T) {
	b := newConfiguredBot()
	err := b.SetStreamer(context.Background(), "someone-else")
	assert.True(t, IsConfigKind(err, KindStreamerSet), "err = %v", err)
}

func TestDispatch_ExactMatchWins(t *testing.T) {
	b := newConfiguredBot()
	var fired string
	require.NoError(t, b.AddMessageHandler("hello world", func(context.Context, *Bot, *socket.ChatMessage) error {
		fired = "message"
		return nil
	}))
	require.NoError(t, b.AddCommandHandler("hello", func(context.Context, *Bot, *socket.ChatMessage) error {
		fired = "command"
		return nil
	}))

	require.NoError(t, b.dispatch(context.Background(), chatMsg(t, "Hello World")))
	assert.Equal(t, "message", fired, "exact content match must win over the command handler")
}

func TestDispatch_CommandCaseFolded(t *testing.T) {
	b := newConfiguredBot()
	fired := 0
	require.NoError(t, b.AddCommandHandler("!joke", func(_ context.Context, _ *Bot, msg *socket.ChatMessage) error {
		fired++
		assert.Equal(t, "!JOKE about gophers", msg.Content)
		return nil
	}))

	require.NoError(t, b.dispatch(context.Background(), chatMsg(t, "!JOKE about gophers")))
	assert.Equal(t, 1, fired)
}

func TestDispatch_UnmatchedDropped(t *testing.T) {
	b := newConfiguredBot()
	require.NoError(t, b.AddCommandHandler("!joke", func(context.Context, *Bot, *socket.ChatMessage) error {
		t.Fatal("handler fired for unmatched message")
		return nil
	}))
	require.NoError(t, b.dispatch(context.Background(), chatMsg(t, "just chatting about !joke")))
}

func TestDispatch_HandlerErrorPropagates(t *testing.T) {
	b := newConfiguredBot()
	boom := errors.New("boom")
	require.NoError(t, b.AddCommandHandler("!joke", func(context.Context, *Bot, *socket.ChatMessage) error {
		return boom
	}))
	err := b.dispatch(context.Background(), chatMsg(t, "!joke"))
	assert.ErrorIs(t, err, boom)
}

func TestSendText_EmptyRejected(t *testing.T) {
	b := newConfiguredBot()
	err := b.SendText(context.Background(), "   ")
	assert.True(t, IsConfigKind(err, KindInvalidMessage), "err = %v", err)

	err = b.ReplyText(context.Background(), chatMsg(t, "hi"), "")
	assert.True(t, IsConfigKind(err, KindInvalidMessage), "err = %v", err)
}

func TestModeration_RefusedWithoutModerator(t *testing.T) {
	b := newConfiguredBot()
	assert.False(t, b.TimeoutUser(context.Background(), "troll", 5))
	assert.False(t, b.Permaban(context.Background(), "troll"))
	assert.Nil(t, b.ViewerInfo(context.Background(), "troll"))
}

func TestPoll_RequiresStreamer(t *testing.T) {
	b := New(auth.NewClient("bot@example.com", "hunter2"))
	err := b.Poll(context.Background())
	assert.True(t, IsConfigKind(err, KindStreamerNotSet), "err = %v", err)
}

var upgrader = websocket.Upgrader{}

// newChatServer scripts a realtime server: handshake, subscription ack for
// the chatroom, then the given chat messages, then close.
func newChatServer(t *testing.T, wantChannel string, contents ...string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		send := func(f socket.Frame) {
			raw, err := json.Marshal(f)
			require.NoError(t, err)
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
		}
		send(socket.Frame{
			Event: socket.EventConnectionEstablished,
			Data:  mustJSON(t, `{"socket_id":"1.1"}`),
		})
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		require.Contains(t, string(raw), wantChannel)
		send(socket.Frame{Event: socket.EventSubscriptionSucceeded, Channel: wantChannel})
		for _, content := range contents {
			payload := `{"id":"m1","content":` + string(mustJSON(t, content)) + `,"chatroom_id":42,"sender":{"id":7,"username":"fan"}}`
			send(socket.Frame{Event: socket.EventChatMessage, Data: mustJSON(t, payload)})
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestPoll_DispatchEndToEnd(t *testing.T) {
	url := newChatServer(t, "chatrooms.42.v2", "!greet everyone", "unrelated chatter")

	b := newConfiguredBot(WithSocketURL(url))
	got := make(chan string, 2)
	require.NoError(t, b.AddCommandHandler("!greet", func(_ context.Context, _ *Bot, msg *socket.ChatMessage) error {
		got <- msg.Content
		return nil
	}))

	// Server closes after its script, so Poll exits cleanly on its own.
	require.NoError(t, b.Poll(context.Background()))
	select {
	case content := <-got:
		assert.Equal(t, "!greet everyone", content)
	default:
		t.Fatal("command handler never fired")
	}
	assert.Len(t, got, 0, "only the command message should reach the handler")
	assert.False(t, b.running.Load(), "running flag must clear after Poll returns")
}

func TestPoll_HandlerErrorStopsPolling(t *testing.T) {
	url := newChatServer(t, "chatrooms.42.v2", "!explode")

	b := newConfiguredBot(WithSocketURL(url))
	boom := errors.New("boom")
	require.NoError(t, b.AddCommandHandler("!explode", func(context.Context, *Bot, *socket.ChatMessage) error {
		return boom
	}))

	err := b.Poll(context.Background())
	assert.ErrorIs(t, err, boom)
}
