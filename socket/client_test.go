package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

var upgrader = websocket.Upgrader{}

// newWSServer runs script against every accepted socket and returns a ws:// URL.
func newWSServer(t *testing.T, script func(conn *websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		script(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func writeFrame(conn *websocket.Conn, f Frame) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, raw)
}

func established(t *testing.T, socketID string) Frame {
	return nestedFrame(t, EventConnectionEstablished, `{"socket_id":"`+socketID+`"}`)
}

func TestConnect(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn) {
		_ = writeFrame(conn, established(t, "123.456"))
		// Hold the connection open until the client goes away.
		_, _, _ = conn.ReadMessage()
	})

	c := &Client{URL: url}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect(): %v", err)
	}
	defer c.Close()
	if got := c.SocketID(); got != "123.456" {
		t.Errorf("SocketID() = %q, want 123.456", got)
	}
	if c.State() != StateSubscribing {
		t.Errorf("State() = %v, want subscribing", c.State())
	}
}

func TestConnect_WrongFirstFrame(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn) {
		_ = writeFrame(conn, Frame{Event: "pusher:error"})
	})

	c := &Client{URL: url}
	err := c.Connect(context.Background())
	if !IsKind(err, KindHandshake) {
		t.Fatalf("Connect() error = %v, want handshake failure", err)
	}
	if !strings.Contains(err.Error(), "error establishing connection") {
		t.Errorf("Connect() error = %v, want establish-connection message", err)
	}
	if c.State() != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", c.State())
	}
}

// joinServer scripts the handshake plus one subscribe round-trip, answering
// with reply once a well-formed subscribe command for wantChannel arrives.
func joinServer(t *testing.T, wantChannel string, reply Frame) string {
	return newWSServer(t, func(conn *websocket.Conn) {
		_ = writeFrame(conn, established(t, "1.1"))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd struct {
			Event string `json:"event"`
			Data  struct {
				Auth    string `json:"auth"`
				Channel string `json:"channel"`
			} `json:"data"`
		}
		if err := json.Unmarshal(raw, &cmd); err != nil {
			t.Errorf("unmarshal subscribe command: %v", err)
			return
		}
		if cmd.Event != "pusher:subscribe" || cmd.Data.Channel != wantChannel || cmd.Data.Auth != "" {
			t.Errorf("subscribe command = %s", raw)
		}
		_ = writeFrame(conn, reply)
		_, _, _ = conn.ReadMessage()
	})
}

func TestJoin(t *testing.T) {
	url := joinServer(t, "chatrooms.42.v2",
		Frame{Event: EventSubscriptionSucceeded, Channel: "chatrooms.42.v2"})

	c := &Client{URL: url}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect(): %v", err)
	}
	defer c.Close()
	if err := c.Join(42); err != nil {
		t.Fatalf("Join(): %v", err)
	}
	if c.State() != StateJoined {
		t.Errorf("State() = %v, want joined", c.State())
	}
}

func TestJoin_UnexpectedReply(t *testing.T) {
	url := joinServer(t, "chatrooms.42.v2", Frame{Event: "pusher:error"})

	c := &Client{URL: url}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect(): %v", err)
	}
	defer c.Close()
	err := c.Join(42)
	if !IsKind(err, KindSubscription) {
		t.Fatalf("Join() error = %v, want subscription failure", err)
	}
	if !strings.Contains(err.Error(), "chatrooms.42.v2") {
		t.Errorf("Join() error = %v, want the chatroom named", err)
	}
	if !strings.Contains(err.Error(), "pusher:error") {
		t.Errorf("Join() error = %v, want raw response included", err)
	}
}

func TestListen_OrderAndCleanClose(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn) {
		_ = writeFrame(conn, established(t, "1.1"))
		_ = writeFrame(conn, Frame{Event: "totally:new-event"})
		_ = conn.WriteMessage(websocket.TextMessage, []byte("not json at all"))
		_ = writeFrame(conn, Frame{Event: EventPong, Data: json.RawMessage(`{}`)})
	})

	c := &Client{URL: url, IdlePing: -1}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect(): %v", err)
	}

	var events []string
	err := c.Listen(context.Background(), func(f Frame) error {
		events = append(events, f.Event)
		return nil
	})
	if err != nil {
		t.Fatalf("Listen() = %v, want clean nil on close", err)
	}
	want := []string{"totally:new-event", EventPong}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("events[%d] = %q, want %q", i, events[i], want[i])
		}
	}
	if c.State() != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", c.State())
	}
}

func TestListen_HandlerErrorPropagates(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn) {
		_ = writeFrame(conn, established(t, "1.1"))
		_ = writeFrame(conn, Frame{Event: EventPong})
		_, _, _ = conn.ReadMessage()
	})

	c := &Client{URL: url, IdlePing: -1}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect(): %v", err)
	}

	boom := &Error{Kind: KindMalformedFrame}
	err := c.Listen(context.Background(), func(Frame) error { return boom })
	if err != boom {
		t.Fatalf("Listen() = %v, want handler error surfaced", err)
	}
}

func TestListen_CancellationClosesSocket(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn) {
		_ = writeFrame(conn, established(t, "1.1"))
		_, _, _ = conn.ReadMessage()
	})

	c := &Client{URL: url, IdlePing: -1}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect(): %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Listen(ctx, func(Frame) error { return nil }) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Listen() after cancel = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Listen() did not return after cancellation")
	}
}

func TestKeepalive_PingsWhenIdle(t *testing.T) {
	pings := make(chan Frame, 1)
	url := newWSServer(t, func(conn *websocket.Conn) {
		_ = writeFrame(conn, established(t, "1.1"))
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var f Frame
			if err := json.Unmarshal(raw, &f); err != nil {
				continue
			}
			if f.Event == EventPing {
				pings <- f
				_ = writeFrame(conn, Frame{Event: EventPong, Data: json.RawMessage(`{}`)})
			}
		}
	})

	fc := clockwork.NewFakeClock()
	c := &Client{URL: url, Clock: fc, IdlePing: 115 * time.Second}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect(): %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Listen(ctx, func(Frame) error { return nil }) }()

	// Wait for the keepalive loop to arm its idle timer, then push past the
	// idle threshold.
	if err := fc.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("keepalive timer never armed: %v", err)
	}
	fc.Advance(115 * time.Second)

	select {
	case <-pings:
	case <-time.After(5 * time.Second):
		t.Fatal("no keepalive ping after idle threshold")
	}
	cancel()
	<-done
}
