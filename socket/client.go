package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

// DefaultURL is the platform's realtime endpoint. It has been stable for a
// long time, but is overridable in case it ever needs to be discovered.
const DefaultURL = "wss://ws-us2.pusher.com/app/eb1d5f283081a78b932c?protocol=7&client=js&version=7.6.0&flash=false"

// DefaultIdlePing is how long the connection may sit idle before the client
// self-initiates a keepalive ping.
const DefaultIdlePing = 115 * time.Second

// State is the connection lifecycle position.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingHandshake
	StateSubscribing
	StateJoined
	StateActive
	StateAwaitingPong
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingHandshake:
		return "awaiting handshake"
	case StateSubscribing:
		return "subscribing"
	case StateJoined:
		return "joined"
	case StateActive:
		return "active"
	case StateAwaitingPong:
		return "awaiting pong"
	default:
		return "unknown"
	}
}

// Client owns one realtime socket connection. Connect, Join, and Listen are
// driven from a single goroutine; Send is safe for concurrent use, so timed
// event callbacks may send while the receive loop runs.
type Client struct {
	URL      string
	IdlePing time.Duration
	Clock    clockwork.Clock
	Dialer   *websocket.Dialer

	conn    *websocket.Conn
	writeMu sync.Mutex

	mu       sync.Mutex
	state    State
	socketID string
	lastRecv time.Time
}

func (c *Client) url() string {
	if c.URL != "" {
		return c.URL
	}
	return DefaultURL
}

func (c *Client) idlePing() time.Duration {
	if c.IdlePing != 0 {
		return c.IdlePing
	}
	return DefaultIdlePing
}

func (c *Client) clock() clockwork.Clock {
	if c.Clock != nil {
		return c.Clock
	}
	return clockwork.NewRealClock()
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// SocketID returns the identifier assigned by the realtime server on connect.
func (c *Client) SocketID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.socketID
}

// Connect dials the realtime endpoint and performs the connection handshake:
// the first inbound frame must be a connection-established event carrying the
// socket identifier. Handshake failures are fatal to the attempt.
func (c *Client) Connect(ctx context.Context) error {
	c.setState(StateConnecting)
	dialer := c.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, c.url(), nil)
	if err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("dial realtime socket: %w", err)
	}
	c.conn = conn
	c.setState(StateAwaitingHandshake)

	f, err := c.readFrame()
	if err != nil {
		_ = conn.Close()
		c.setState(StateDisconnected)
		return &Error{Kind: KindHandshake, err: err}
	}
	if f.Event != EventConnectionEstablished {
		_ = conn.Close()
		c.setState(StateDisconnected)
		return &Error{Kind: KindHandshake, Raw: rawFrame(f), err: errors.New("error establishing connection")}
	}
	id, err := f.SocketID()
	if err != nil {
		_ = conn.Close()
		c.setState(StateDisconnected)
		return &Error{Kind: KindHandshake, err: err}
	}

	c.mu.Lock()
	c.socketID = id
	c.lastRecv = c.clock().Now()
	c.state = StateSubscribing
	c.mu.Unlock()
	slog.Info("connected to realtime socket", slog.String("socket_id", id))
	return nil
}

// Join subscribes to a chatroom's public channel.
func (c *Client) Join(chatroomID int) error {
	if err := c.subscribe(fmt.Sprintf("chatrooms.%d.v2", chatroomID), ""); err != nil {
		return err
	}
	slog.Info("joined chatroom", slog.Int("chatroom_id", chatroomID))
	return nil
}

// SubscribePrivate subscribes to a private channel (e.g. the account's user
// feed) using an auth token issued by the broadcasting-auth endpoint.
func (c *Client) SubscribePrivate(channelName, authToken string) error {
	return c.subscribe(channelName, authToken)
}

func (c *Client) subscribe(channelName, auth string) error {
	if err := c.Send(SubscribeFrame(channelName, auth)); err != nil {
		return &Error{Kind: KindSubscription, Channel: channelName, err: err}
	}
	f, err := c.readFrame()
	if err != nil {
		return &Error{Kind: KindSubscription, Channel: channelName, err: err}
	}
	if f.Event != EventSubscriptionSucceeded {
		return &Error{Kind: KindSubscription, Channel: channelName, Raw: rawFrame(f)}
	}
	if f.Channel != "" && f.Channel != channelName {
		return &Error{Kind: KindSubscription, Channel: channelName, Raw: rawFrame(f)}
	}
	c.setState(StateJoined)
	return nil
}

// Listen runs the receive loop until the connection closes or ctx is
// cancelled, passing every decoded frame to handler in arrival order.
// Undecodable frames are dropped. A handler error aborts the loop and is
// returned; a closed connection or cancellation is a clean exit, not an error.
func (c *Client) Listen(ctx context.Context, handler func(Frame) error) error {
	c.setState(StateActive)

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-loopCtx.Done()
		_ = c.Close()
	}()
	if c.idlePing() > 0 {
		go c.keepalive(loopCtx)
	}

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.setState(StateDisconnected)
			slog.Info("disconnected from realtime socket",
				slog.String("socket_id", c.SocketID()), slog.Any("reason", err))
			return nil
		}
		c.touch()
		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			slog.Debug("dropping malformed frame", slog.Any("err", err))
			continue
		}
		if err := handler(f); err != nil {
			_ = c.Close()
			c.setState(StateDisconnected)
			return err
		}
	}
}

// Send marshals and writes one frame. A mutex serializes writes so the main
// loop's keepalive and timed-event callbacks never interleave on the wire.
func (c *Client) Send(f Frame) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, raw)
}

// Close tears down the connection. Safe to call more than once.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// keepalive pings when the connection has been idle past the threshold and
// waits in AwaitingPong until any frame arrives.
func (c *Client) keepalive(ctx context.Context) {
	for {
		idle := c.idlePing() - c.clock().Since(c.lastReceived())
		if idle <= 0 {
			c.setState(StateAwaitingPong)
			if err := c.Send(PingFrame()); err != nil {
				return
			}
			slog.Debug("sent keepalive ping", slog.String("socket_id", c.SocketID()))
			idle = c.idlePing()
		}
		select {
		case <-ctx.Done():
			return
		case <-c.clock().After(idle):
		}
	}
}

// touch records frame receipt, resolving an outstanding ping wait.
func (c *Client) touch() {
	c.mu.Lock()
	c.lastRecv = c.clock().Now()
	if c.state == StateAwaitingPong {
		c.state = StateActive
	}
	c.mu.Unlock()
}

func (c *Client) lastReceived() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRecv
}

// readFrame reads and decodes a single frame, used during handshake phases.
func (c *Client) readFrame() (Frame, error) {
	var f Frame
	_, raw, err := c.conn.ReadMessage()
	if err != nil {
		return f, err
	}
	c.touch()
	if err := json.Unmarshal(raw, &f); err != nil {
		return f, &Error{Kind: KindMalformedFrame, Raw: string(raw), err: err}
	}
	return f, nil
}

func rawFrame(f Frame) string {
	b, err := json.Marshal(f)
	if err != nil {
		return fmt.Sprintf("%+v", f)
	}
	return string(b)
}
