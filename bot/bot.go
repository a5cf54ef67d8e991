// Package bot wires the credential session, channel registry, and realtime
// socket into a chat automaton: handlers keyed by message text or command
// word, timed events on fixed intervals, and a moderation facade.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/sub20hz/kickbot/auth"
	"github.com/sub20hz/kickbot/channel"
	"github.com/sub20hz/kickbot/moderation"
	"github.com/sub20hz/kickbot/socket"
	"github.com/sub20hz/kickbot/telemetry"
)

// Handler reacts to one inbound chat message.
type Handler func(ctx context.Context, b *Bot, msg *socket.ChatMessage) error

// TimedHandler runs on a fixed interval while the bot polls.
type TimedHandler func(ctx context.Context, b *Bot) error

type timedEvent struct {
	interval time.Duration
	fn       TimedHandler
}

// Bot is the top-level chat automaton. Configure it with SetStreamer and the
// Add* methods, then run Poll. Configuration is rejected once polling starts;
// handler maps are read-only from there on, so dispatch needs no locking.
type Bot struct {
	session  *auth.Client
	registry *channel.Registry
	sock     *socket.Client
	clock    clockwork.Clock
	userFeed bool

	streamer  *channel.Descriptor
	chat      *moderation.Chat
	moderator *moderation.Moderator

	messages map[string]Handler
	commands map[string]Handler
	timers   []timedEvent

	running atomic.Bool
}

// Option adjusts a Bot at construction time.
type Option func(*Bot)

// WithSocketURL overrides the realtime endpoint.
func WithSocketURL(u string) Option {
	return func(b *Bot) { b.sock.URL = u }
}

// WithIdlePing overrides how long the socket may sit idle before a keepalive
// ping goes out.
func WithIdlePing(d time.Duration) Option {
	return func(b *Bot) { b.sock.IdlePing = d }
}

// WithClock substitutes the clock driving timed events and the socket
// keepalive.
func WithClock(c clockwork.Clock) Option {
	return func(b *Bot) {
		b.clock = c
		b.sock.Clock = c
	}
}

// WithUserFeed additionally subscribes the private per-account feed channel
// during Poll.
func WithUserFeed() Option {
	return func(b *Bot) { b.userFeed = true }
}

// New builds a bot over a logged-in credential session.
func New(session *auth.Client, opts ...Option) *Bot {
	base := session.BaseURL
	if base == "" {
		base = auth.DefaultBaseURL
	}
	b := &Bot{
		session:  session,
		registry: &channel.Registry{Session: session, BaseURL: base},
		sock:     &socket.Client{},
		clock:    clockwork.NewRealClock(),
		messages: make(map[string]Handler),
		commands: make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SetStreamer resolves the channel to monitor and binds the chat sender and,
// when the account holds moderator status there, the moderation facade. A bot
// monitors exactly one streamer for its lifetime; a second call is a
// configuration error.
func (b *Bot) SetStreamer(ctx context.Context, name string) error {
	if b.running.Load() {
		return &ConfigError{Kind: KindRunning}
	}
	if b.streamer != nil {
		return &ConfigError{Kind: KindStreamerSet, Key: name}
	}
	d, err := b.registry.Resolve(ctx, name)
	if err != nil {
		return fmt.Errorf("resolve streamer %q: %w", name, err)
	}
	b.streamer = d
	b.chat = &moderation.Chat{Session: b.session, BaseURL: b.registry.BaseURL, ChatroomID: d.ChatroomID}
	if d.IsModerator || d.IsSuperAdmin {
		b.moderator = &moderation.Moderator{Session: b.session, BaseURL: b.registry.BaseURL, Slug: d.Slug}
	} else {
		slog.Warn("bot account is not a moderator, moderation calls will be refused",
			slog.String("streamer", d.Slug))
	}
	slog.Info("streamer set",
		slog.String("streamer", d.Slug),
		slog.Int("chatroom_id", d.ChatroomID),
		slog.Bool("moderator", b.moderator != nil))
	return nil
}

// AddMessageHandler registers a handler for messages whose entire content
// matches text, compared case-insensitively.
func (b *Bot) AddMessageHandler(text string, h Handler) error {
	return b.register(b.messages, text, h)
}

// AddCommandHandler registers a handler for messages whose first word matches
// command, compared case-insensitively. Exact-content handlers win over
// command handlers when both match.
func (b *Bot) AddCommandHandler(command string, h Handler) error {
	return b.register(b.commands, command, h)
}

func (b *Bot) register(m map[string]Handler, key string, h Handler) error {
	if b.running.Load() {
		return &ConfigError{Kind: KindRunning, Key: key}
	}
	if b.streamer == nil {
		return &ConfigError{Kind: KindStreamerNotSet, Key: key}
	}
	folded := strings.ToLower(key)
	if folded == "" {
		return &ConfigError{Kind: KindEmptyKey}
	}
	if _, dup := m[folded]; dup {
		return &ConfigError{Kind: KindDuplicateKey, Key: folded}
	}
	m[folded] = h
	return nil
}

// AddTimedEvent schedules fn to run every interval while the bot polls. The
// first run happens one full interval after Poll starts, not immediately.
func (b *Bot) AddTimedEvent(interval time.Duration, fn TimedHandler) error {
	if b.running.Load() {
		return &ConfigError{Kind: KindRunning}
	}
	if b.streamer == nil {
		return &ConfigError{Kind: KindStreamerNotSet}
	}
	if interval <= 0 {
		return &ConfigError{Kind: KindInvalidInterval, Key: interval.String()}
	}
	b.timers = append(b.timers, timedEvent{interval: interval, fn: fn})
	return nil
}

// Poll connects the realtime socket, joins the streamer's chatroom, and runs
// the dispatch loop plus all timed events until ctx is cancelled, the server
// closes the connection, or a handler fails. Cancellation and server close
// are clean nil returns.
func (b *Bot) Poll(ctx context.Context) error {
	if b.streamer == nil {
		return &ConfigError{Kind: KindStreamerNotSet}
	}
	if !b.running.CompareAndSwap(false, true) {
		return &ConfigError{Kind: KindRunning}
	}
	defer b.running.Store(false)

	ctx, span := telemetry.StartSpan(ctx, "bot", "poll session",
		attribute.String("streamer", b.streamer.Slug),
		attribute.Int("chatroom_id", b.streamer.ChatroomID))
	defer span.End()
	if err := b.poll(ctx); err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	telemetry.SetSpanSuccess(span)
	return nil
}

func (b *Bot) poll(ctx context.Context) error {
	if err := b.sock.Connect(ctx); err != nil {
		return err
	}
	if err := b.sock.Join(b.streamer.ChatroomID); err != nil {
		_ = b.sock.Close()
		return err
	}
	if b.userFeed {
		if err := b.joinUserFeed(ctx); err != nil {
			_ = b.sock.Close()
			return err
		}
	}
	telemetry.UpdateConnectedGauge(true)
	defer telemetry.UpdateConnectedGauge(false)

	g, gctx := errgroup.WithContext(ctx)
	loopCtx, cancel := context.WithCancel(gctx)
	g.Go(func() error {
		// A clean disconnect must also stop the timed events.
		defer cancel()
		return b.sock.Listen(loopCtx, func(f socket.Frame) error {
			return b.handleFrame(loopCtx, f)
		})
	})
	for _, ev := range b.timers {
		ev := ev
		g.Go(func() error { return b.runTimedEvent(loopCtx, ev) })
	}
	return g.Wait()
}

func (b *Bot) joinUserFeed(ctx context.Context) error {
	name := fmt.Sprintf("private-userfeed.%d", b.session.UserID())
	token, err := b.session.SocketAuthToken(ctx, b.sock.SocketID(), name)
	if err != nil {
		return err
	}
	return b.sock.SubscribePrivate(name, token)
}

func (b *Bot) handleFrame(ctx context.Context, f socket.Frame) error {
	if f.Event != socket.EventChatMessage {
		return nil
	}
	msg, err := f.ChatMessage()
	if err != nil {
		slog.Debug("dropping undecodable chat message", slog.Any("err", err))
		return nil
	}
	return b.dispatch(ctx, msg)
}

// dispatch routes one chat message: a handler registered for the exact
// content wins, otherwise the first word is tried as a command, otherwise the
// message is dropped. At most one handler runs per message.
func (b *Bot) dispatch(ctx context.Context, msg *socket.ChatMessage) error {
	telemetry.CountMessageReceived()
	h, kind := b.lookup(msg)
	if h == nil {
		return nil
	}
	telemetry.CountMessageHandled(kind)
	var err error
	telemetry.TimeFunc(telemetry.HandlerDuration, func() {
		err = h(ctx, b, msg)
	})
	if err != nil {
		telemetry.CountHandlerFailure()
		return fmt.Errorf("%s handler for %q: %w", kind, msg.Content, err)
	}
	return nil
}

func (b *Bot) lookup(msg *socket.ChatMessage) (Handler, string) {
	if h, ok := b.messages[strings.ToLower(msg.Content)]; ok {
		return h, "message"
	}
	if cmd := msg.Command(); cmd != "" {
		if h, ok := b.commands[cmd]; ok {
			return h, "command"
		}
	}
	return nil, ""
}

// SendText posts a message into the streamer's chatroom.
func (b *Bot) SendText(ctx context.Context, message string) error {
	if strings.TrimSpace(message) == "" {
		return &ConfigError{Kind: KindInvalidMessage, Key: message}
	}
	if b.chat == nil {
		return &ConfigError{Kind: KindStreamerNotSet}
	}
	if err := b.chat.SendMessage(ctx, message); err != nil {
		return err
	}
	telemetry.CountChatSend()
	return nil
}

// ReplyText posts a threaded reply to an earlier chat message.
func (b *Bot) ReplyText(ctx context.Context, original *socket.ChatMessage, reply string) error {
	if strings.TrimSpace(reply) == "" {
		return &ConfigError{Kind: KindInvalidMessage, Key: reply}
	}
	if b.chat == nil {
		return &ConfigError{Kind: KindStreamerNotSet}
	}
	if err := b.chat.SendReply(ctx, original, reply); err != nil {
		return err
	}
	telemetry.CountChatSend()
	return nil
}

// TimeoutUser bans a user for the given number of minutes. Best effort: a
// failure, including missing moderator status, is logged and reported false.
func (b *Bot) TimeoutUser(ctx context.Context, username string, minutes int) bool {
	if b.moderator == nil {
		slog.Warn("timeout refused, bot is not a moderator", slog.String("username", username))
		return false
	}
	ok := b.moderator.TimeoutUser(ctx, username, minutes)
	if ok {
		telemetry.CountModerationAction("timeout")
	}
	return ok
}

// Permaban permanently bans a user. Best effort like TimeoutUser.
func (b *Bot) Permaban(ctx context.Context, username string) bool {
	if b.moderator == nil {
		slog.Warn("permaban refused, bot is not a moderator", slog.String("username", username))
		return false
	}
	ok := b.moderator.Permaban(ctx, username)
	if ok {
		telemetry.CountModerationAction("permaban")
	}
	return ok
}

// ViewerInfo looks up a viewer's channel record. Nil when the bot is not a
// moderator or the lookup fails.
func (b *Bot) ViewerInfo(ctx context.Context, username string) *moderation.ViewerInfo {
	if b.moderator == nil {
		return nil
	}
	return b.moderator.ViewerInfo(ctx, username)
}

// ViewerCount fetches the streamer's current viewer count and records it on
// the viewer-count gauge.
func (b *Bot) ViewerCount(ctx context.Context) (int, error) {
	if b.streamer == nil {
		return 0, &ConfigError{Kind: KindStreamerNotSet}
	}
	n, err := b.registry.ViewerCount(ctx, b.streamer)
	if err != nil {
		return 0, err
	}
	telemetry.SetViewerCount(n)
	return n, nil
}

// Streamer returns the resolved channel descriptor, nil before SetStreamer.
func (b *Bot) Streamer() *channel.Descriptor { return b.streamer }

// Status is a point-in-time snapshot for the debug server.
type Status struct {
	Streamer    string `json:"streamer"`
	ChatroomID  int    `json:"chatroom_id"`
	SocketState string `json:"socket_state"`
	Running     bool   `json:"running"`
	Moderator   bool   `json:"moderator"`
	Handlers    int    `json:"handlers"`
	TimedEvents int    `json:"timed_events"`
}

// Status reports the bot's current shape and connection state.
func (b *Bot) Status() Status {
	s := Status{
		SocketState: b.sock.State().String(),
		Running:     b.running.Load(),
		Moderator:   b.moderator != nil,
		Handlers:    len(b.messages) + len(b.commands),
		TimedEvents: len(b.timers),
	}
	if b.streamer != nil {
		s.Streamer = b.streamer.Slug
		s.ChatroomID = b.streamer.ChatroomID
	}
	return s
}
