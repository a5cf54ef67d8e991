// Command kickbot is the main entrypoint for the chat bot.
// It:
//   - Loads configuration and initializes structured logging.
//   - Logs the bot account in through the anti-bot protected form flow.
//   - Resolves the configured streamer and joins their chatroom.
//   - Registers the built-in handlers and timed events.
//   - Exposes a minimal HTTP server with /healthz, /readyz, /status, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sub20hz/kickbot/auth"
	"github.com/sub20hz/kickbot/bot"
	"github.com/sub20hz/kickbot/config"
	"github.com/sub20hz/kickbot/server"
	"github.com/sub20hz/kickbot/socket"
	"github.com/sub20hz/kickbot/telemetry"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateBotReady(); err != nil {
		slog.Error("config incomplete", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("kickbot", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Login
	session := auth.NewClient(cfg.KickEmail, cfg.KickPassword)
	loginCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = session.Login(loginCtx)
	cancel()
	if err != nil {
		slog.Error("login failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Bot setup
	opts := []bot.Option{}
	if cfg.KickWSURL != "" {
		opts = append(opts, bot.WithSocketURL(cfg.KickWSURL))
	}
	if cfg.IdlePingInterval > 0 {
		opts = append(opts, bot.WithIdlePing(cfg.IdlePingInterval))
	}
	if cfg.UserFeed {
		opts = append(opts, bot.WithUserFeed())
	}
	b := bot.New(session, opts...)
	if err := b.SetStreamer(ctx, cfg.KickStreamer); err != nil {
		slog.Error("streamer setup failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := registerHandlers(b); err != nil {
		slog.Error("handler registration failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	// HTTP server (health/status/metrics)
	addr := cfg.DebugAddr
	if addr == "" {
		addr = ":8080"
	}
	go func() {
		h := &server.Handlers{Session: session, Bot: b}
		if err := server.Start(ctx, h, addr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Poll until shutdown signal or fatal handler error
	if err := b.Poll(ctx); err != nil {
		slog.Error("bot stopped", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("shutting down")
}

// registerHandlers wires the built-in commands and timed events.
func registerHandlers(b *bot.Bot) error {
	if err := b.AddCommandHandler("!viewers", func(ctx context.Context, b *bot.Bot, msg *socket.ChatMessage) error {
		n, err := b.ViewerCount(ctx)
		if err != nil {
			slog.Warn("viewer count lookup failed", slog.Any("err", err))
			return nil
		}
		return b.ReplyText(ctx, msg, fmt.Sprintf("%d viewers watching", n))
	}); err != nil {
		return err
	}
	if err := b.AddCommandHandler("!following", func(ctx context.Context, b *bot.Bot, msg *socket.ChatMessage) error {
		info := b.ViewerInfo(ctx, msg.Sender.Username)
		if info == nil || info.FollowingSince == "" {
			return b.ReplyText(ctx, msg, "no follow on record")
		}
		return b.ReplyText(ctx, msg, "following since "+info.FollowingSince)
	}); err != nil {
		return err
	}
	if err := b.AddMessageHandler("hello bot", func(ctx context.Context, b *bot.Bot, msg *socket.ChatMessage) error {
		return b.ReplyText(ctx, msg, "hello "+msg.Sender.Username)
	}); err != nil {
		return err
	}
	// Refresh the viewer-count gauge while polling.
	return b.AddTimedEvent(time.Minute, func(ctx context.Context, b *bot.Bot) error {
		if _, err := b.ViewerCount(ctx); err != nil {
			slog.Debug("viewer count refresh failed", slog.Any("err", err))
		}
		return nil
	})
}
