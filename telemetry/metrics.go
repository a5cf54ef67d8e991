// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	MessagesReceived  prometheus.Counter
	MessagesHandled   *prometheus.CounterVec // label: kind (message|command)
	HandlerFailures   prometheus.Counter
	TimedEventFires   prometheus.Counter
	ModerationActions *prometheus.CounterVec // label: action (timeout|permaban)
	ChatSends         prometheus.Counter

	// Histograms (seconds)
	HandlerDuration prometheus.Observer

	// Gauges
	ConnectedGauge   prometheus.Gauge // 1=socket active,0=disconnected
	ViewerCountGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		MessagesReceived = promauto.NewCounter(prometheus.CounterOpts{Name: "kickbot_messages_received_total", Help: "Number of chat messages received"})
		MessagesHandled = promauto.NewCounterVec(prometheus.CounterOpts{Name: "kickbot_messages_handled_total", Help: "Number of chat messages dispatched to a handler"}, []string{"kind"})
		HandlerFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "kickbot_handler_failures_total", Help: "Number of handler invocations that returned an error"})
		TimedEventFires = promauto.NewCounter(prometheus.CounterOpts{Name: "kickbot_timed_event_fires_total", Help: "Number of timed event invocations"})
		ModerationActions = promauto.NewCounterVec(prometheus.CounterOpts{Name: "kickbot_moderation_actions_total", Help: "Number of moderation actions issued"}, []string{"action"})
		ChatSends = promauto.NewCounter(prometheus.CounterOpts{Name: "kickbot_chat_sends_total", Help: "Number of outbound chat messages and replies"})
		HandlerDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "kickbot_handler_duration_seconds", Help: "Handler invocation duration seconds", Buckets: prometheus.DefBuckets})
		ConnectedGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "kickbot_socket_connected", Help: "Realtime socket connected=1 disconnected=0"})
		ViewerCountGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "kickbot_viewer_count", Help: "Last observed channel viewer count"})
	})
}

// CountMessageReceived records one inbound chat message.
func CountMessageReceived() {
	if MessagesReceived != nil {
		MessagesReceived.Inc()
	}
}

// CountMessageHandled records a dispatched message by handler kind.
func CountMessageHandled(kind string) {
	if MessagesHandled != nil {
		MessagesHandled.WithLabelValues(kind).Inc()
	}
}

// CountHandlerFailure records a handler invocation that returned an error.
func CountHandlerFailure() {
	if HandlerFailures != nil {
		HandlerFailures.Inc()
	}
}

// CountTimedEventFire records one timed event invocation.
func CountTimedEventFire() {
	if TimedEventFires != nil {
		TimedEventFires.Inc()
	}
}

// CountModerationAction records one moderation action by type.
func CountModerationAction(action string) {
	if ModerationActions != nil {
		ModerationActions.WithLabelValues(action).Inc()
	}
}

// CountChatSend records one outbound chat message or reply.
func CountChatSend() {
	if ChatSends != nil {
		ChatSends.Inc()
	}
}

// UpdateConnectedGauge sets gauge to 1 if connected else 0.
func UpdateConnectedGauge(connected bool) {
	if ConnectedGauge != nil {
		if connected {
			ConnectedGauge.Set(1)
		} else {
			ConnectedGauge.Set(0)
		}
	}
}

// SetViewerCount records the last observed viewer count.
func SetViewerCount(n int) {
	if ViewerCountGauge != nil {
		ViewerCountGauge.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
