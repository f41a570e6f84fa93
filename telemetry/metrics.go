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
	MessagesProcessed *prometheus.CounterVec // by verdict
	JoinsProcessed    prometheus.Counter
	BansIssued        prometheus.Counter
	TimeoutsIssued    prometheus.Counter
	SpamURLsRecorded  prometheus.Counter
	ControlCommands   *prometheus.CounterVec // by result: applied|rejected|failed

	// Histograms (seconds)
	EventHandleDuration prometheus.Observer

	// Gauges
	ChannelsGauge prometheus.Gauge
	PeopleGauge   prometheus.Gauge
	SpambotsGauge prometheus.Gauge
	ConnectedGauge prometheus.Gauge // 1=connected to chat, 0=not
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		MessagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chat_messages_processed_total", Help: "Chat messages processed, labeled by verdict"}, []string{"verdict"})
		JoinsProcessed = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_joins_processed_total", Help: "Join events processed"})
		BansIssued = promauto.NewCounter(prometheus.CounterOpts{Name: "moderation_bans_issued_total", Help: "Permanent bans issued"})
		TimeoutsIssued = promauto.NewCounter(prometheus.CounterOpts{Name: "moderation_timeouts_issued_total", Help: "Timeouts issued"})
		SpamURLsRecorded = promauto.NewCounter(prometheus.CounterOpts{Name: "moderation_spam_urls_recorded_total", Help: "New spam URLs recorded"})
		ControlCommands = promauto.NewCounterVec(prometheus.CounterOpts{Name: "control_commands_total", Help: "Control-plane commands, labeled by result"}, []string{"result"})
		EventHandleDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "chat_event_handle_duration_seconds", Help: "Per-event handling duration seconds", Buckets: prometheus.DefBuckets})
		ChannelsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "moderation_channels", Help: "Moderated channels in cache"})
		PeopleGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "moderation_known_people", Help: "Known people in cache"})
		SpambotsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "moderation_known_spambots", Help: "Known spambots in cache"})
		ConnectedGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_connected", Help: "Chat connection up=1 down=0"})
	})
}

// IncMessagesProcessed counts one processed message with its verdict.
func IncMessagesProcessed(verdict string) {
	if MessagesProcessed != nil {
		MessagesProcessed.WithLabelValues(verdict).Inc()
	}
}

// IncJoinsProcessed counts one processed join event.
func IncJoinsProcessed() {
	if JoinsProcessed != nil {
		JoinsProcessed.Inc()
	}
}

// IncBansIssued counts one issued ban.
func IncBansIssued() {
	if BansIssued != nil {
		BansIssued.Inc()
	}
}

// IncTimeoutsIssued counts one issued timeout.
func IncTimeoutsIssued() {
	if TimeoutsIssued != nil {
		TimeoutsIssued.Inc()
	}
}

// IncSpamURLsRecorded counts one newly recorded spam URL.
func IncSpamURLsRecorded() {
	if SpamURLsRecorded != nil {
		SpamURLsRecorded.Inc()
	}
}

// IncControlCommand counts one control-plane command by result (applied, rejected, failed).
func IncControlCommand(result string) {
	if ControlCommands != nil {
		ControlCommands.WithLabelValues(result).Inc()
	}
}

// ObserveEventDuration records one event-handling duration.
func ObserveEventDuration(d time.Duration) {
	if EventHandleDuration != nil {
		EventHandleDuration.Observe(d.Seconds())
	}
}

// SetCacheSizes publishes current cache sizes.
func SetCacheSizes(channels, people, spambots int) {
	if ChannelsGauge != nil {
		ChannelsGauge.Set(float64(channels))
	}
	if PeopleGauge != nil {
		PeopleGauge.Set(float64(people))
	}
	if SpambotsGauge != nil {
		SpambotsGauge.Set(float64(spambots))
	}
}

// SetConnected publishes the chat connection state.
func SetConnected(up bool) {
	if ConnectedGauge != nil {
		if up {
			ConnectedGauge.Set(1)
		} else {
			ConnectedGauge.Set(0)
		}
	}
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with the corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
