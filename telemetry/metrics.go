// Package telemetry provides Prometheus metrics, OpenTelemetry tracing setup,
// and correlation-id aware logging helpers.
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
	RefreshCycles     prometheus.Counter
	RefreshFailures   prometheus.Counter
	StreamConnects    prometheus.Counter
	StreamReconnects  prometheus.Counter
	StreamEvents      prometheus.Counter
	NotificationsSent prometheus.Counter
	GamelinksSet      prometheus.Counter
	ResultsSet        prometheus.Counter

	// Reconciliation outcomes, labeled by decision.
	ReconcileOutcomes *prometheus.CounterVec

	// Histograms (seconds)
	RefreshDuration prometheus.Observer

	// Gauges
	StreamsLiveGauge    prometheus.Gauge
	TrackedPlayersGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		RefreshCycles = promauto.NewCounter(prometheus.CounterOpts{Name: "league_refresh_cycles_total", Help: "Number of league refresh cycles"})
		RefreshFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "league_refresh_failures_total", Help: "Number of failed spreadsheet refreshes"})
		StreamConnects = promauto.NewCounter(prometheus.CounterOpts{Name: "game_stream_connects_total", Help: "Number of game-stream subscriptions opened"})
		StreamReconnects = promauto.NewCounter(prometheus.CounterOpts{Name: "game_stream_reconnects_total", Help: "Number of game-stream reconnects after end or error"})
		StreamEvents = promauto.NewCounter(prometheus.CounterOpts{Name: "game_stream_events_total", Help: "Number of game events received"})
		NotificationsSent = promauto.NewCounter(prometheus.CounterOpts{Name: "notifications_sent_total", Help: "Number of chat notifications sent"})
		GamelinksSet = promauto.NewCounter(prometheus.CounterOpts{Name: "gamelinks_set_total", Help: "Number of gamelink updates committed"})
		ResultsSet = promauto.NewCounter(prometheus.CounterOpts{Name: "results_set_total", Help: "Number of result updates committed"})
		ReconcileOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{Name: "reconcile_outcomes_total", Help: "Reconciliation decisions per game event"}, []string{"outcome"})
		RefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "league_refresh_duration_seconds", Help: "League refresh duration seconds", Buckets: prometheus.DefBuckets})
		StreamsLiveGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "game_streams_live", Help: "Number of live game-stream connections"})
		TrackedPlayersGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "tracked_players", Help: "Total usernames the live feeds are filtered on"})
	})
}

// RecordOutcome counts one reconciliation decision (e.g. "ignored",
// "committed", "mismatch_warned").
func RecordOutcome(outcome string) {
	if ReconcileOutcomes != nil {
		ReconcileOutcomes.WithLabelValues(outcome).Inc()
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

// LoggerWithCorr returns a logger with a corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
