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

	// Counters (labelled by event kind)
	EventsSubmitted *prometheus.CounterVec
	EventsApplied   *prometheus.CounterVec
	ApplyFailures   *prometheus.CounterVec
	TranslateErrors prometheus.Counter
	ListenerExits   *prometheus.CounterVec

	// Histograms (seconds)
	ApplyDuration *prometheus.HistogramVec

	// Gauges
	QueueDepthGauge     prometheus.Gauge
	ActiveListeners     prometheus.Gauge
	DBPoolAcquiredConns prometheus.Gauge
	DBPoolIdleConns     prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		EventsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{Name: "twirc_events_submitted_total", Help: "Events enqueued to the store actor"}, []string{"kind"})
		EventsApplied = promauto.NewCounterVec(prometheus.CounterOpts{Name: "twirc_events_applied_total", Help: "Events applied by the backend"}, []string{"kind"})
		ApplyFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "twirc_apply_failures_total", Help: "Backend apply failures"}, []string{"kind", "reason"})
		TranslateErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "twirc_translate_errors_total", Help: "Protocol messages dropped because an identifier failed to parse"})
		ListenerExits = promauto.NewCounterVec(prometheus.CounterOpts{Name: "twirc_listener_exits_total", Help: "Listener task exits"}, []string{"reason"})
		ApplyDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "twirc_apply_duration_seconds", Help: "Backend apply duration seconds", Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1}}, []string{"kind"})
		QueueDepthGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "twirc_queue_depth", Help: "Events waiting in the store actor queue"})
		ActiveListeners = promauto.NewGauge(prometheus.GaugeOpts{Name: "twirc_active_listeners", Help: "Listener tasks currently running"})
		DBPoolAcquiredConns = promauto.NewGauge(prometheus.GaugeOpts{Name: "twirc_db_pool_acquired_conns", Help: "Postgres pool connections in use"})
		DBPoolIdleConns = promauto.NewGauge(prometheus.GaugeOpts{Name: "twirc_db_pool_idle_conns", Help: "Postgres pool idle connections"})
	})
}

// SetQueueDepth records the current queue length.
func SetQueueDepth(n int) {
	if QueueDepthGauge != nil {
		QueueDepthGauge.Set(float64(n))
	}
}

// UpdateDatabasePoolMetrics publishes pool usage.
func UpdateDatabasePoolMetrics(acquired, idle int32) {
	if DBPoolAcquiredConns != nil {
		DBPoolAcquiredConns.Set(float64(acquired))
		DBPoolIdleConns.Set(float64(idle))
	}
}

// IncSubmitted counts one enqueued event.
func IncSubmitted(kind string) {
	if EventsSubmitted != nil {
		EventsSubmitted.WithLabelValues(kind).Inc()
	}
}

// IncApplied counts one applied event.
func IncApplied(kind string) {
	if EventsApplied != nil {
		EventsApplied.WithLabelValues(kind).Inc()
	}
}

// IncApplyFailure counts one failed apply.
func IncApplyFailure(kind, reason string) {
	if ApplyFailures != nil {
		ApplyFailures.WithLabelValues(kind, reason).Inc()
	}
}

// IncTranslateError counts one dropped protocol message.
func IncTranslateError() {
	if TranslateErrors != nil {
		TranslateErrors.Inc()
	}
}

// ListenerStarted and ListenerStopped track running listener tasks.
func ListenerStarted() {
	if ActiveListeners != nil {
		ActiveListeners.Inc()
	}
}

func ListenerStopped(reason string) {
	if ActiveListeners != nil {
		ActiveListeners.Dec()
		ListenerExits.WithLabelValues(reason).Inc()
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

// ApplyObserver returns the duration observer for kind, or nil before Init.
func ApplyObserver(kind string) prometheus.Observer {
	if ApplyDuration == nil {
		return nil
	}
	return ApplyDuration.WithLabelValues(kind)
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
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
