// Package telemetry provides Prometheus metrics, OTLP tracing setup, and
// correlation-id aware logging helpers.
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
	UploadsStarted   prometheus.Counter
	UploadsSucceeded prometheus.Counter
	UploadsFailed    prometheus.Counter
	RelaysSent       prometheus.Counter
	RelaysFailed     prometheus.Counter
	RequestsRejected prometheus.Counter

	// Histograms (seconds / bytes)
	UploadDuration prometheus.Observer
	StagedBytes    prometheus.Observer

	// Gauges
	PendingGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		UploadsStarted = promauto.NewCounter(prometheus.CounterOpts{Name: "clipcast_uploads_started_total", Help: "Number of media uploads started"})
		UploadsSucceeded = promauto.NewCounter(prometheus.CounterOpts{Name: "clipcast_uploads_succeeded_total", Help: "Number of media uploads succeeded"})
		UploadsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "clipcast_uploads_failed_total", Help: "Number of media uploads failed"})
		RelaysSent = promauto.NewCounter(prometheus.CounterOpts{Name: "clipcast_relays_sent_total", Help: "Number of chat relay messages delivered"})
		RelaysFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "clipcast_relays_failed_total", Help: "Number of chat relay messages that failed"})
		RequestsRejected = promauto.NewCounter(prometheus.CounterOpts{Name: "clipcast_requests_rejected_total", Help: "Number of requests rejected before any external call"})
		UploadDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "clipcast_upload_duration_seconds", Help: "Media upload duration seconds", Buckets: prometheus.DefBuckets})
		StagedBytes = promauto.NewHistogram(prometheus.HistogramOpts{Name: "clipcast_staged_bytes", Help: "Size of staged temp files in bytes", Buckets: prometheus.ExponentialBuckets(1<<20, 4, 8)})
		PendingGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "clipcast_pending_uploads", Help: "Current number of chat users awaiting a video attachment"})
	})
}

// SetPendingDepth records the current pending-upload count.
func SetPendingDepth(n int) {
	if PendingGauge != nil {
		PendingGauge.Set(float64(n))
	}
}

// Inc increments a counter if registered.
func Inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
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
