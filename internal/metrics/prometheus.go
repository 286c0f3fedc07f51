package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the dictation pipeline.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	// Capture metrics
	CapturesStarted  prometheus.Counter
	CaptureFailures  *prometheus.CounterVec
	CaptureActive    prometheus.Gauge
	ClipDuration     prometheus.Histogram
	ClipSize         prometheus.Histogram
	SilenceCancelled prometheus.Counter

	// Transcription metrics
	TranscriptionRequests  *prometheus.CounterVec
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  *prometheus.CounterVec
	TranscriptionDuration  prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Capture metrics
		CapturesStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "stt_captures_started_total",
			Help: "Total number of capture sessions started",
		}),
		CaptureFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stt_capture_failures_total",
			Help: "Total number of capture failures by stage",
		}, []string{"stage"}),
		CaptureActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "stt_capture_active",
			Help: "Whether a capture session is currently running",
		}),
		ClipDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "stt_clip_duration_seconds",
			Help:    "Duration of captured clips",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4 minutes
		}),
		ClipSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "stt_clip_size_bytes",
			Help:    "Size of captured clips in bytes",
			Buckets: prometheus.ExponentialBuckets(16*1024, 2, 12), // 16KB to ~32MB
		}),
		SilenceCancelled: factory.NewCounter(prometheus.CounterOpts{
			Name: "stt_silence_cancellations_total",
			Help: "Total number of captures stopped by silence detection",
		}),

		// Transcription metrics
		TranscriptionRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stt_transcription_requests_total",
			Help: "Total number of transcription requests sent",
		}, []string{"mode", "model"}),
		TranscriptionSuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "stt_transcription_successes_total",
			Help: "Total number of successful transcription requests",
		}),
		TranscriptionFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stt_transcription_failures_total",
			Help: "Total number of failed transcription requests by kind",
		}, []string{"kind"}),
		TranscriptionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "stt_transcription_duration_seconds",
			Help:    "Duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stt_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stt_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stt_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordCaptureStarted counts a started session and marks capture active
func (m *Metrics) RecordCaptureStarted() {
	if m == nil {
		return
	}
	m.CapturesStarted.Inc()
	m.CaptureActive.Set(1)
}

// RecordCaptureStopped marks capture inactive
func (m *Metrics) RecordCaptureStopped() {
	if m == nil {
		return
	}
	m.CaptureActive.Set(0)
}

// RecordCaptureFailure counts a failure at the given stage (start, read, stop)
func (m *Metrics) RecordCaptureFailure(stage string) {
	if m == nil {
		return
	}
	m.CaptureFailures.WithLabelValues(stage).Inc()
}

// RecordClip records a finalized clip
func (m *Metrics) RecordClip(duration time.Duration, sizeBytes int) {
	if m == nil {
		return
	}
	m.ClipDuration.Observe(duration.Seconds())
	m.ClipSize.Observe(float64(sizeBytes))
}

// RecordSilenceCancel counts a capture stopped by silence
func (m *Metrics) RecordSilenceCancel() {
	if m == nil {
		return
	}
	m.SilenceCancelled.Inc()
}

// RecordTranscription records one transcription attempt. An empty kind means success.
func (m *Metrics) RecordTranscription(mode, model string, duration time.Duration, kind string) {
	if m == nil {
		return
	}
	m.TranscriptionRequests.WithLabelValues(mode, model).Inc()
	m.TranscriptionDuration.Observe(duration.Seconds())
	if kind == "" {
		m.TranscriptionSuccesses.Inc()
		return
	}
	m.TranscriptionFailures.WithLabelValues(kind).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
