package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the client-side instrumentation. A nil *Metrics is valid and records nothing.
type Metrics struct {
	RemoteRequests *prometheus.CounterVec
	RemoteDuration *prometheus.HistogramVec

	Recordings      *prometheus.CounterVec
	RecordingBytes  prometheus.Histogram
	ActiveRecording prometheus.Gauge

	Transitions        *prometheus.CounterVec
	HistoryEntries     prometheus.Gauge
	BestEffortFailures *prometheus.CounterVec
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RemoteRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lumen_remote_requests_total",
			Help: "Remote service calls by operation and outcome",
		}, []string{"operation", "outcome"}),
		RemoteDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lumen_remote_request_duration_seconds",
			Help:    "Remote service call latency",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"operation"}),
		Recordings: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lumen_recordings_total",
			Help: "Finished recording sessions by stop cause",
		}, []string{"cause"}),
		RecordingBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "lumen_recording_bytes",
			Help:    "Size of assembled question audio",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		}),
		ActiveRecording: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lumen_recording_active",
			Help: "1 while the microphone is held",
		}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lumen_session_transitions_total",
			Help: "Session step transitions by target step and reason",
		}, []string{"step", "reason"}),
		HistoryEntries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lumen_history_entries",
			Help: "Entries in the cached history",
		}),
		BestEffortFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lumen_best_effort_failures_total",
			Help: "Swallowed failures of history refresh and speech playback",
		}, []string{"task"}),
	}
}

func (m *Metrics) ObserveRemote(operation string, started time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.RemoteRequests.WithLabelValues(operation, outcome).Inc()
	m.RemoteDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

func (m *Metrics) RecordingStarted() {
	if m == nil {
		return
	}
	m.ActiveRecording.Set(1)
}

func (m *Metrics) RecordingFinished(cause string, bytes int) {
	if m == nil {
		return
	}
	m.ActiveRecording.Set(0)
	m.Recordings.WithLabelValues(cause).Inc()
	m.RecordingBytes.Observe(float64(bytes))
}

func (m *Metrics) Transition(step string, reason string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(step, reason).Inc()
}

func (m *Metrics) HistorySize(n int) {
	if m == nil {
		return
	}
	m.HistoryEntries.Set(float64(n))
}

func (m *Metrics) BestEffortFailed(task string) {
	if m == nil {
		return
	}
	m.BestEffortFailures.WithLabelValues(task).Inc()
}
