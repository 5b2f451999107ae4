package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveRemoteCountsOutcomes(t *testing.T) {
	t.Parallel()

	m := New(prometheus.NewRegistry())
	m.ObserveRemote("capture", time.Now(), nil)
	m.ObserveRemote("capture", time.Now(), errors.New("boom"))
	m.ObserveRemote("capture", time.Now(), nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RemoteRequests.WithLabelValues("capture", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RemoteRequests.WithLabelValues("capture", "error")))
}

func TestRecordingGaugeTracksLifecycle(t *testing.T) {
	t.Parallel()

	m := New(prometheus.NewRegistry())
	m.RecordingStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveRecording))

	m.RecordingFinished("deadline", 2048)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveRecording))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Recordings.WithLabelValues("deadline")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRemote("history", time.Now(), nil)
		m.RecordingStarted()
		m.RecordingFinished("explicit", 0)
		m.Transition("idle", "ready")
		m.HistorySize(3)
		m.BestEffortFailed("speak")
	})
}
