package diag

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lumen/internal/domain"
	"lumen/internal/metrics"
)

type staticSource struct {
	status  domain.Status
	history []domain.HistoryEntry
}

func (s staticSource) Status() domain.Status          { return s.status }
func (s staticSource) History() []domain.HistoryEntry { return s.history }

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.Transition(string(domain.StepCapturing), string(domain.ReasonCapturing))

	source := staticSource{
		status: domain.Status{Session: domain.Session{
			Step:          domain.StepWaitingForQuestion,
			ImageCaptured: true,
			Description:   "A red mug on a desk",
			ImageData:     []byte{1},
		}},
		history: []domain.HistoryEntry{{Description: "A red mug on a desk", Answer: "ceramic"}},
	}
	return NewRouter(source, reg, zerolog.Nop())
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	rec := get(t, newTestRouter(t), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()

	rec := get(t, newTestRouter(t), "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got domain.Status
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, domain.StepWaitingForQuestion, got.Step)
	assert.Equal(t, "A red mug on a desk", got.Description)
	assert.True(t, got.ImageCaptured)
}

func TestHistoryEndpoint(t *testing.T) {
	t.Parallel()

	rec := get(t, newTestRouter(t), "/api/history")
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		History []domain.HistoryEntry `json:"history"`
	}
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.History, 1)
	assert.Equal(t, "ceramic", got.History[0].Answer)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	rec := get(t, newTestRouter(t), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "lumen_session_transitions_total")
}

func TestServerStartAndShutdown(t *testing.T) {
	t.Parallel()

	srv := NewServer("127.0.0.1:0", staticSource{}, prometheus.NewRegistry(), zerolog.Nop())
	addr, err := srv.Start()
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
}
