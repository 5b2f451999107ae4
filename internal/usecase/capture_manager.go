package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lumen/internal/domain"
	"lumen/internal/metrics"
	"lumen/internal/ports"
)

// DefaultRecordingLimit is the hard cap on one question recording.
const DefaultRecordingLimit = 6 * time.Second

const defaultChunkSize = 4096

// CaptureConfig controls microphone capture.
type CaptureConfig struct {
	Audio     ports.AudioConfig
	ChunkSize int
	Limit     time.Duration
}

// CaptureManager owns the microphone and allows at most one Recording at a time.
type CaptureManager struct {
	mic     ports.AudioCapture
	encoder ports.AudioEncoder
	cfg     CaptureConfig
	logger  zerolog.Logger
	metrics *metrics.Metrics

	mu        sync.Mutex
	acquiring bool
	active    *Recording
}

func NewCaptureManager(
	mic ports.AudioCapture,
	encoder ports.AudioEncoder,
	cfg CaptureConfig,
	logger zerolog.Logger,
	m *metrics.Metrics,
) *CaptureManager {
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultRecordingLimit
	}
	return &CaptureManager{
		mic:     mic,
		encoder: encoder,
		cfg:     cfg,
		logger:  logger.With().Str("component", "capture-manager").Logger(),
		metrics: m,
	}
}

// Limit returns the configured recording cap.
func (m *CaptureManager) Limit() time.Duration {
	return m.cfg.Limit
}

// Start acquires the microphone and begins collecting fragments. The recording
// force-stops once the limit elapses. A second Start while one is live fails
// with domain.ErrConcurrentRecordingNotAllowed and leaves the live one alone.
func (m *CaptureManager) Start(ctx context.Context) (*Recording, error) {
	m.mu.Lock()
	if m.active != nil || m.acquiring {
		m.mu.Unlock()
		return nil, domain.ErrConcurrentRecordingNotAllowed
	}
	m.acquiring = true
	m.mu.Unlock()

	session, err := m.mic.Start(ctx, m.cfg.Audio)
	if err != nil {
		m.mu.Lock()
		m.acquiring = false
		m.mu.Unlock()
		if !errors.Is(err, domain.ErrMicrophoneUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrMicrophoneUnavailable, err)
		}
		return nil, err
	}

	now := time.Now()
	rec := &Recording{
		id:        uuid.NewString(),
		source:    session,
		encoder:   m.encoder,
		owner:     m,
		startedAt: now,
		deadline:  now.Add(m.cfg.Limit),
		timer:     time.NewTimer(m.cfg.Limit),
		pumpDone:  make(chan struct{}),
		done:      make(chan struct{}),
	}

	m.mu.Lock()
	m.acquiring = false
	m.active = rec
	m.mu.Unlock()

	m.metrics.RecordingStarted()
	m.logger.Debug().Str("recording_id", rec.id).Dur("limit", m.cfg.Limit).Msg("microphone acquired")

	go rec.pump(m.cfg.ChunkSize)
	go rec.watch()

	return rec, nil
}

// Active returns the live recording, if any.
func (m *CaptureManager) Active() *Recording {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Close releases the microphone held by a live recording.
func (m *CaptureManager) Close() error {
	if rec := m.Active(); rec != nil {
		rec.finish(domain.StopCauseDisposed)
	}
	return nil
}

func (m *CaptureManager) release(rec *Recording) {
	m.mu.Lock()
	if m.active == rec {
		m.active = nil
	}
	m.mu.Unlock()
}

// Recording is one bounded microphone capture.
type Recording struct {
	id      string
	source  ports.AudioSession
	encoder ports.AudioEncoder
	owner   *CaptureManager
	timer   *time.Timer

	startedAt time.Time
	deadline  time.Time

	mu     sync.Mutex
	chunks [][]byte

	pumpDone chan struct{}
	done     chan struct{}

	once       sync.Once
	cause      domain.StopCause
	payload    domain.AudioPayload
	releaseErr error
}

func (r *Recording) ID() string          { return r.id }
func (r *Recording) Deadline() time.Time { return r.deadline }

// Done is closed once the recording has stopped and its payload is assembled.
func (r *Recording) Done() <-chan struct{} { return r.done }

// Stop ends the recording and returns the assembled payload. It is idempotent:
// later calls return the same payload without touching the microphone again.
func (r *Recording) Stop() domain.AudioPayload {
	r.finish(domain.StopCauseExplicit)
	return r.payload
}

// Cause reports which exit path stopped the recording; empty while live.
func (r *Recording) Cause() domain.StopCause {
	select {
	case <-r.done:
		return r.cause
	default:
		return ""
	}
}

// Chunks returns a copy of the fragments collected so far, in arrival order.
func (r *Recording) Chunks() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]byte, len(r.chunks))
	copy(out, r.chunks)
	return out
}

// ReleaseErr reports a failure to release the microphone cleanly.
func (r *Recording) ReleaseErr() error {
	<-r.done
	return r.releaseErr
}

func (r *Recording) pump(chunkSize int) {
	defer close(r.pumpDone)

	buf := make([]byte, chunkSize)
	for {
		n, err := r.source.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			r.mu.Lock()
			r.chunks = append(r.chunks, chunk)
			r.mu.Unlock()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) && !errors.Is(err, os.ErrClosed) {
				r.owner.logger.Warn().Err(err).Str("recording_id", r.id).Msg("microphone read failed")
			}
			return
		}
	}
}

// watch turns the deadline or the end of the microphone stream into a stop.
func (r *Recording) watch() {
	select {
	case <-r.timer.C:
		r.finish(domain.StopCauseDeadline)
	case <-r.pumpDone:
		r.finish(domain.StopCauseSource)
	case <-r.done:
	}
}

// finish runs the stop path exactly once, whichever trigger arrives first.
// Concurrent callers block until the payload is ready.
func (r *Recording) finish(cause domain.StopCause) {
	r.once.Do(func() {
		r.cause = cause
		r.timer.Stop()

		r.releaseErr = r.source.Stop()
		<-r.pumpDone

		r.mu.Lock()
		size := 0
		for _, c := range r.chunks {
			size += len(c)
		}
		pcm := make([]byte, 0, size)
		for _, c := range r.chunks {
			pcm = append(pcm, c...)
		}
		r.mu.Unlock()
		r.payload = r.encoder.Encode(pcm)

		r.owner.release(r)
		r.owner.metrics.RecordingFinished(string(cause), len(r.payload.Data))

		event := r.owner.logger.Debug()
		if r.releaseErr != nil {
			event = r.owner.logger.Warn().Err(r.releaseErr)
		}
		event.Str("recording_id", r.id).
			Str("cause", string(cause)).
			Int("fragments", len(r.chunks)).
			Dur("elapsed", time.Since(r.startedAt)).
			Msg("microphone released")

		close(r.done)
	})
}
