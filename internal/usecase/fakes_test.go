package usecase

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"lumen/internal/domain"
	"lumen/internal/history"
	"lumen/internal/ports"
)

type fakeMic struct {
	mu       sync.Mutex
	sessions []*fakeAudioSession
	err      error
	calls    int
	gate     chan struct{}
}

func (f *fakeMic) Start(ctx context.Context, _ ports.AudioConfig) (ports.AudioSession, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.calls >= len(f.sessions) {
		return nil, errors.New("no audio session configured")
	}
	session := f.sessions[f.calls]
	f.calls++
	return session, nil
}

func (f *fakeMic) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeAudioSession yields its chunks, then blocks like a live device until stopped.
type fakeAudioSession struct {
	chunks  chan []byte
	stopped chan struct{}

	mu        sync.Mutex
	stopCalls int
	stopOnce  sync.Once
}

func newFakeAudioSession(chunks ...string) *fakeAudioSession {
	s := &fakeAudioSession{chunks: make(chan []byte, len(chunks)+8), stopped: make(chan struct{})}
	for _, c := range chunks {
		s.chunks <- []byte(c)
	}
	return s
}

func (s *fakeAudioSession) Read(p []byte) (int, error) {
	select {
	case chunk := <-s.chunks:
		return copy(p, chunk), nil
	default:
	}
	select {
	case chunk := <-s.chunks:
		return copy(p, chunk), nil
	case <-s.stopped:
		return 0, io.EOF
	}
}

func (s *fakeAudioSession) Close() error { return s.Stop() }

func (s *fakeAudioSession) Stop() error {
	s.mu.Lock()
	s.stopCalls++
	s.mu.Unlock()
	s.stopOnce.Do(func() { close(s.stopped) })
	return nil
}

func (s *fakeAudioSession) stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCalls
}

// rawEncoder keeps the PCM as-is so tests can inspect fragment order.
type rawEncoder struct{}

func (rawEncoder) Encode(pcm []byte) domain.AudioPayload {
	return domain.AudioPayload{ContentType: domain.AudioContentType, Data: pcm}
}

type fakeRemote struct {
	mu sync.Mutex

	scene       domain.Scene
	captureErr  error
	captureGate chan struct{}

	answer     string
	answerErr  error
	answerGate chan struct{}
	audio      []domain.AudioPayload
	questions  []string

	history      []domain.HistoryEntry
	historyErr   error
	historyCalls int

	speakErr      error
	speakDelay    time.Duration
	spoken        []string
	speakOutcomes []string
}

func (f *fakeRemote) CaptureScene(ctx context.Context) (domain.Scene, error) {
	if f.captureGate != nil {
		select {
		case <-f.captureGate:
		case <-ctx.Done():
			return domain.Scene{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scene, f.captureErr
}

func (f *fakeRemote) AnswerAudioQuestion(ctx context.Context, audio domain.AudioPayload) (string, error) {
	f.mu.Lock()
	f.audio = append(f.audio, audio)
	gate := f.answerGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.answer, f.answerErr
}

func (f *fakeRemote) AnswerTextQuestion(_ context.Context, question string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.questions = append(f.questions, question)
	return f.answer, f.answerErr
}

func (f *fakeRemote) FetchHistory(_ context.Context) ([]domain.HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyCalls++
	return f.history, f.historyErr
}

func (f *fakeRemote) Speak(ctx context.Context, text string) error {
	f.mu.Lock()
	f.spoken = append(f.spoken, text)
	delay := f.speakDelay
	f.mu.Unlock()

	outcome := "complete"
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			outcome = "cut"
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.speakOutcomes = append(f.speakOutcomes, text+":"+outcome)
	return f.speakErr
}

func (f *fakeRemote) uploads() []domain.AudioPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.AudioPayload(nil), f.audio...)
}

func (f *fakeRemote) spokenTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.spoken...)
}

func (f *fakeRemote) outcomes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.speakOutcomes...)
}

func (f *fakeRemote) historyCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.historyCalls
}

type upperRewriter struct{}

func (upperRewriter) Apply(text string) (string, error) {
	out := []byte(text)
	for i, b := range out {
		if b >= 'a' && b <= 'z' {
			out[i] = b - 32
		}
	}
	return string(out), nil
}

type fakeEventSink struct {
	mu sync.Mutex

	states    []stateEvent
	histories [][]domain.HistoryEntry
	errors    []errEvent
}

type stateEvent struct {
	status domain.Status
	reason domain.StepReason
}

type errEvent struct {
	code    domain.ErrorCode
	message string
}

func (f *fakeEventSink) SessionChanged(status domain.Status, reason domain.StepReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, stateEvent{status: status, reason: reason})
}

func (f *fakeEventSink) HistoryChanged(entries []domain.HistoryEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.histories = append(f.histories, entries)
}

func (f *fakeEventSink) SessionError(code domain.ErrorCode, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errEvent{code: code, message: message})
}

func (f *fakeEventSink) snapshotStates() []stateEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]stateEvent, len(f.states))
	copy(out, f.states)
	return out
}

func (f *fakeEventSink) snapshotErrors() []errEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]errEvent, len(f.errors))
	copy(out, f.errors)
	return out
}

func (f *fakeEventSink) historyEvents() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.histories)
}

type controllerHarness struct {
	controller *SessionController
	remote     *fakeRemote
	mic        *fakeMic
	events     *fakeEventSink
	capture    *CaptureManager
}

func newHarness(t *testing.T, remote *fakeRemote, mic *fakeMic, limit time.Duration) *controllerHarness {
	t.Helper()
	events := &fakeEventSink{}
	capture := NewCaptureManager(mic, rawEncoder{}, CaptureConfig{Limit: limit}, zerolog.Nop(), nil)
	cache := history.NewCache(remote, zerolog.Nop(), nil)
	controller := NewSessionController(remote, capture, cache, nil, events, zerolog.Nop(), nil, Config{RemoteTimeout: time.Second})
	t.Cleanup(func() { _ = controller.Close() })
	return &controllerHarness{controller: controller, remote: remote, mic: mic, events: events, capture: capture}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func assertInvariants(t *testing.T, status domain.Status) {
	t.Helper()
	if status.ImageCaptured != (len(status.ImageData) > 0) {
		t.Fatalf("imageData/imageCaptured out of sync: captured=%v bytes=%d", status.ImageCaptured, len(status.ImageData))
	}
	if !status.Busy && status.Answer != "" && status.ErrorMessage != "" {
		t.Fatalf("answer and error both set: %+v", status)
	}
}
