package ports

import (
	"context"
	"io"

	"lumen/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live microphone capture producing raw PCM.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture acquires the microphone.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// AudioPlayer plays an encoded audio clip to completion.
type AudioPlayer interface {
	Play(ctx context.Context, audio []byte) error
}

// RemoteService is the scene-description, question-answering, history and speech backend.
// Every method is a single request/response without local retry; failures wrap
// domain.ErrRemoteUnavailable.
type RemoteService interface {
	CaptureScene(ctx context.Context) (domain.Scene, error)
	AnswerAudioQuestion(ctx context.Context, audio domain.AudioPayload) (string, error)
	AnswerTextQuestion(ctx context.Context, question string) (string, error)
	FetchHistory(ctx context.Context) ([]domain.HistoryEntry, error)
	// Speak bounds only the synthesis request by the service timeout;
	// playback of the returned clip runs until it ends or ctx is done.
	Speak(ctx context.Context, text string) error
}

// HistoryFetcher is the subset of RemoteService used by the history cache.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context) ([]domain.HistoryEntry, error)
}

// TextRewriter rewrites text before it is synthesized.
type TextRewriter interface {
	Apply(text string) (string, error)
}

// EventSink emits session state to the presentation layer.
type EventSink interface {
	SessionChanged(status domain.Status, reason domain.StepReason)
	HistoryChanged(entries []domain.HistoryEntry)
	SessionError(code domain.ErrorCode, message string)
}

// AudioEncoder wraps raw PCM into the container uploaded to the remote service.
type AudioEncoder interface {
	Encode(pcm []byte) domain.AudioPayload
}
