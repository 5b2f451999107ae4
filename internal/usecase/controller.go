package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lumen/internal/domain"
	"lumen/internal/history"
	"lumen/internal/metrics"
	"lumen/internal/ports"
)

var (
	ErrBusy              = errors.New("an interaction is already in progress")
	ErrNoActiveRecording = errors.New("no active recording")
	ErrNoImage           = errors.New("no image has been captured")
)

const defaultRemoteTimeout = 30 * time.Second

// Config controls session behavior.
type Config struct {
	// RemoteTimeout bounds every remote call except speech, whose synthesis
	// request the remote bounds itself. Expiry counts as a remote failure.
	RemoteTimeout time.Duration
}

// SessionController drives the capture / ask / answer cycle. At most one
// transition runs at a time: while busy, new primary actions are rejected.
//
// NewImage cancels whatever is in flight and bumps the epoch. A continuation
// that finds a different epoch than the one it started under drops its result.
type SessionController struct {
	remote   ports.RemoteService
	capture  *CaptureManager
	history  *history.Cache
	rewriter ports.TextRewriter
	events   ports.EventSink
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	cfg      Config

	baseCtx  context.Context
	shutdown context.CancelFunc
	tasks    sync.WaitGroup

	speechMu     sync.Mutex
	speechQueue  []string
	speechClosed bool
	speechWake   chan struct{}

	mu        sync.Mutex
	session   domain.Session
	loading   bool
	recording *Recording
	epoch     uint64
	seq       uint64
	cancel    context.CancelFunc
}

func NewSessionController(
	remote ports.RemoteService,
	capture *CaptureManager,
	cache *history.Cache,
	rewriter ports.TextRewriter,
	events ports.EventSink,
	logger zerolog.Logger,
	m *metrics.Metrics,
	cfg Config,
) *SessionController {
	if cfg.RemoteTimeout <= 0 {
		cfg.RemoteTimeout = defaultRemoteTimeout
	}
	baseCtx, shutdown := context.WithCancel(context.Background())
	c := &SessionController{
		remote:   remote,
		capture:  capture,
		history:  cache,
		rewriter: rewriter,
		events:   events,
		logger:   logger.With().Str("component", "session").Logger(),
		metrics:  m,
		cfg:      cfg,
		baseCtx:  baseCtx,
		shutdown: shutdown,
		session:  domain.Session{Step: domain.StepIdle},

		speechWake: make(chan struct{}, 1),
	}
	go c.speechLoop()
	return c
}

// PrimaryAction captures and describes the scene when no image is held,
// otherwise it starts recording a spoken question about the held image.
// ctx bounds the capture call only. Remote and microphone failures are
// recovered into the session's error message; the returned error only
// reports a rejected action.
func (c *SessionController) PrimaryAction(ctx context.Context) error {
	c.mu.Lock()
	if c.busyLocked() {
		c.mu.Unlock()
		return ErrBusy
	}
	c.session.ErrorMessage = ""
	c.session.Answer = ""
	if !c.session.ImageCaptured {
		return c.captureScene(ctx)
	}
	return c.startQuestion()
}

// captureScene is entered with c.mu held.
func (c *SessionController) captureScene(ctx context.Context) error {
	cycle, epoch := c.beginCycleLocked(ctx)
	c.loading = true
	c.transitionLocked(domain.StepCapturing, domain.ReasonCapturing)
	c.mu.Unlock()

	log := c.logger.With().Str("interaction_id", uuid.NewString()).Logger()

	rctx, rcancel := context.WithTimeout(cycle, c.cfg.RemoteTimeout)
	scene, err := c.remote.CaptureScene(rctx)
	rcancel()
	if err == nil && len(scene.Image) == 0 {
		err = errors.New("capture response carried no image")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.endCycleLocked(epoch) {
		log.Debug().Msg("capture result discarded after reset")
		return nil
	}
	c.loading = false

	if err != nil {
		log.Error().Err(err).Msg("scene capture failed")
		c.failLocked(domain.StepIdle, domain.ReasonCaptureFailed, domain.ErrorCodeRemote, domain.MessageRemoteFailure)
		return nil
	}

	c.session.ImageCaptured = true
	c.session.ImageData = append([]byte(nil), scene.Image...)
	c.session.Description = scene.Description
	c.transitionLocked(domain.StepWaitingForQuestion, domain.ReasonSceneDescribed)
	log.Info().Int("image_bytes", len(scene.Image)).Msg("scene described")

	c.speak(scene.Description)
	c.refreshHistory()
	return nil
}

// startQuestion is entered with c.mu held. The recording and its upload are
// tied to the controller's lifetime rather than the caller's context.
func (c *SessionController) startQuestion() error {
	cycle, epoch := c.beginCycleLocked(c.baseCtx)
	c.loading = true
	c.transitionLocked(domain.StepRecording, domain.ReasonRecordingStarted)
	c.mu.Unlock()

	log := c.logger.With().Str("interaction_id", uuid.NewString()).Logger()

	rec, err := c.capture.Start(cycle)

	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch {
		if rec != nil {
			rec.finish(domain.StopCauseDisposed)
		}
		log.Debug().Msg("recording start discarded after reset")
		return nil
	}
	c.loading = false

	switch {
	case errors.Is(err, domain.ErrConcurrentRecordingNotAllowed):
		c.endCycleLocked(epoch)
		log.Error().Err(err).Msg("recording already in progress")
		c.transitionLocked(domain.StepWaitingForQuestion, domain.ReasonRecordingCancelled)
		return err
	case err != nil:
		c.endCycleLocked(epoch)
		log.Warn().Err(err).Msg("microphone unavailable")
		c.failLocked(domain.StepWaitingForQuestion, domain.ReasonMicUnavailable, domain.ErrorCodeMicrophone, domain.MessageMicUnavailable)
		return nil
	}

	c.recording = rec
	log.Info().Str("recording_id", rec.ID()).Time("deadline", rec.Deadline()).Msg("recording question")

	c.tasks.Add(1)
	go func() {
		defer c.tasks.Done()
		c.uploadWhenStopped(cycle, epoch, rec, log)
	}()
	return nil
}

func (c *SessionController) uploadWhenStopped(cycle context.Context, epoch uint64, rec *Recording, log zerolog.Logger) {
	<-rec.Done()
	payload := rec.Stop()

	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		log.Debug().Msg("recording discarded after reset")
		return
	}
	c.recording = nil
	c.loading = true
	c.transitionLocked(domain.StepUploading, domain.ReasonUploading)
	c.mu.Unlock()

	log.Info().Str("cause", string(rec.Cause())).Int("audio_bytes", len(payload.Data)).Msg("uploading question")

	rctx, rcancel := context.WithTimeout(cycle, c.cfg.RemoteTimeout)
	answer, err := c.remote.AnswerAudioQuestion(rctx, payload)
	rcancel()

	c.settleAnswer(epoch, answer, err, log)
}

// AskText asks a typed question about the held image.
func (c *SessionController) AskText(ctx context.Context, question string) error {
	c.mu.Lock()
	if c.busyLocked() {
		c.mu.Unlock()
		return ErrBusy
	}
	if !c.session.ImageCaptured {
		c.mu.Unlock()
		return ErrNoImage
	}
	c.session.ErrorMessage = ""
	c.session.Answer = ""
	cycle, epoch := c.beginCycleLocked(ctx)
	c.loading = true
	c.transitionLocked(domain.StepUploading, domain.ReasonUploading)
	c.mu.Unlock()

	log := c.logger.With().Str("interaction_id", uuid.NewString()).Logger()

	rctx, rcancel := context.WithTimeout(cycle, c.cfg.RemoteTimeout)
	answer, err := c.remote.AnswerTextQuestion(rctx, question)
	rcancel()

	c.settleAnswer(epoch, answer, err, log)
	return nil
}

func (c *SessionController) settleAnswer(epoch uint64, answer string, err error, log zerolog.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.endCycleLocked(epoch) {
		log.Debug().Msg("answer discarded after reset")
		return
	}
	c.loading = false

	if err != nil {
		log.Error().Err(err).Msg("question failed")
		c.failLocked(domain.StepWaitingForQuestion, domain.ReasonQuestionFailed, domain.ErrorCodeRemote, domain.MessageRemoteFailure)
		return
	}

	c.session.Answer = answer
	c.transitionLocked(domain.StepWaitingForQuestion, domain.ReasonAnswered)
	log.Info().Int("answer_chars", len(answer)).Msg("question answered")

	c.speak(answer)
	c.refreshHistory()
}

// StopRecording ends the live recording early; the upload follows as if the limit had elapsed.
func (c *SessionController) StopRecording() error {
	c.mu.Lock()
	rec := c.recording
	c.mu.Unlock()
	if rec == nil {
		return ErrNoActiveRecording
	}
	rec.Stop()
	return nil
}

// NewImage drops the held image and any in-flight work and returns to idle.
func (c *SessionController) NewImage() {
	c.mu.Lock()
	c.epoch++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	rec := c.recording
	c.recording = nil
	c.loading = false
	c.session = domain.Session{}
	c.transitionLocked(domain.StepIdle, domain.ReasonNewImage)
	c.mu.Unlock()

	if rec != nil {
		rec.finish(domain.StopCauseDisposed)
	}
}

// Status returns a snapshot of the session for presentation.
func (c *SessionController) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// History returns the cached interaction history.
func (c *SessionController) History() []domain.HistoryEntry {
	return c.history.Entries()
}

// RefreshHistory schedules a best-effort history refresh.
func (c *SessionController) RefreshHistory() {
	c.refreshHistory()
}

// Wait blocks until background work (uploads, speech, history refresh) has finished.
func (c *SessionController) Wait() {
	c.tasks.Wait()
}

// Close cancels in-flight work, releases the microphone and waits for background tasks.
func (c *SessionController) Close() error {
	c.NewImage()
	c.shutdown()
	err := c.capture.Close()
	c.tasks.Wait()
	return err
}

func (c *SessionController) busyLocked() bool {
	return c.loading || c.recording != nil
}

func (c *SessionController) beginCycleLocked(parent context.Context) (context.Context, uint64) {
	cycle, cancel := context.WithCancel(parent)
	c.cancel = cancel
	return cycle, c.epoch
}

// endCycleLocked reports whether the cycle started under epoch is still current.
func (c *SessionController) endCycleLocked(epoch uint64) bool {
	if epoch != c.epoch {
		return false
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	return true
}

func (c *SessionController) failLocked(step domain.Step, reason domain.StepReason, code domain.ErrorCode, message string) {
	c.session.Answer = ""
	c.session.ErrorMessage = message
	c.transitionLocked(step, reason)
	c.events.SessionError(code, message)
	c.speak(message)
}

func (c *SessionController) transitionLocked(step domain.Step, reason domain.StepReason) {
	c.session.Step = step
	c.seq++
	c.metrics.Transition(string(step), string(reason))
	c.events.SessionChanged(c.statusLocked(), reason)
}

func (c *SessionController) statusLocked() domain.Status {
	snapshot := c.session
	if snapshot.ImageData != nil {
		snapshot.ImageData = append([]byte(nil), snapshot.ImageData...)
	}
	return domain.Status{Session: snapshot, Busy: c.busyLocked(), Seq: c.seq}
}

// speak queues text for playback. Utterances play one at a time in the order
// they were queued; failures are only logged.
func (c *SessionController) speak(text string) {
	if text == "" {
		return
	}
	c.speechMu.Lock()
	defer c.speechMu.Unlock()
	if c.speechClosed {
		return
	}
	c.tasks.Add(1)
	c.speechQueue = append(c.speechQueue, text)
	select {
	case c.speechWake <- struct{}{}:
	default:
	}
}

// speechLoop is the single consumer of the speech queue. It runs until Close.
func (c *SessionController) speechLoop() {
	for {
		select {
		case <-c.baseCtx.Done():
			c.speechMu.Lock()
			c.speechClosed = true
			dropped := len(c.speechQueue)
			c.speechQueue = nil
			c.speechMu.Unlock()
			for i := 0; i < dropped; i++ {
				c.tasks.Done()
			}
			return
		case <-c.speechWake:
		}
		for {
			text, ok := c.nextUtterance()
			if !ok {
				break
			}
			c.say(text)
			c.tasks.Done()
		}
	}
}

func (c *SessionController) nextUtterance() (string, bool) {
	c.speechMu.Lock()
	defer c.speechMu.Unlock()
	if len(c.speechQueue) == 0 || c.baseCtx.Err() != nil {
		return "", false
	}
	text := c.speechQueue[0]
	c.speechQueue = c.speechQueue[1:]
	return text, true
}

// say speaks one utterance. The remote bounds its own synthesis request, so
// playback is only cut short by Close.
func (c *SessionController) say(text string) {
	spoken := text
	if c.rewriter != nil {
		rewritten, err := c.rewriter.Apply(text)
		if err != nil {
			c.logger.Warn().Err(err).Msg("pronunciation rewrite failed; speaking original text")
		} else {
			spoken = rewritten
		}
	}
	if err := c.remote.Speak(c.baseCtx, spoken); err != nil {
		c.metrics.BestEffortFailed("speak")
		c.logger.Warn().Err(err).Str("task", "speak").Msg("best-effort task failed")
	}
}

func (c *SessionController) refreshHistory() {
	c.detach("history", func(ctx context.Context) error {
		if err := c.history.Refresh(ctx); err != nil {
			return err
		}
		c.events.HistoryChanged(c.history.Entries())
		return nil
	})
}

// detach runs fn on its own goroutine with a bounded context. Errors are
// observed and logged but never reach the session.
func (c *SessionController) detach(task string, fn func(ctx context.Context) error) {
	c.tasks.Add(1)
	go func() {
		defer c.tasks.Done()
		ctx, cancel := context.WithTimeout(c.baseCtx, c.cfg.RemoteTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			c.metrics.BestEffortFailed(task)
			c.logger.Warn().Err(err).Str("task", task).Msg("best-effort task failed")
		}
	}()
}
