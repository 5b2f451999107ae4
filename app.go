package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"lumen/internal/bootstrap"
	"lumen/internal/domain"
	"lumen/internal/usecase"
)

const (
	eventSession = "lumen:session"
	eventHistory = "lumen:history"
	eventError   = "lumen:error"

	shutdownTimeout = 5 * time.Second
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	services   bootstrap.Services
	controller *usecase.SessionController
	bootErr    error
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.services = services
	a.controller = services.Controller
	a.SessionChanged(a.controller.Status(), domain.ReasonReady)
	a.controller.RefreshHistory()
}

func (a *App) shutdown(_ context.Context) {
	if a.controller == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.services.Close(ctx); err != nil {
		a.services.Logger.Warn().Err(err).Msg("shutdown incomplete")
	}
}

// PrimaryAction captures a scene or, with an image held, starts recording a question.
func (a *App) PrimaryAction() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.controller.PrimaryAction(a.ctx); err != nil {
		return a.controller.Status(), err
	}
	return a.controller.Status(), nil
}

// StopRecording ends the current recording early and sends it.
func (a *App) StopRecording() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.controller.StopRecording(); err != nil {
		if errors.Is(err, usecase.ErrNoActiveRecording) {
			return nil
		}
		return err
	}
	return nil
}

// AskText asks a typed question about the held image.
func (a *App) AskText(question string) (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.controller.AskText(a.ctx, question); err != nil {
		return a.controller.Status(), err
	}
	return a.controller.Status(), nil
}

// NewImage discards the current scene and anything in flight.
func (a *App) NewImage() domain.Status {
	if a.controller == nil {
		return a.GetStatus()
	}
	a.controller.NewImage()
	return a.controller.Status()
}

// GetStatus returns the current session status.
func (a *App) GetStatus() domain.Status {
	if a.controller == nil {
		status := domain.Status{Session: domain.Session{Step: domain.StepIdle}}
		if a.bootErr != nil {
			status.ErrorMessage = a.bootErr.Error()
		}
		return status
	}
	return a.controller.Status()
}

// GetHistory returns the cached interaction history.
func (a *App) GetHistory() []domain.HistoryEntry {
	if a.controller == nil {
		return []domain.HistoryEntry{}
	}
	return a.controller.History()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	cfg := a.services.Config
	return map[string]string{
		"apiBase":          cfg.Remote.BaseURL,
		"recordLimit":      cfg.Audio.RecordLimit.String(),
		"lexiconFile":      cfg.Lexicon.Path,
		"audioInput":       cfg.Audio.InputDevice,
		"audioInputFormat": cfg.Audio.InputFormat,
		"diagnostics":      a.services.DiagAddr,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// SessionChanged emits session updates to the frontend.
func (a *App) SessionChanged(status domain.Status, reason domain.StepReason) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventSession, map[string]any{
		"status":  status,
		"reason":  string(reason),
		"message": stepReasonMessage(reason),
	})
}

// HistoryChanged emits the refreshed history.
func (a *App) HistoryChanged(entries []domain.HistoryEntry) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventHistory, entries)
}

// SessionError emits recovered failures to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func stepReasonMessage(reason domain.StepReason) string {
	switch reason {
	case domain.ReasonReady:
		return "Ready to capture"
	case domain.ReasonCapturing:
		return "Capturing image..."
	case domain.ReasonSceneDescribed:
		return "Ask a question about the image"
	case domain.ReasonCaptureFailed:
		return "Capture failed"
	case domain.ReasonRecordingStarted:
		return "Listening..."
	case domain.ReasonMicUnavailable:
		return "Microphone unavailable"
	case domain.ReasonUploading:
		return "Thinking..."
	case domain.ReasonAnswered:
		return "Answered"
	case domain.ReasonQuestionFailed:
		return "Question failed"
	case domain.ReasonNewImage:
		return "Ready for a new image"
	case domain.ReasonRecordingCancelled:
		return "Recording cancelled"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeRemote, domain.ErrorCodeMicrophone:
		if detail != "" {
			return detail
		}
		return domain.MessageRemoteFailure
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
