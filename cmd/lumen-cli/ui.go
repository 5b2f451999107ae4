package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"lumen/internal/domain"
)

var (
	stepColor    = color.New(color.FgCyan)
	answerColor  = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	historyColor = color.New(color.FgYellow)
	dimColor     = color.New(color.Faint)
)

// consoleSink prints session events as lines on a terminal.
type consoleSink struct {
	mu  sync.Mutex
	out io.Writer
}

func newConsoleSink(out io.Writer) *consoleSink {
	return &consoleSink{out: out}
}

func (s *consoleSink) SessionChanged(status domain.Status, reason domain.StepReason) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stepColor.Fprintf(s.out, "[%s] %s\n", status.Step, reason)
	switch reason {
	case domain.ReasonSceneDescribed:
		fmt.Fprintf(s.out, "%s\n", status.Description)
	case domain.ReasonAnswered:
		answerColor.Fprintf(s.out, "%s\n", status.Answer)
	case domain.ReasonRecordingStarted:
		dimColor.Fprintln(s.out, "listening... press s to send early")
	}
}

func (s *consoleSink) HistoryChanged(entries []domain.HistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dimColor.Fprintf(s.out, "history: %d entries\n", len(entries))
}

func (s *consoleSink) SessionError(code domain.ErrorCode, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	errorColor.Fprintf(s.out, "error (%s): %s\n", code, message)
}

func printHistory(out io.Writer, entries []domain.HistoryEntry) {
	if len(entries) == 0 {
		dimColor.Fprintln(out, "no history yet")
		return
	}
	for i, e := range entries {
		historyColor.Fprintf(out, "%d. %s\n", i+1, e.Description)
		if e.Question != "" {
			fmt.Fprintf(out, "   Q: %s\n", e.Question)
		}
		if e.Answer != "" {
			fmt.Fprintf(out, "   A: %s\n", e.Answer)
		}
	}
}
