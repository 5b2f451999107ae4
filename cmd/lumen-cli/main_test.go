package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/fatih/color"

	"lumen/internal/domain"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func TestParseLine(t *testing.T) {
	t.Parallel()

	cases := []struct {
		line string
		act  action
		arg  string
	}{
		{"", actionPrimary, ""},
		{"  c ", actionPrimary, ""},
		{"s", actionStop, ""},
		{"N", actionNewImage, ""},
		{"h", actionHistory, ""},
		{"quit", actionQuit, ""},
		{"ask What colour is it?", actionAsk, "What colour is it?"},
		{"dance", actionUnknown, "dance"},
	}
	for _, tc := range cases {
		act, arg := parseLine(tc.line)
		if act != tc.act || arg != tc.arg {
			t.Fatalf("parseLine(%q) = %v %q, want %v %q", tc.line, act, arg, tc.act, tc.arg)
		}
	}
}

func TestConsoleSinkPrintsOutcome(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	sink := newConsoleSink(&out)
	sink.SessionChanged(domain.Status{Session: domain.Session{
		Step:        domain.StepWaitingForQuestion,
		Description: "A red mug on a desk",
	}}, domain.ReasonSceneDescribed)
	sink.SessionChanged(domain.Status{Session: domain.Session{
		Step:   domain.StepWaitingForQuestion,
		Answer: "It is a ceramic mug",
	}}, domain.ReasonAnswered)
	sink.SessionError(domain.ErrorCodeMicrophone, domain.MessageMicUnavailable)
	sink.HistoryChanged(make([]domain.HistoryEntry, 2))

	got := out.String()
	for _, want := range []string{
		"[waiting_for_question] scene_described",
		"A red mug on a desk",
		"It is a ceramic mug",
		"error (microphone): " + domain.MessageMicUnavailable,
		"history: 2 entries",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
}

func TestPrintHistory(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	printHistory(&out, nil)
	if !strings.Contains(out.String(), "no history yet") {
		t.Fatalf("unexpected empty output: %q", out.String())
	}

	out.Reset()
	printHistory(&out, []domain.HistoryEntry{
		{Description: "A red mug", Question: "What is it?", Answer: "A mug"},
		{Description: "A window"},
	})
	got := out.String()
	if !strings.Contains(got, "1. A red mug") || !strings.Contains(got, "Q: What is it?") || !strings.Contains(got, "2. A window") {
		t.Fatalf("unexpected history output:\n%s", got)
	}
}

func TestHistoryCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/history" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, `{"history":[{"description":"A red mug","question":"What is it?","answer":"A mug"}]}`)
	}))
	defer srv.Close()

	t.Setenv("HOME", t.TempDir())
	t.Setenv("LUMEN_CONFIG_FILE", "")
	t.Setenv("LUMEN_API_BASE", srv.URL)

	var out bytes.Buffer
	historyCmd.SetOut(&out)
	historyCmd.SetErr(io.Discard)
	rootCmd.SetArgs([]string{"history"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if !strings.Contains(out.String(), "A: A mug") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
}
