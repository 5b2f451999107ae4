package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"strings"
	"time"

	"lumen/internal/domain"
	"lumen/internal/ports"
)

const (
	defaultSampleRate = 16000
	defaultChannels   = 1

	startupGrace  = 250 * time.Millisecond
	interruptWait = 1200 * time.Millisecond
)

// Microphone captures raw s16le PCM from the system microphone through ffmpeg.
type Microphone struct {
	command string
}

// DeviceError reports that the recorder could not open the configured input.
// It matches domain.ErrMicrophoneUnavailable under errors.Is.
type DeviceError struct {
	Format string
	Device string
	// Output is the recorder's diagnostic output, if it printed any.
	Output string
	Err    error
}

func (e *DeviceError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "open %s input %q", e.Format, e.Device)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.Output != "" {
		b.WriteString(": ")
		b.WriteString(e.Output)
	}
	return b.String()
}

func (e *DeviceError) Unwrap() []error {
	if e.Err == nil {
		return []error{domain.ErrMicrophoneUnavailable}
	}
	return []error{domain.ErrMicrophoneUnavailable, e.Err}
}

func NewMicrophone(command string) *Microphone {
	if command == "" {
		command = "ffmpeg"
	}
	return &Microphone{command: command}
}

// Start spawns the recorder and waits briefly to make sure the device opened.
// Failing to launch the recorder or open the input yields a *DeviceError.
func (m *Microphone) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	cfg = withAudioDefaults(cfg)

	cmd := exec.CommandContext(ctx, m.command, captureArgs(cfg)...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	deviceErr := func(err error) *DeviceError {
		return &DeviceError{Format: cfg.InputFormat, Device: cfg.InputDevice, Output: trimOutput(stderr), Err: err}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, deviceErr(fmt.Errorf("recorder stdout pipe: %w", err))
	}
	if err := cmd.Start(); err != nil {
		return nil, deviceErr(fmt.Errorf("start recorder: %w", err))
	}

	exited := make(chan error, 1)
	go func() {
		exited <- cmd.Wait()
		close(exited)
	}()

	probe := time.NewTimer(startupGrace)
	defer probe.Stop()
	select {
	case err := <-exited:
		if err == nil {
			err = errors.New("recorder exited before capture started")
		} else {
			err = fmt.Errorf("recorder exited before capture started: %w", err)
		}
		return nil, deviceErr(err)
	case <-probe.C:
	}

	return &micSession{pcm: stdout, stderr: stderr, process: cmd.Process, exited: exited}, nil
}

func withAudioDefaults(cfg ports.AudioConfig) ports.AudioConfig {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = defaultSampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = defaultChannels
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}
	return cfg
}

func captureArgs(cfg ports.AudioConfig) []string {
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	}
}

type micSession struct {
	pcm    io.ReadCloser
	stderr *bytes.Buffer

	process *os.Process
	exited  <-chan error

	once    sync.Once
	stopErr error
}

func (s *micSession) Read(p []byte) (int, error) {
	return s.pcm.Read(p)
}

func (s *micSession) Close() error {
	return s.Stop()
}

// Stop interrupts the recorder, escalating to kill if it does not exit in time.
// Only the first call does any work.
func (s *micSession) Stop() error {
	s.once.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		grace := time.NewTimer(interruptWait)
		defer grace.Stop()
		select {
		case err, ok := <-s.exited:
			if ok {
				s.stopErr = ignoreExitStatus(err)
			}
		case <-grace.C:
			if s.process != nil {
				_ = s.process.Kill()
			}
			if err, ok := <-s.exited; ok {
				s.stopErr = ignoreExitStatus(err)
			}
		}

		if err := s.pcm.Close(); err != nil && !errors.Is(err, os.ErrClosed) && s.stopErr == nil {
			s.stopErr = err
		}
		if s.stopErr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, trimOutput(s.stderr))
		}
	})
	return s.stopErr
}

// ignoreExitStatus drops the non-zero exit an interrupted recorder reports.
func ignoreExitStatus(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func trimOutput(buf *bytes.Buffer) string {
	if buf == nil {
		return ""
	}
	return string(bytes.TrimSpace(buf.Bytes()))
}
