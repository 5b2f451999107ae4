package domain

import "errors"

var (
	// ErrMicrophoneUnavailable reports that the microphone could not be acquired.
	ErrMicrophoneUnavailable = errors.New("microphone unavailable")
	// ErrConcurrentRecordingNotAllowed reports an attempt to start a second recording.
	ErrConcurrentRecordingNotAllowed = errors.New("concurrent recording not allowed")
	// ErrRemoteUnavailable wraps every failure of a remote service call.
	ErrRemoteUnavailable = errors.New("remote service unavailable")
)
