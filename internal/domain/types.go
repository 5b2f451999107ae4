package domain

// Step models the phase of the interaction session.
type Step string

const (
	StepIdle               Step = "idle"
	StepCapturing          Step = "capturing"
	StepWaitingForQuestion Step = "waiting_for_question"
	StepRecording          Step = "recording"
	StepUploading          Step = "uploading"
)

// StepReason provides a structured reason for step transitions.
type StepReason string

const (
	ReasonReady              StepReason = "ready"
	ReasonCapturing          StepReason = "capturing"
	ReasonSceneDescribed     StepReason = "scene_described"
	ReasonCaptureFailed      StepReason = "capture_failed"
	ReasonRecordingStarted   StepReason = "recording_started"
	ReasonMicUnavailable     StepReason = "mic_unavailable"
	ReasonUploading          StepReason = "uploading"
	ReasonAnswered           StepReason = "answered"
	ReasonQuestionFailed     StepReason = "question_failed"
	ReasonNewImage           StepReason = "new_image"
	ReasonRecordingCancelled StepReason = "recording_cancelled"
)

// ErrorCode identifies recovered failures surfaced to the UI.
type ErrorCode string

const (
	ErrorCodeStartup    ErrorCode = "startup"
	ErrorCodeRemote     ErrorCode = "remote"
	ErrorCodeMicrophone ErrorCode = "microphone"
)

// Fixed user-facing messages. The underlying cause is only logged.
const (
	MessageRemoteFailure  = "Sorry, something went wrong."
	MessageMicUnavailable = "Microphone access denied or not available."
)

// Session is the single live capture/question/answer interaction.
type Session struct {
	Step          Step   `json:"step"`
	ImageCaptured bool   `json:"imageCaptured"`
	Description   string `json:"description"`
	ImageData     []byte `json:"imageData,omitempty"`
	Answer        string `json:"answer"`
	ErrorMessage  string `json:"errorMessage"`
}

// Status is the UI-relevant snapshot of the session. Seq grows with every
// state change, so a snapshot with a lower Seq than one already shown is stale.
type Status struct {
	Session
	Busy bool   `json:"busy"`
	Seq  uint64 `json:"seq"`
}

// Scene is the result of a remote capture-and-describe call.
type Scene struct {
	Description string
	Image       []byte
}

// HistoryEntry is one past interaction record as returned by the remote service.
type HistoryEntry struct {
	Description string `json:"description"`
	Question    string `json:"question"`
	Answer      string `json:"answer"`
	ImageData   []byte `json:"imageData,omitempty"`
}

// AudioContentType is the container format of every recorded question.
const AudioContentType = "audio/wav"

// AudioPayload is the assembled audio of one recording session.
type AudioPayload struct {
	ContentType string
	Data        []byte
}

// StopCause records which exit path ended a recording.
type StopCause string

const (
	StopCauseExplicit StopCause = "explicit"
	StopCauseDeadline StopCause = "deadline"
	StopCauseDisposed StopCause = "disposed"
	StopCauseSource   StopCause = "source_closed"
)
