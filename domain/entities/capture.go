package entities

// CaptureState is the state of a speech capture flow
type CaptureState string

const (
	CaptureStateIdle         CaptureState = "idle"
	CaptureStateRecording    CaptureState = "recording"
	CaptureStateStopping     CaptureState = "stopping"
	CaptureStateTranscribing CaptureState = "transcribing"
)

// TranscriptionFailure classifies why a transcription produced no text
type TranscriptionFailure string

const (
	TranscriptionFailureNone        TranscriptionFailure = ""
	TranscriptionFailureEmptyResult TranscriptionFailure = "empty_result"
	TranscriptionFailureUnsupported TranscriptionFailure = "unsupported"
	TranscriptionFailureAuth        TranscriptionFailure = "auth"
	TranscriptionFailureRateLimit   TranscriptionFailure = "rate_limit"
	TranscriptionFailureCorrupt     TranscriptionFailure = "corrupt"
	TranscriptionFailureUnknown     TranscriptionFailure = "unknown"
)

// Transcription is the outcome of a capture. When Failure is set, Text holds a
// user-facing placeholder instead of recognized speech.
type Transcription struct {
	Text    string               `json:"text"`
	Failure TranscriptionFailure `json:"failure,omitempty"`
}

// Succeeded reports whether Text is recognized speech
func (t Transcription) Succeeded() bool {
	return t.Failure == TranscriptionFailureNone
}
