package usecase

import (
	"errors"
	"fmt"

	"github.com/orbytt/voicedesk/domain"
)

var (
	// ErrNothingToSpeak is returned when a manual playback request carries blank text
	ErrNothingToSpeak = errors.New("nothing to speak")
	// ErrControllerClosed is returned by a playback controller after Close
	ErrControllerClosed = errors.New("playback controller is closed")
	// ErrCaptureBusy is returned when a capture is started while one is running
	ErrCaptureBusy = errors.New("speech capture already in progress")
	// ErrNotRecording is returned when stopping a capture that is not recording
	ErrNotRecording = errors.New("speech capture is not recording")
	// ErrEmptyMessage is returned when a blank chat message is submitted
	ErrEmptyMessage = errors.New("message text is empty")
)

// PlaybackOp names the step of a playback that failed
type PlaybackOp string

const (
	PlaybackOpSynthesize PlaybackOp = "synthesize"
	PlaybackOpPlay       PlaybackOp = "play"
)

// PlaybackError is a synthesis or local playback failure
type PlaybackError struct {
	Op  PlaybackOp
	Err error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *PlaybackError) Unwrap() error {
	return e.Err
}

// UserMessage returns the text shown to the user for this failure
func (e *PlaybackError) UserMessage() string {
	if e.Op == PlaybackOpPlay {
		return "Failed to start audio playback. Please try again."
	}

	switch {
	case errors.Is(e.Err, ErrNothingToSpeak):
		return "There is no text to read aloud."
	case errors.Is(e.Err, domain.ErrAuth):
		return "Failed to convert text to speech: the speech provider rejected the API key."
	case errors.Is(e.Err, domain.ErrRateLimit):
		return "Failed to convert text to speech: rate limit reached. Please try again later."
	case errors.Is(e.Err, domain.ErrFormat):
		return "Failed to convert text to speech: the request was rejected by the speech provider."
	default:
		return "Failed to convert text to speech. Please try again."
	}
}
