package repositories

import "context"

// Speech is synthesized audio ready for playback
type Speech struct {
	Audio    []byte
	MimeType string
}

// TextToSpeech abstracts speech synthesis providers
type TextToSpeech interface {
	// ConvertTextToSpeech synthesizes text into a playable audio clip
	ConvertTextToSpeech(ctx context.Context, text string) (*Speech, error)
}
