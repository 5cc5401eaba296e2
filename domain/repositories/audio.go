package repositories

import "context"

// AudioClip is a synthesized clip handed to a player
type AudioClip struct {
	PlaybackID string
	MessageKey string
	Audio      []byte
	MimeType   string
}

// AudioPlayer starts playback of audio clips on some output
type AudioPlayer interface {
	Play(ctx context.Context, clip AudioClip) (PlaybackHandle, error)
}

// PlaybackHandle controls one started playback. It is exclusively owned by
// whoever started it.
type PlaybackHandle interface {
	// Stop halts playback and releases the output. Safe to call more than once.
	Stop()
	// Done is closed once playback finished or was stopped
	Done() <-chan struct{}
}

// AudioRecorder captures audio for transcription
type AudioRecorder interface {
	Start(ctx context.Context) error
	// Stop ends capture and returns the recorded audio and its MIME type
	Stop(ctx context.Context) (audio []byte, mimeType string, err error)
}
