package speech

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/orbytt/voicedesk/domain/repositories"
)

const (
	// MockSampleRate is the sample rate of the silent PCM produced by MockTextToSpeech
	MockSampleRate = 24000
	// mock speech runs at roughly 15 characters per second
	mockBytesPerChar = MockSampleRate * 2 / 15
)

// MockSpeechToText is a placeholder implementation for speech recognition
type MockSpeechToText struct {
	logger *zap.Logger
}

// NewMockSpeechToText creates a new mock speech-to-text service
func NewMockSpeechToText(logger *zap.Logger) repositories.SpeechToText {
	return &MockSpeechToText{
		logger: logger,
	}
}

// TranscribeAudio implements repositories.SpeechToText
func (s *MockSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	s.logger.Info("Processing speech-to-text",
		zap.Int("audioSize", len(audioData)),
		zap.String("mimeType", config.MimeType))

	// Mock transcription based on audio size
	switch {
	case len(audioData) > 10000:
		return "What's on my calendar today, and can you summarize the latest logs?", nil
	case len(audioData) > 5000:
		return "Thanks, that's all for now.", nil
	case len(audioData) > 1000:
		return "Hello Mia!", nil
	default:
		return "", nil
	}
}

// MockTextToSpeech is a placeholder implementation for text-to-speech
type MockTextToSpeech struct {
	logger *zap.Logger
}

// NewMockTextToSpeech creates a new mock text-to-speech service
func NewMockTextToSpeech(logger *zap.Logger) repositories.TextToSpeech {
	return &MockTextToSpeech{
		logger: logger,
	}
}

// ConvertTextToSpeech returns 16-bit mono silence lasting about as long as
// reading text aloud would
func (t *MockTextToSpeech) ConvertTextToSpeech(ctx context.Context, text string) (*repositories.Speech, error) {
	t.logger.Info("Processing text-to-speech", zap.Int("textLength", len(text)))

	n := len([]rune(strings.TrimSpace(text))) * mockBytesPerChar
	return &repositories.Speech{
		Audio:    make([]byte, n),
		MimeType: "audio/pcm",
	}, nil
}
