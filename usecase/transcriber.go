package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/orbytt/voicedesk/domain"
	"github.com/orbytt/voicedesk/domain/entities"
	"github.com/orbytt/voicedesk/domain/repositories"
	"github.com/orbytt/voicedesk/internal/metrics"
)

// NoSpeechPlaceholder is delivered when the provider heard nothing
const NoSpeechPlaceholder = "(No speech detected)"

var statusCodePattern = regexp.MustCompile(`status code (\d+)`)

// TranscriberConfig holds configuration for a Transcriber
type TranscriberConfig struct {
	ProviderName string // Optional: shown in placeholders, defaults to "Speech provider"
	Language     string // Optional: passed to the provider
}

// Transcriber turns recorded audio into text. It never fails: provider
// errors become placeholder text the dashboard shows in the input field.
type Transcriber struct {
	stt      repositories.SpeechToText
	provider string
	language string
	logger   *zap.Logger
}

// NewTranscriber creates a new transcriber
func NewTranscriber(stt repositories.SpeechToText, config TranscriberConfig, logger *zap.Logger) *Transcriber {
	provider := config.ProviderName
	if provider == "" {
		provider = "Speech provider"
	}
	return &Transcriber{
		stt:      stt,
		provider: provider,
		language: config.Language,
		logger:   logger,
	}
}

// Transcribe sends audio to the provider and classifies the result
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte, mimeType string) entities.Transcription {
	t.logger.Info("Transcribing audio",
		zap.Int("audioBytes", len(audio)),
		zap.String("mimeType", mimeType))

	text, err := t.stt.TranscribeAudio(ctx, audio, repositories.AudioConfig{
		MimeType: mimeType,
		Language: t.language,
	})

	var result entities.Transcription
	switch {
	case err != nil:
		t.logger.Error("Transcription failed", zap.Error(err))
		result = t.classify(err)
	case strings.TrimSpace(text) == "":
		result = entities.Transcription{Text: NoSpeechPlaceholder, Failure: entities.TranscriptionFailureEmptyResult}
	default:
		result = entities.Transcription{Text: strings.TrimSpace(text)}
	}

	outcome := string(result.Failure)
	if result.Succeeded() {
		outcome = "ok"
	}
	metrics.Transcriptions.WithLabelValues(outcome).Inc()

	return result
}

// classify maps a provider error to a placeholder. Typed kinds win; the
// message text is checked afterwards for providers that only report strings.
func (t *Transcriber) classify(err error) entities.Transcription {
	msg := strings.ToLower(err.Error())

	switch {
	case errors.Is(err, domain.ErrEmptyResult):
		return entities.Transcription{Text: NoSpeechPlaceholder, Failure: entities.TranscriptionFailureEmptyResult}
	case errors.Is(err, domain.ErrFormat) || strings.Contains(msg, "format"):
		return entities.Transcription{
			Text:    "Audio format not supported. Try recording again with a different browser.",
			Failure: entities.TranscriptionFailureUnsupported,
		}
	case strings.Contains(msg, "corrupt"):
		return entities.Transcription{
			Text:    "Audio recording corrupted. Please try again in a quieter environment.",
			Failure: entities.TranscriptionFailureCorrupt,
		}
	case strings.Contains(msg, "subscription"):
		return entities.Transcription{
			Text:    fmt.Sprintf("Speech-to-text requires a paid %s subscription", t.provider),
			Failure: entities.TranscriptionFailureAuth,
		}
	case errors.Is(err, domain.ErrAuth) || strings.Contains(msg, "authentication") || strings.Contains(msg, "api key"):
		return entities.Transcription{
			Text:    fmt.Sprintf("%s API key error. Please check your configuration.", t.provider),
			Failure: entities.TranscriptionFailureAuth,
		}
	case errors.Is(err, domain.ErrRateLimit) || strings.Contains(msg, "rate limit"):
		return entities.Transcription{
			Text:    fmt.Sprintf("%s rate limit reached. Please try again later.", t.provider),
			Failure: entities.TranscriptionFailureRateLimit,
		}
	}

	if m := statusCodePattern.FindStringSubmatch(msg); m != nil {
		return entities.Transcription{
			Text:    fmt.Sprintf("Transcription failed (Error %s). Please try again.", m[1]),
			Failure: entities.TranscriptionFailureUnknown,
		}
	}

	return entities.Transcription{
		Text:    "Could not transcribe speech. Please try again.",
		Failure: entities.TranscriptionFailureUnknown,
	}
}
