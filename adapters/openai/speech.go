package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/orbytt/voicedesk/domain"
	"github.com/orbytt/voicedesk/domain/repositories"
)

const providerName = "openai"

// Config holds configuration for the OpenAI speech adapters
type Config struct {
	APIKey   string // Required
	BaseURL  string // Optional: for OpenAI compatible gateways
	Voice    string // Optional: defaults to alloy
	TTSModel string // Optional: defaults to tts-1
	STTModel string // Optional: defaults to whisper-1
}

// NewConfigFromEnv creates a new Config from environment variables
func NewConfigFromEnv() Config {
	return Config{
		APIKey:   os.Getenv("OPENAI_API_KEY"),
		BaseURL:  os.Getenv("OPENAI_BASE_URL"),
		Voice:    os.Getenv("OPENAI_TTS_VOICE"),
		TTSModel: os.Getenv("OPENAI_TTS_MODEL"),
		STTModel: os.Getenv("OPENAI_STT_MODEL"),
	}
}

// Speech implements TextToSpeech and SpeechToText with the OpenAI audio API
type Speech struct {
	client   *openai.Client
	voice    openai.SpeechVoice
	ttsModel openai.SpeechModel
	sttModel string
	logger   *zap.Logger
}

var (
	_ repositories.TextToSpeech = (*Speech)(nil)
	_ repositories.SpeechToText = (*Speech)(nil)
)

// NewSpeech creates a new OpenAI speech adapter
func NewSpeech(config Config, logger *zap.Logger) (*Speech, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	s := &Speech{
		client:   openai.NewClientWithConfig(clientConfig),
		voice:    openai.SpeechVoice(config.Voice),
		ttsModel: openai.SpeechModel(config.TTSModel),
		sttModel: config.STTModel,
		logger:   logger,
	}
	if s.voice == "" {
		s.voice = openai.VoiceAlloy
	}
	if s.ttsModel == "" {
		s.ttsModel = openai.TTSModel1
	}
	if s.sttModel == "" {
		s.sttModel = openai.Whisper1
	}
	return s, nil
}

// ConvertTextToSpeech implements repositories.TextToSpeech
func (s *Speech) ConvertTextToSpeech(ctx context.Context, text string) (*repositories.Speech, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	s.logger.Info("Converting text to speech",
		zap.Int("textLength", len(text)),
		zap.String("voice", string(s.voice)),
		zap.String("model", string(s.ttsModel)))

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          s.ttsModel,
		Input:          text,
		Voice:          s.voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, classify(err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}

	return &repositories.Speech{Audio: audio, MimeType: "audio/mpeg"}, nil
}

// TranscribeAudio implements repositories.SpeechToText
func (s *Speech) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	if len(audioData) == 0 {
		return "", &domain.ProviderError{Kind: domain.ErrEmptyResult, Provider: providerName, Detail: "empty recording"}
	}

	request := openai.AudioRequest{
		Model:    s.sttModel,
		FilePath: filenameFor(config.MimeType),
		Reader:   bytes.NewReader(audioData),
	}
	// whisper takes ISO 639-1 codes only
	if len(config.Language) == 2 {
		request.Language = config.Language
	}

	s.logger.Info("Sending audio to OpenAI for transcription",
		zap.Int("audioBytes", len(audioData)),
		zap.String("model", s.sttModel))

	resp, err := s.client.CreateTranscription(ctx, request)
	if err != nil {
		return "", classify(err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", &domain.ProviderError{Kind: domain.ErrEmptyResult, Provider: providerName}
	}
	return text, nil
}

// classify maps go-openai errors onto provider failure kinds
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return domain.NewProviderError(providerName, apiErr.HTTPStatusCode, apiErr.Message)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return domain.NewProviderError(providerName, reqErr.HTTPStatusCode, reqErr.Error())
	}

	return fmt.Errorf("openai request failed: %w", err)
}

func filenameFor(mimeType string) string {
	switch strings.ToLower(strings.SplitN(mimeType, ";", 2)[0]) {
	case "audio/wav", "audio/x-wav":
		return "recording.wav"
	case "audio/ogg":
		return "recording.ogg"
	case "audio/mpeg", "audio/mp3":
		return "recording.mp3"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return "recording.m4a"
	default:
		return "recording.webm"
	}
}
