package stt

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/orbytt/voicedesk/domain"
	"github.com/orbytt/voicedesk/domain/repositories"
)

const (
	defaultAPIBaseURL = "https://api.elevenlabs.io/v1"
	defaultModelID    = "scribe_v1"
	defaultLanguage   = "eng"
	defaultTimeout    = 60 * time.Second

	elevenLabsProvider = "elevenlabs"
)

// ElevenLabsConfig holds configuration for the ElevenLabsSTT adapter
type ElevenLabsConfig struct {
	APIKey     string        // Required: Your Eleven Labs API key
	APIBaseURL string        // Optional: defaults to https://api.elevenlabs.io/v1
	ModelID    string        // Optional: defaults to scribe_v1
	Language   string        // Optional: ISO 639-3 code, defaults to eng
	Timeout    time.Duration // Optional: HTTP timeout
}

// ElevenLabsSTT implements SpeechToText using the Eleven Labs speech-to-text API
type ElevenLabsSTT struct {
	apiKey     string
	apiBaseURL string
	modelID    string
	language   string
	httpClient *http.Client
	logger     *zap.Logger
}

// Ensure ElevenLabsSTT implements the SpeechToText interface
var _ repositories.SpeechToText = (*ElevenLabsSTT)(nil)

type elevenLabsTranscript struct {
	Text         string `json:"text"`
	LanguageCode string `json:"language_code"`
}

// NewElevenLabsConfigFromEnv creates a new ElevenLabsConfig from environment variables
func NewElevenLabsConfigFromEnv() ElevenLabsConfig {
	return ElevenLabsConfig{
		APIKey:     os.Getenv("ELEVEN_LABS_API_KEY"),
		APIBaseURL: os.Getenv("ELEVEN_LABS_API_BASE_URL"),
		ModelID:    os.Getenv("ELEVEN_LABS_STT_MODEL_ID"),
		Language:   os.Getenv("ELEVEN_LABS_STT_LANGUAGE"),
	}
}

// NewElevenLabsSTT creates a new Eleven Labs STT instance
func NewElevenLabsSTT(config ElevenLabsConfig, logger *zap.Logger) (*ElevenLabsSTT, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("eleven labs API key is required")
	}

	s := &ElevenLabsSTT{
		apiKey:     config.APIKey,
		apiBaseURL: strings.TrimRight(config.APIBaseURL, "/"),
		modelID:    config.ModelID,
		language:   config.Language,
		logger:     logger,
	}
	if s.apiBaseURL == "" {
		s.apiBaseURL = defaultAPIBaseURL
	}
	if s.modelID == "" {
		s.modelID = defaultModelID
	}
	if s.language == "" {
		s.language = defaultLanguage
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	s.httpClient = &http.Client{Timeout: timeout}

	return s, nil
}

// TranscribeAudio uploads the recording as multipart form data
func (s *ElevenLabsSTT) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	if len(audioData) == 0 {
		return "", &domain.ProviderError{Kind: domain.ErrEmptyResult, Provider: elevenLabsProvider, Detail: "empty recording"}
	}

	mimeType := config.MimeType
	if mimeType == "" {
		mimeType = "audio/webm"
	}
	language := s.language
	if len(config.Language) == 3 {
		language = config.Language
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, recordingFilename(mimeType)))
	header.Set("Content-Type", mimeType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(audioData); err != nil {
		return "", fmt.Errorf("failed to write audio data: %w", err)
	}
	if err := writer.WriteField("model_id", s.modelID); err != nil {
		return "", fmt.Errorf("failed to write model field: %w", err)
	}
	if err := writer.WriteField("language_code", language); err != nil {
		return "", fmt.Errorf("failed to write language field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiBaseURL+"/speech-to-text", body)
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("xi-api-key", s.apiKey)

	s.logger.Info("Sending audio to Eleven Labs for transcription",
		zap.Int("audioBytes", len(audioData)),
		zap.String("mimeType", mimeType),
		zap.String("modelID", s.modelID))

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		s.logger.Error("Eleven Labs API returned error",
			zap.Int("statusCode", resp.StatusCode),
			zap.String("response", string(respBody)))
		return "", domain.NewProviderError(elevenLabsProvider, resp.StatusCode, string(respBody))
	}

	var transcript elevenLabsTranscript
	if err := sonic.Unmarshal(respBody, &transcript); err != nil {
		return "", fmt.Errorf("failed to decode transcription: %w", err)
	}

	text := strings.TrimSpace(transcript.Text)
	if text == "" {
		return "", &domain.ProviderError{Kind: domain.ErrEmptyResult, Provider: elevenLabsProvider}
	}
	return text, nil
}

// recordingFilename picks a file extension the API can sniff the format from
func recordingFilename(mimeType string) string {
	base := strings.ToLower(strings.SplitN(mimeType, ";", 2)[0])
	switch base {
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
