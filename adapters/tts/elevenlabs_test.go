package tts

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/orbytt/voicedesk/domain"
)

func TestNewElevenLabsTTS(t *testing.T) {
	logger := zaptest.NewLogger(t)

	// Test without API key
	t.Setenv("ELEVEN_LABS_API_KEY", "")
	config := NewElevenLabsConfigFromEnv()
	_, err := NewElevenLabsTTS(config, logger)
	if err == nil {
		t.Error("Expected error when API key is not set")
	}

	// Test with API key
	t.Setenv("ELEVEN_LABS_API_KEY", "test-api-key")
	t.Setenv("ELEVEN_LABS_STABILITY", "0.8")

	config = NewElevenLabsConfigFromEnv()
	tts, err := NewElevenLabsTTS(config, logger)
	if err != nil {
		t.Fatalf("Failed to create ElevenLabsTTS: %v", err)
	}

	if tts.apiKey != "test-api-key" {
		t.Errorf("Expected API key 'test-api-key', got '%s'", tts.apiKey)
	}

	if tts.voiceID != defaultVoiceID {
		t.Errorf("Expected default voice ID '%s', got '%s'", defaultVoiceID, tts.voiceID)
	}

	if tts.stability != 0.8 {
		t.Errorf("Expected stability 0.8, got %f", tts.stability)
	}

	if tts.clarity != defaultClarity {
		t.Errorf("Expected default clarity %f, got %f", defaultClarity, tts.clarity)
	}
}

func TestValidateElevenLabsConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  ElevenLabsConfig
		wantErr bool
	}{
		{"valid", ElevenLabsConfig{APIKey: "key"}, false},
		{"missing key", ElevenLabsConfig{}, true},
		{"stability out of range", ElevenLabsConfig{APIKey: "key", Stability: 1.5}, true},
		{"clarity out of range", ElevenLabsConfig{APIKey: "key", Clarity: -0.1}, true},
		{"pcm format", ElevenLabsConfig{APIKey: "key", OutputFormat: "pcm_24000"}, false},
		{"unknown format", ElevenLabsConfig{APIKey: "key", OutputFormat: "ulaw_8000"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateElevenLabsConfig(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("Expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestElevenLabsTTS_ConvertTextToSpeech(t *testing.T) {
	var gotPath, gotKey, gotBody, gotFormat string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotFormat = r.URL.Query().Get("output_format")
		gotKey = r.Header.Get("xi-api-key")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3-mp3-bytes"))
	}))
	defer server.Close()

	tts, err := NewElevenLabsTTS(ElevenLabsConfig{APIKey: "test-api-key", APIBaseURL: server.URL}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Failed to create ElevenLabsTTS: %v", err)
	}

	speech, err := tts.ConvertTextToSpeech(context.Background(), "Hello there")
	if err != nil {
		t.Fatalf("ConvertTextToSpeech failed: %v", err)
	}

	if gotPath != "/text-to-speech/"+defaultVoiceID {
		t.Errorf("Unexpected path %s", gotPath)
	}
	if gotFormat != defaultOutputFormat {
		t.Errorf("Expected output format %s, got %s", defaultOutputFormat, gotFormat)
	}
	if gotKey != "test-api-key" {
		t.Errorf("Expected API key header, got %q", gotKey)
	}
	if !strings.Contains(gotBody, `"model_id":"eleven_multilingual_v2"`) || !strings.Contains(gotBody, `"text":"Hello there"`) {
		t.Errorf("Unexpected request body: %s", gotBody)
	}
	if string(speech.Audio) != "ID3-mp3-bytes" || speech.MimeType != "audio/mpeg" {
		t.Errorf("Unexpected speech: %q %s", speech.Audio, speech.MimeType)
	}
}

func TestElevenLabsTTS_ConvertTextToSpeech_Errors(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, domain.ErrAuth},
		{http.StatusTooManyRequests, domain.ErrRateLimit},
		{http.StatusUnprocessableEntity, domain.ErrFormat},
		{http.StatusInternalServerError, domain.ErrProvider},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"detail":"nope"}`, tt.status)
			}))
			defer server.Close()

			tts, _ := NewElevenLabsTTS(ElevenLabsConfig{APIKey: "key", APIBaseURL: server.URL}, zaptest.NewLogger(t))

			_, err := tts.ConvertTextToSpeech(context.Background(), "Hello")
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}

			var providerErr *domain.ProviderError
			if !errors.As(err, &providerErr) || providerErr.StatusCode != tt.status {
				t.Errorf("Expected ProviderError with status %d, got %v", tt.status, err)
			}
		})
	}
}

func TestElevenLabsTTS_ConvertTextToSpeech_EmptyText(t *testing.T) {
	tts, err := NewElevenLabsTTS(ElevenLabsConfig{APIKey: "test-api-key"}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Failed to create ElevenLabsTTS: %v", err)
	}

	ctx := context.Background()
	if _, err = tts.ConvertTextToSpeech(ctx, ""); err == nil {
		t.Error("Expected error for empty text")
	}

	if _, err = tts.ConvertTextToSpeech(ctx, "   "); err == nil {
		t.Error("Expected error for whitespace-only text")
	}
}

// Integration test - only runs if ELEVEN_LABS_API_KEY is set with real API key
func TestElevenLabsTTS_ConvertTextToSpeech_Integration(t *testing.T) {
	apiKey := os.Getenv("ELEVEN_LABS_API_KEY")
	if apiKey == "" || apiKey == "test-api-key" {
		t.Skip("Skipping integration test - set ELEVEN_LABS_API_KEY environment variable with real API key")
	}

	tts, err := NewElevenLabsTTS(NewElevenLabsConfigFromEnv(), zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to create ElevenLabsTTS: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	speech, err := tts.ConvertTextToSpeech(ctx, "Hello, this is the dashboard speaking.")
	if err != nil {
		t.Fatalf("Failed to convert text to speech: %v", err)
	}

	if len(speech.Audio) == 0 {
		t.Error("No audio data received")
	}

	t.Logf("Integration test completed: received %d bytes", len(speech.Audio))
}
