package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Speech providers
const (
	ProviderElevenLabs = "elevenlabs"
	ProviderOpenAI     = "openai"
	ProviderGoogle     = "google" // transcription only
	ProviderMock       = "mock"
)

// Assistant backends
const (
	BackendHTTP   = "http"
	BackendGemini = "gemini"
	BackendMock   = "mock"
)

const devJWTSecret = "voicedesk-development-secret"

// Config holds all configuration for the application.
type Config struct {
	Port string
	Env  string

	// Speech
	TTSProvider    string
	STTProvider    string
	SpeechLanguage string

	// Assistant
	AssistantBackend string
	BackendURL       string
	BackendTimeout   time.Duration

	// Playback
	SettleDelay time.Duration

	// Conversation archive, disabled when MongoURI is empty
	MongoURI       string
	MongoDatabase  string
	ConversationID string

	// Dashboard auth
	JWTSecret          string
	DashboardAccessKey string
	TokenTTL           time.Duration

	// WebSocket clients silent for longer than this are disconnected; 0 disables
	IdleTimeout time.Duration
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
func Load() (*Config, error) {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		TTSProvider:        strings.ToLower(getEnv("TTS_PROVIDER", ProviderMock)),
		SpeechLanguage:     getEnv("SPEECH_LANGUAGE", "en-US"),
		AssistantBackend:   strings.ToLower(getEnv("ASSISTANT_BACKEND", BackendHTTP)),
		BackendURL:         getEnv("ASSISTANT_BACKEND_URL", "http://localhost:8000"),
		MongoURI:           os.Getenv("MONGODB_URI"),
		MongoDatabase:      os.Getenv("MONGODB_DATABASE"),
		ConversationID:     getEnv("CONVERSATION_ID", "default"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		DashboardAccessKey: os.Getenv("DASHBOARD_ACCESS_KEY"),
	}
	cfg.STTProvider = strings.ToLower(getEnv("STT_PROVIDER", cfg.TTSProvider))

	var err error
	if cfg.BackendTimeout, err = getDuration("ASSISTANT_BACKEND_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.SettleDelay, err = getDuration("PLAYBACK_SETTLE_DELAY", 800*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.TokenTTL, err = getDuration("TOKEN_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.IdleTimeout, err = getDuration("WS_IDLE_TIMEOUT", 30*time.Minute); err != nil {
		return nil, err
	}

	if cfg.JWTSecret == "" && cfg.IsDevelopment() {
		cfg.JWTSecret = devJWTSecret
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects unknown providers and missing production settings
func (c *Config) Validate() error {
	switch c.TTSProvider {
	case ProviderElevenLabs, ProviderOpenAI, ProviderMock:
	default:
		return fmt.Errorf("unsupported TTS_PROVIDER %q", c.TTSProvider)
	}

	switch c.STTProvider {
	case ProviderElevenLabs, ProviderOpenAI, ProviderGoogle, ProviderMock:
	default:
		return fmt.Errorf("unsupported STT_PROVIDER %q", c.STTProvider)
	}

	switch c.AssistantBackend {
	case BackendHTTP:
		if c.BackendURL == "" {
			return fmt.Errorf("ASSISTANT_BACKEND_URL is required for the http backend")
		}
	case BackendGemini, BackendMock:
	default:
		return fmt.Errorf("unsupported ASSISTANT_BACKEND %q", c.AssistantBackend)
	}

	if c.SettleDelay < 0 {
		return fmt.Errorf("PLAYBACK_SETTLE_DELAY must not be negative")
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in %s", c.Env)
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ArchiveEnabled reports whether the conversation is persisted to MongoDB
func (c *Config) ArchiveEnabled() bool {
	return c.MongoURI != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
