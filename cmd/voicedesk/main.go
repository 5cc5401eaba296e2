package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/orbytt/voicedesk/adapters"
	"github.com/orbytt/voicedesk/adapters/backend"
	"github.com/orbytt/voicedesk/adapters/llm"
	"github.com/orbytt/voicedesk/adapters/mongo"
	"github.com/orbytt/voicedesk/adapters/openai"
	"github.com/orbytt/voicedesk/adapters/speech"
	"github.com/orbytt/voicedesk/adapters/stt"
	"github.com/orbytt/voicedesk/adapters/tts"
	"github.com/orbytt/voicedesk/domain/repositories"
	"github.com/orbytt/voicedesk/internal/api"
	"github.com/orbytt/voicedesk/internal/auth"
	"github.com/orbytt/voicedesk/internal/config"
	"github.com/orbytt/voicedesk/internal/websocket"
	"github.com/orbytt/voicedesk/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	var logger *zap.Logger
	if cfg.IsDevelopment() {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Conversation store, optionally archived in MongoDB
	var storeOpts []adapters.MemoryStoreOption
	var mongoClient *mongo.Client
	if cfg.ArchiveEnabled() {
		mongoClient, err = mongo.NewClient(ctx, mongo.Config{URI: cfg.MongoURI, Database: cfg.MongoDatabase}, logger)
		if err != nil {
			logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
		}
		archive := mongo.NewMessageArchive(mongoClient.Database)
		if err := archive.EnsureIndexes(ctx); err != nil {
			logger.Fatal("Failed to create archive indexes", zap.Error(err))
		}
		storeOpts = append(storeOpts, adapters.WithArchive(archive, cfg.ConversationID))
	}
	store := adapters.NewMemoryMessageStore(logger, storeOpts...)
	if err := store.Restore(ctx); err != nil {
		logger.Fatal("Failed to restore conversation", zap.Error(err))
	}

	// Initialize adapters
	textToSpeech, err := newTextToSpeech(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize text-to-speech", zap.String("provider", cfg.TTSProvider), zap.Error(err))
	}
	speechToText, providerName, closeSTT, err := newSpeechToText(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize speech-to-text", zap.String("provider", cfg.STTProvider), zap.Error(err))
	}
	defer closeSTT()
	assistant, err := newAssistant(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize assistant backend", zap.String("backend", cfg.AssistantBackend), zap.Error(err))
	}

	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.DashboardAccessKey, cfg.TokenTTL)
	if err != nil {
		logger.Fatal("Failed to initialize auth", zap.Error(err))
	}

	// Initialize usecase services
	chatService := usecase.NewChatService(store, assistant, usecase.ChatConfig{
		Timeout:    cfg.BackendTimeout,
		BackendURL: cfg.BackendURL,
	}, logger)
	transcriber := usecase.NewTranscriber(speechToText, usecase.TranscriberConfig{
		ProviderName: providerName,
		Language:     cfg.SpeechLanguage,
	}, logger)

	// Initialize WebSocket hub; every dashboard tab gets its own playback controller
	hub := websocket.NewHub(chatService, store, textToSpeech, transcriber, websocket.HubConfig{
		SettleDelay: cfg.SettleDelay,
	}, logger)
	go hub.Run(ctx)

	if cfg.IdleTimeout > 0 {
		cleanup := websocket.NewIdleCleanupService(hub, cfg.IdleTimeout, 0, logger)
		cleanup.Start()
		defer cleanup.Stop()
	}

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Initialize API routes
	api.InitRoutes(e, hub, chatService, transcriber, tokens, logger)

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("voicedesk server started",
		zap.String("port", cfg.Port),
		zap.String("tts", cfg.TTSProvider),
		zap.String("stt", cfg.STTProvider),
		zap.String("assistant", cfg.AssistantBackend),
		zap.Bool("archive", cfg.ArchiveEnabled()))

	<-ctx.Done()

	logger.Info("Server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	if mongoClient != nil {
		_ = mongoClient.Close(shutdownCtx)
	}

	logger.Info("Server exited")
}

func newTextToSpeech(cfg *config.Config, logger *zap.Logger) (repositories.TextToSpeech, error) {
	switch cfg.TTSProvider {
	case config.ProviderElevenLabs:
		return tts.NewElevenLabsTTS(tts.NewElevenLabsConfigFromEnv(), logger)
	case config.ProviderOpenAI:
		return openai.NewSpeech(openai.NewConfigFromEnv(), logger)
	default:
		return speech.NewMockTextToSpeech(logger), nil
	}
}

// newSpeechToText returns the transcription provider, its display name and
// a function releasing it
func newSpeechToText(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.SpeechToText, string, func(), error) {
	noop := func() {}

	switch cfg.STTProvider {
	case config.ProviderElevenLabs:
		client, err := stt.NewElevenLabsSTT(stt.NewElevenLabsConfigFromEnv(), logger)
		return client, "ElevenLabs", noop, err
	case config.ProviderOpenAI:
		client, err := openai.NewSpeech(openai.NewConfigFromEnv(), logger)
		return client, "OpenAI", noop, err
	case config.ProviderGoogle:
		client, err := stt.NewGoogleSpeechToText(ctx, cfg.SpeechLanguage, logger)
		if err != nil {
			return nil, "", noop, err
		}
		return client, "Google Speech", func() { _ = client.Close() }, nil
	default:
		return speech.NewMockSpeechToText(logger), "Speech provider", noop, nil
	}
}

func newAssistant(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.Assistant, error) {
	switch cfg.AssistantBackend {
	case config.BackendGemini:
		return llm.NewGeminiAssistant(ctx, llm.NewGeminiConfigFromEnv(), logger)
	case config.BackendMock:
		return llm.NewMockAssistant(), nil
	default:
		return backend.NewClient(backend.Config{BaseURL: cfg.BackendURL, Timeout: cfg.BackendTimeout}, logger)
	}
}
