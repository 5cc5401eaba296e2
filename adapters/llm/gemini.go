package llm

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/orbytt/voicedesk/adapters/backend"
	"github.com/orbytt/voicedesk/domain"
	"github.com/orbytt/voicedesk/domain/repositories"
)

const (
	defaultModel          = "gemini-2.0-flash"
	defaultTemperature    = 0.7
	defaultTopP           = 0.95
	defaultMaxTokens      = 1024
	defaultTimeoutSeconds = 30
	defaultHistoryTurns   = 20
)

// systemPrompt asks the model to answer in the structured backend format so
// the same normalizer handles both
const systemPrompt = `You are Mia, the orchestrator of a personal dashboard assistant.
Answer every message with a single JSON object and nothing else:
{
  "final_response_to_user": "<full answer, simple HTML allowed>",
  "summarized_response": "<one or two plain sentences suitable for reading aloud>",
  "current_agent_name": "Mia",
  "current_agent_type": "orchestrator"
}`

// GeminiConfig holds configuration for the Gemini assistant
type GeminiConfig struct {
	APIKey          string  // Required: Google AI API key
	Model           string  // Optional: defaults to gemini-2.0-flash
	Temperature     float32 // Optional: between 0 and 1
	TopP            float32 // Optional: between 0 and 1
	MaxOutputTokens int     // Optional
	TimeoutSeconds  int     // Optional
	HistoryTurns    int     // Optional: user/model pairs kept as context
}

// ValidateGeminiConfig validates the GeminiConfig
func ValidateGeminiConfig(config GeminiConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("google AI API key is required")
	}

	// Validate temperature is in the valid range
	if config.Temperature != 0 && (config.Temperature < 0 || config.Temperature > 1) {
		return fmt.Errorf("temperature must be between 0 and 1, got %f", config.Temperature)
	}

	// Validate topP is in the valid range
	if config.TopP != 0 && (config.TopP < 0 || config.TopP > 1) {
		return fmt.Errorf("topP must be between 0 and 1, got %f", config.TopP)
	}

	if config.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout must be positive, got %d", config.TimeoutSeconds)
	}

	if config.HistoryTurns < 0 {
		return fmt.Errorf("history turns must be positive, got %d", config.HistoryTurns)
	}

	return nil
}

// NewGeminiConfigFromEnv creates a new GeminiConfig from environment variables
func NewGeminiConfigFromEnv() GeminiConfig {
	config := GeminiConfig{
		APIKey: os.Getenv("GEMINI_API_KEY"),
		Model:  os.Getenv("GEMINI_MODEL"),
	}

	if temperatureStr := os.Getenv("GEMINI_TEMPERATURE"); temperatureStr != "" {
		if temperature, err := strconv.ParseFloat(temperatureStr, 32); err == nil {
			config.Temperature = float32(temperature)
		}
	}

	if timeoutStr := os.Getenv("GEMINI_TIMEOUT_SECONDS"); timeoutStr != "" {
		if timeout, err := strconv.Atoi(timeoutStr); err == nil {
			config.TimeoutSeconds = timeout
		}
	}

	return config
}

type generateFunc func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// GeminiAssistant answers dashboard messages with Google's Gemini API. It
// keeps a rolling conversation history for context.
type GeminiAssistant struct {
	generate        generateFunc
	logger          *zap.Logger
	model           string
	temperature     float32
	topP            float32
	maxOutputTokens int
	timeout         time.Duration
	historyTurns    int

	mu      sync.Mutex
	history []*genai.Content
}

// Ensure GeminiAssistant implements the Assistant interface
var _ repositories.Assistant = (*GeminiAssistant)(nil)

// NewGeminiAssistant creates a new Gemini assistant
func NewGeminiAssistant(ctx context.Context, config GeminiConfig, logger *zap.Logger) (*GeminiAssistant, error) {
	if err := ValidateGeminiConfig(config); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return newGeminiAssistant(client.Models.GenerateContent, config, logger), nil
}

func newGeminiAssistant(generate generateFunc, config GeminiConfig, logger *zap.Logger) *GeminiAssistant {
	a := &GeminiAssistant{
		generate:        generate,
		logger:          logger,
		model:           config.Model,
		temperature:     config.Temperature,
		topP:            config.TopP,
		maxOutputTokens: config.MaxOutputTokens,
		timeout:         time.Duration(config.TimeoutSeconds) * time.Second,
		historyTurns:    config.HistoryTurns,
	}

	// Apply defaults where needed
	if a.model == "" {
		a.model = defaultModel
		logger.Info("Using default model", zap.String("model", a.model))
	}
	if a.temperature == 0 {
		a.temperature = defaultTemperature
	}
	if a.topP == 0 {
		a.topP = defaultTopP
	}
	if a.maxOutputTokens == 0 {
		a.maxOutputTokens = defaultMaxTokens
	}
	if a.timeout == 0 {
		a.timeout = defaultTimeoutSeconds * time.Second
	}
	if a.historyTurns == 0 {
		a.historyTurns = defaultHistoryTurns
	}
	return a
}

// Process implements repositories.Assistant
func (a *GeminiAssistant) Process(ctx context.Context, text string) (domain.AssistantReply, error) {
	userContent := genai.NewContentFromText(text, genai.RoleUser)

	a.mu.Lock()
	contents := make([]*genai.Content, 0, len(a.history)+1)
	contents = append(contents, a.history...)
	a.mu.Unlock()
	contents = append(contents, userContent)

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr(a.temperature),
		TopP:              genai.Ptr(a.topP),
		MaxOutputTokens:   int32(a.maxOutputTokens),
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	response, err := a.generate(ctx, a.model, contents, config)
	if err != nil {
		a.logger.Error("Failed to generate content", zap.Error(err))
		return domain.AssistantReply{}, fmt.Errorf("failed to generate content: %w", err)
	}

	responseText := strings.TrimSpace(response.Text())
	if responseText == "" {
		return domain.AssistantReply{}, fmt.Errorf("empty response from Gemini")
	}

	reply, err := backend.Normalize([]byte(responseText))
	if err != nil {
		// the model ignored the JSON instruction, speak the text as is
		a.logger.Warn("Gemini response is not JSON, using raw text", zap.Error(err))
		reply = domain.AssistantReply{
			Output:    responseText,
			AgentName: domain.DefaultAgentName,
			AgentType: domain.DefaultAgentType,
		}
	}

	a.remember(userContent, genai.NewContentFromText(reply.Output, genai.RoleModel))

	a.logger.Info("Gemini reply generated",
		zap.Int("historyLength", len(contents)+1),
		zap.Int("replyLength", len(reply.Output)))

	return reply, nil
}

// Reset forgets the conversation history
func (a *GeminiAssistant) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = nil
}

func (a *GeminiAssistant) remember(user, model *genai.Content) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.history = append(a.history, user, model)
	if limit := a.historyTurns * 2; len(a.history) > limit {
		a.history = append([]*genai.Content(nil), a.history[len(a.history)-limit:]...)
	}
}
