package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/orbytt/voicedesk/domain"
	"github.com/orbytt/voicedesk/domain/entities"
	"github.com/orbytt/voicedesk/domain/repositories"
	"github.com/orbytt/voicedesk/internal/metrics"
)

// DefaultAssistantTimeout bounds one assistant backend request
const DefaultAssistantTimeout = 60 * time.Second

// fallbackReplies are spoken when the assistant backend cannot be reached
var fallbackReplies = []domain.AssistantReply{
	{Output: "I'm sorry, I can't connect to the backend right now. This is a fallback response.", AgentName: "Mia"},
	{Output: "The backend seems to be offline. Here's a simulated response instead.", AgentName: "Flock"},
	{Output: "I'm currently running in offline mode. In a real scenario, I would fetch responses from the backend.", AgentName: "Doctor"},
	{Output: "Backend connection failed. Try running the assistant server for actual AI responses.", AgentName: "Sara"},
	{Output: "This is a placeholder message. Please ensure your backend server is running for real responses.", AgentName: "Mia"},
}

// ConnectionError reports that the assistant backend failed and a fallback
// reply was stored instead
type ConnectionError struct {
	Description string
	Err         error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("assistant backend unavailable: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ChatConfig holds configuration for a ChatService
type ChatConfig struct {
	Timeout    time.Duration // Optional: defaults to DefaultAssistantTimeout
	BackendURL string        // Optional: mentioned in connection error descriptions
}

// ChatService appends user messages to the store and answers them through
// the assistant backend
type ChatService struct {
	store      repositories.MessageStore
	assistant  repositories.Assistant
	timeout    time.Duration
	backendURL string
	pick       func(n int) int
	logger     *zap.Logger
}

// NewChatService creates a new chat service
func NewChatService(
	store repositories.MessageStore,
	assistant repositories.Assistant,
	config ChatConfig,
	logger *zap.Logger,
) *ChatService {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultAssistantTimeout
	}
	return &ChatService{
		store:      store,
		assistant:  assistant,
		timeout:    timeout,
		backendURL: config.BackendURL,
		pick:       rand.IntN,
		logger:     logger,
	}
}

// SendMessage stores the user's text and the assistant's answer. When the
// backend fails a fallback reply is stored and a *ConnectionError returned
// alongside it.
func (s *ChatService) SendMessage(ctx context.Context, text string) (entities.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return entities.Message{}, ErrEmptyMessage
	}

	if _, err := s.store.Append(ctx, entities.Message{Text: text, IsUser: true}); err != nil {
		return entities.Message{}, fmt.Errorf("failed to store user message: %w", err)
	}

	s.logger.Info("Sending message to assistant", zap.Int("textLength", len(text)))

	requestCtx, cancel := context.WithTimeout(ctx, s.timeout)
	reply, err := s.assistant.Process(requestCtx, text)
	cancel()

	var connErr *ConnectionError
	if err != nil {
		connErr = &ConnectionError{Description: s.describe(err), Err: err}
		s.logger.Error("Assistant backend failed, using fallback reply", zap.Error(err))
		metrics.AssistantRequests.WithLabelValues("fallback").Inc()
		reply = fallbackReplies[s.pick(len(fallbackReplies))]
	} else {
		metrics.AssistantRequests.WithLabelValues("ok").Inc()
	}

	message, err := s.store.Append(ctx, assistantMessage(reply))
	if err != nil {
		return entities.Message{}, fmt.Errorf("failed to store assistant message: %w", err)
	}

	if connErr != nil {
		return message, connErr
	}
	return message, nil
}

// Messages returns the conversation so far
func (s *ChatService) Messages(ctx context.Context) ([]entities.Message, error) {
	return s.store.Messages(ctx)
}

// Reset clears the conversation. Playback controllers keep their played set.
func (s *ChatService) Reset(ctx context.Context) error {
	if err := s.store.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset conversation: %w", err)
	}
	// assistants that keep their own history forget it too
	if r, ok := s.assistant.(interface{ Reset() }); ok {
		r.Reset()
	}
	s.logger.Info("Conversation reset")
	return nil
}

func assistantMessage(reply domain.AssistantReply) entities.Message {
	agentName := reply.AgentName
	if agentName == "" {
		agentName = domain.DefaultAgentName
	}
	agentType := reply.AgentType
	if agentType == "" {
		agentType = domain.DefaultAgentType
	}
	voiceText := reply.VoiceText
	if strings.TrimSpace(voiceText) == "" {
		voiceText = reply.Output
	}

	return entities.Message{
		Text:          reply.Output,
		AgentName:     agentName,
		AgentType:     agentType,
		VoiceText:     voiceText,
		DisplayImages: reply.DisplayImages,
	}
}

// describe turns a backend failure into the text shown to the user
func (s *ChatService) describe(err error) string {
	var backendErr *domain.BackendError
	var netErr net.Error
	var opErr *net.OpError

	switch {
	case errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()):
		return "Request timed out. The backend server took too long to respond."
	case errors.As(err, &backendErr) && backendErr.StatusCode == http.StatusMethodNotAllowed:
		return "The AI backend rejected the request (405 Method Not Allowed). Check that it accepts POST /process-text."
	case errors.As(err, &backendErr):
		return fmt.Sprintf("The AI backend responded with status %d. Using fallback response instead.", backendErr.StatusCode)
	case errors.As(err, &opErr) && s.backendURL != "":
		return fmt.Sprintf("Could not connect to the AI backend. Please ensure the server is running at %s.", s.backendURL)
	default:
		return "Could not connect to the AI backend. Using fallback response instead."
	}
}
