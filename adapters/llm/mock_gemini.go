package llm

import (
	"context"
	"fmt"

	"github.com/orbytt/voicedesk/domain"
	"github.com/orbytt/voicedesk/domain/repositories"
)

// MockAssistant is a placeholder assistant for running the dashboard without
// a backend
type MockAssistant struct{}

// NewMockAssistant creates a new mock assistant
func NewMockAssistant() repositories.Assistant {
	return &MockAssistant{}
}

// Process implements repositories.Assistant
func (m *MockAssistant) Process(ctx context.Context, text string) (domain.AssistantReply, error) {
	if err := ctx.Err(); err != nil {
		return domain.AssistantReply{}, err
	}

	reply := domain.AssistantReply{
		Output:    "Hello! I'm Mia. How can I help you today?",
		AgentName: domain.DefaultAgentName,
		AgentType: domain.DefaultAgentType,
	}
	if len(text) > 0 {
		reply.Output = fmt.Sprintf("You said: <i>%s</i>. I'm running in mock mode, so that's all I can tell you.", text)
		reply.VoiceText = fmt.Sprintf("You said: %s.", text)
	}
	return reply, nil
}
