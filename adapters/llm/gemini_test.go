package llm

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"
	"google.golang.org/genai"
)

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: text}}}},
		},
	}
}

func TestGeminiAssistant_Process(t *testing.T) {
	var gotConfig *genai.GenerateContentConfig
	var gotContents []*genai.Content
	generate := func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		gotConfig = config
		gotContents = contents
		if model != defaultModel {
			t.Errorf("Expected model %s, got %s", defaultModel, model)
		}
		return textResponse(`{"final_response_to_user":"<p>Sunny</p>","summarized_response":"It is sunny"}`), nil
	}

	assistant := newGeminiAssistant(generate, GeminiConfig{APIKey: "key"}, zaptest.NewLogger(t))

	reply, err := assistant.Process(context.Background(), "weather?")
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if reply.Output != "<p>Sunny</p>" || reply.VoiceText != "It is sunny" {
		t.Errorf("Unexpected reply: %+v", reply)
	}
	if reply.AgentName != "Mia" {
		t.Errorf("Expected default agent name, got %s", reply.AgentName)
	}
	if gotConfig.ResponseMIMEType != "application/json" || gotConfig.SystemInstruction == nil {
		t.Error("Expected JSON response mode with a system instruction")
	}
	if len(gotContents) != 1 {
		t.Errorf("Expected only the user message on the first turn, got %d contents", len(gotContents))
	}

	_, _ = assistant.Process(context.Background(), "and tomorrow?")
	if len(gotContents) != 3 {
		t.Errorf("Expected history to be sent on the second turn, got %d contents", len(gotContents))
	}

	assistant.Reset()
	_, _ = assistant.Process(context.Background(), "hi")
	if len(gotContents) != 1 {
		t.Errorf("Expected history to be cleared, got %d contents", len(gotContents))
	}
}

func TestGeminiAssistant_PlainTextReply(t *testing.T) {
	generate := func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		return textResponse("Just text"), nil
	}
	assistant := newGeminiAssistant(generate, GeminiConfig{APIKey: "key"}, zaptest.NewLogger(t))

	reply, err := assistant.Process(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if reply.Output != "Just text" {
		t.Errorf("Expected raw text reply, got %q", reply.Output)
	}
}

func TestGeminiAssistant_Errors(t *testing.T) {
	boom := errors.New("quota exceeded")
	generate := func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		return nil, boom
	}
	assistant := newGeminiAssistant(generate, GeminiConfig{APIKey: "key"}, zaptest.NewLogger(t))

	if _, err := assistant.Process(context.Background(), "hi"); !errors.Is(err, boom) {
		t.Errorf("Expected wrapped error, got %v", err)
	}

	empty := func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		return textResponse("  "), nil
	}
	assistant = newGeminiAssistant(empty, GeminiConfig{APIKey: "key"}, zaptest.NewLogger(t))
	if _, err := assistant.Process(context.Background(), "hi"); err == nil {
		t.Error("Expected error for empty response")
	}
}

func TestGeminiAssistant_HistoryLimit(t *testing.T) {
	var gotContents []*genai.Content
	generate := func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		gotContents = contents
		return textResponse(`{"output":"ok"}`), nil
	}
	assistant := newGeminiAssistant(generate, GeminiConfig{APIKey: "key", HistoryTurns: 2}, zaptest.NewLogger(t))

	for i := 0; i < 5; i++ {
		_, _ = assistant.Process(context.Background(), "again")
	}

	if len(gotContents) != 5 {
		t.Errorf("Expected 2 turns of history plus the message, got %d contents", len(gotContents))
	}
}

func TestValidateGeminiConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  GeminiConfig
		wantErr bool
	}{
		{"valid", GeminiConfig{APIKey: "key"}, false},
		{"missing key", GeminiConfig{}, true},
		{"temperature", GeminiConfig{APIKey: "key", Temperature: 1.5}, true},
		{"topP", GeminiConfig{APIKey: "key", TopP: -0.5}, true},
		{"timeout", GeminiConfig{APIKey: "key", TimeoutSeconds: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateGeminiConfig(tt.config); (err != nil) != tt.wantErr {
				t.Errorf("Expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestMockAssistant(t *testing.T) {
	reply, err := NewMockAssistant().Process(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if reply.VoiceText != "You said: hello." {
		t.Errorf("Unexpected voice text %q", reply.VoiceText)
	}
}
