package backend

import (
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		output    string
		agentName string
		agentType string
		voice     string
		images    int
	}{
		{
			name:      "top level final response",
			body:      `{"final_response_to_user":"<p>Done</p>","current_agent_name":"Flock","current_agent_type":"calendar","summarized_response":"Done","display_images":["aGk=",""]}`,
			output:    "<p>Done</p>",
			agentName: "Flock",
			agentType: "calendar",
			voice:     "Done",
			images:    1,
		},
		{
			name:      "top level defaults",
			body:      `{"final_response_to_user":"Hi"}`,
			output:    "Hi",
			agentName: "Mia",
			agentType: "orchestrator",
		},
		{
			name:      "nested output",
			body:      `{"output":{"final_response_to_user":"Nested","current_agent_name":"Doctor","summarized_response":"short"}}`,
			output:    "Nested",
			agentName: "Doctor",
			agentType: "orchestrator",
			voice:     "short",
		},
		{
			name:      "nested response key",
			body:      `{"output":{"response":"Alt"}}`,
			output:    "Alt",
			agentName: "Mia",
			agentType: "orchestrator",
		},
		{
			name:      "plain output",
			body:      `{"output":"<b>Hello</b> there"}`,
			output:    "<b>Hello</b> there",
			agentName: "Mia",
			agentType: "orchestrator",
			voice:     "Hello there",
		},
		{
			name:      "empty object",
			body:      `{}`,
			agentName: "Mia",
			agentType: "orchestrator",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, err := Normalize([]byte(tt.body))
			if err != nil {
				t.Fatalf("Normalize failed: %v", err)
			}
			if reply.Output != tt.output {
				t.Errorf("Expected output %q, got %q", tt.output, reply.Output)
			}
			if reply.AgentName != tt.agentName {
				t.Errorf("Expected agent name %q, got %q", tt.agentName, reply.AgentName)
			}
			if reply.AgentType != tt.agentType {
				t.Errorf("Expected agent type %q, got %q", tt.agentType, reply.AgentType)
			}
			if reply.VoiceText != tt.voice {
				t.Errorf("Expected voice text %q, got %q", tt.voice, reply.VoiceText)
			}
			if len(reply.DisplayImages) != tt.images {
				t.Errorf("Expected %d images, got %d", tt.images, len(reply.DisplayImages))
			}
		})
	}
}

func TestNormalize_InvalidJSON(t *testing.T) {
	if _, err := Normalize([]byte("not json")); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}
