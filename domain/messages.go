package domain

// ProcessTextRequest is the payload sent to the assistant backend
type ProcessTextRequest struct {
	Text string `json:"text"`
}

// AssistantReply is the normalized form of an assistant backend response.
// The backend answers in several shapes; adapters collapse them into this one.
type AssistantReply struct {
	Output        string   `json:"output"`
	AgentName     string   `json:"agent_name,omitempty"`
	AgentType     string   `json:"agent_type,omitempty"`
	VoiceText     string   `json:"voice_text,omitempty"` // summarized response used for speech
	DisplayImages []string `json:"display_images,omitempty"`
}

const (
	DefaultAgentName = "Mia"
	DefaultAgentType = "orchestrator"
)
