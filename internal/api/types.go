package api

import (
	"time"

	"github.com/orbytt/voicedesk/domain/entities"
)

// TokenRequest represents the request payload for dashboard authentication
type TokenRequest struct {
	ClientName string `json:"client_name"`
	AccessKey  string `json:"access_key"`
}

// TokenResponse represents the response payload for dashboard authentication
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	ClientID  string    `json:"client_id"`
}

// SendMessageRequest submits user text to the assistant
type SendMessageRequest struct {
	Text string `json:"text"`
}

// SendMessageResponse carries the stored assistant reply. Warning is set
// when the backend failed and a fallback reply was stored instead.
type SendMessageResponse struct {
	Message entities.Message `json:"message"`
	Warning string           `json:"warning,omitempty"`
}

// MessagesResponse carries the conversation
type MessagesResponse struct {
	Messages []entities.Message `json:"messages"`
}

// TranscriptionResponse carries the transcribed text or its placeholder
type TranscriptionResponse struct {
	Text      string                        `json:"text"`
	Succeeded bool                          `json:"succeeded"`
	Failure   entities.TranscriptionFailure `json:"failure,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
