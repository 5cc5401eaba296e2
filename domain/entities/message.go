package entities

import (
	"errors"
	"strings"
	"time"
)

// Message represents a single chat message in the conversation.
// Messages are immutable once appended to the message store.
type Message struct {
	ID            string    `json:"id" bson:"id"`
	Text          string    `json:"text" bson:"text"`
	IsUser        bool      `json:"is_user" bson:"is_user"`
	AgentName     string    `json:"agent_name,omitempty" bson:"agent_name,omitempty"`
	AgentType     string    `json:"agent_type,omitempty" bson:"agent_type,omitempty"`
	VoiceText     string    `json:"voice_text,omitempty" bson:"voice_text,omitempty"` // text sent to synthesis when present
	DisplayImages []string  `json:"display_images,omitempty" bson:"display_images,omitempty"`
	CreatedAt     time.Time `json:"created_at" bson:"created_at"`
}

// Fingerprint returns the whitespace-normalized display text. It is the
// identity used for playback deduplication, so two messages with the same
// text are the same message for playback purposes.
func (m Message) Fingerprint() string {
	return Fingerprint(m.Text)
}

// SpeakableText returns the text to synthesize: VoiceText when it has content,
// otherwise Text. The result is trimmed and may be empty.
func (m Message) SpeakableText() string {
	if voice := strings.TrimSpace(m.VoiceText); voice != "" {
		return voice
	}
	return strings.TrimSpace(m.Text)
}

// Validate validates the message before it is appended
func (m Message) Validate() error {
	if m.IsUser && strings.TrimSpace(m.Text) == "" {
		return errors.New("user message text is required")
	}
	return nil
}

// Fingerprint collapses every run of whitespace into a single space and trims
// both ends.
func Fingerprint(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// LastAssistantMessage returns the last message not authored by the user
func LastAssistantMessage(messages []Message) (Message, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if !messages[i].IsUser {
			return messages[i], true
		}
	}
	return Message{}, false
}
