package websocket

import (
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/orbytt/voicedesk/domain/entities"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Inbound message types
const (
	MessageTypeSendMessage       MessageType = "send_message"
	MessageTypeTogglePlayback    MessageType = "toggle_playback"
	MessageTypeListeningStart    MessageType = "listening_start"
	MessageTypeListeningEnd      MessageType = "listening_end"
	MessageTypeListeningCancel   MessageType = "listening_cancel"
	MessageTypePlaybackEnded     MessageType = "playback_ended"
	MessageTypeResetConversation MessageType = "reset_conversation"
	MessageTypePing              MessageType = "ping"
)

// Outbound message types
const (
	MessageTypeMessages      MessageType = "messages"
	MessageTypeSpeakingStart MessageType = "speaking_start"
	MessageTypeSpeakingEnd   MessageType = "speaking_end"
	MessageTypeSpeakingStop  MessageType = "speaking_stop"
	MessageTypePlaybackState MessageType = "playback_state"
	MessageTypeCaptureState  MessageType = "capture_state"
	MessageTypeTranscription MessageType = "transcription"
	MessageTypeError         MessageType = "error"
	MessageTypePong          MessageType = "pong"
)

// Error codes sent in error messages
const (
	ErrorCodeInvalidMessage = "invalid_message"
	ErrorCodeBackend        = "backend_unavailable"
	ErrorCodePlayback       = "playback_failed"
	ErrorCodeCapture        = "capture_failed"
	ErrorCodeInternal       = "internal_error"
)

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp"`
	MessageID string      `json:"message_id,omitempty"`
}

func newBase(t MessageType) BaseMessage {
	return BaseMessage{Type: t, Timestamp: time.Now().Format(time.RFC3339)}
}

// SendMessageMessage submits user text to the assistant
type SendMessageMessage struct {
	BaseMessage
	Text string `json:"text"`
}

// TogglePlaybackMessage asks to play or stop the message with the given id
type TogglePlaybackMessage struct {
	BaseMessage
	ID   string `json:"id"`
	Text string `json:"text"`
}

// ListeningStartMessage opens a recording. Binary frames that follow are
// audio chunks in MimeType.
type ListeningStartMessage struct {
	BaseMessage
	MimeType string `json:"mime_type,omitempty"`
}

// ListeningEndMessage closes the recording and requests a transcription
type ListeningEndMessage struct {
	BaseMessage
}

// ListeningCancelMessage discards the recording
type ListeningCancelMessage struct {
	BaseMessage
}

// PlaybackEndedMessage reports that the browser finished playing a clip
type PlaybackEndedMessage struct {
	BaseMessage
	PlaybackID string `json:"playback_id"`
}

// ResetConversationMessage clears the shared conversation
type ResetConversationMessage struct {
	BaseMessage
}

// PingMessage represents a ping message for connection health check
type PingMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// PongMessage represents a pong response
type PongMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// MessagesMessage carries the full conversation after every store update
type MessagesMessage struct {
	BaseMessage
	Messages []entities.Message `json:"messages"`
}

// SpeakingStartMessage announces the binary audio frames of one playback
type SpeakingStartMessage struct {
	BaseMessage
	PlaybackID string `json:"playback_id"`
	MessageKey string `json:"message_key"`
	MimeType   string `json:"mime_type"`
	Bytes      int    `json:"bytes"`
}

// SpeakingEndMessage follows the last audio frame of a playback
type SpeakingEndMessage struct {
	BaseMessage
	PlaybackID string `json:"playback_id"`
}

// SpeakingStopMessage tells the browser to stop a playback immediately
type SpeakingStopMessage struct {
	BaseMessage
	PlaybackID string `json:"playback_id"`
}

// PlaybackStateMessage answers a toggle with the resulting state
type PlaybackStateMessage struct {
	BaseMessage
	ID      string `json:"id"`
	Playing bool   `json:"playing"`
}

// CaptureStateMessage reports a speech capture transition
type CaptureStateMessage struct {
	BaseMessage
	State entities.CaptureState `json:"state"`
}

// TranscriptionMessage carries the transcribed text or its placeholder
type TranscriptionMessage struct {
	BaseMessage
	Text      string                        `json:"text"`
	Succeeded bool                          `json:"succeeded"`
	Failure   entities.TranscriptionFailure `json:"failure,omitempty"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// MessageValidator provides validation for WebSocket messages
type MessageValidator struct{}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateMessage parses an incoming text frame into its typed message
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (interface{}, error) {
	var base BaseMessage
	if err := sonic.Unmarshal(messageBytes, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch base.Type {
	case MessageTypeSendMessage:
		var msg SendMessageMessage
		if err := sonic.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid send_message message: %w", err)
		}
		if strings.TrimSpace(msg.Text) == "" {
			return nil, fmt.Errorf("text is required")
		}
		return &msg, nil

	case MessageTypeTogglePlayback:
		var msg TogglePlaybackMessage
		if err := sonic.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid toggle_playback message: %w", err)
		}
		if msg.ID == "" {
			return nil, fmt.Errorf("id is required")
		}
		return &msg, nil

	case MessageTypeListeningStart:
		var msg ListeningStartMessage
		if err := sonic.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid listening_start message: %w", err)
		}
		if msg.MimeType != "" && !strings.HasPrefix(msg.MimeType, "audio/") {
			return nil, fmt.Errorf("mime_type must be an audio type")
		}
		return &msg, nil

	case MessageTypeListeningEnd:
		return &ListeningEndMessage{BaseMessage: base}, nil

	case MessageTypeListeningCancel:
		return &ListeningCancelMessage{BaseMessage: base}, nil

	case MessageTypePlaybackEnded:
		var msg PlaybackEndedMessage
		if err := sonic.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid playback_ended message: %w", err)
		}
		if msg.PlaybackID == "" {
			return nil, fmt.Errorf("playback_id is required")
		}
		return &msg, nil

	case MessageTypeResetConversation:
		return &ResetConversationMessage{BaseMessage: base}, nil

	case MessageTypePing:
		var msg PingMessage
		if err := sonic.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid ping message: %w", err)
		}
		return &msg, nil

	default:
		return nil, fmt.Errorf("unsupported message type: %s", base.Type)
	}
}

// CreateErrorMessage creates a standardized error message
func CreateErrorMessage(code, message, details string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: newBase(MessageTypeError),
		Code:        code,
		Message:     message,
		Details:     details,
	}
}

// CreatePongMessage creates a pong response message
func CreatePongMessage(data string) *PongMessage {
	return &PongMessage{
		BaseMessage: newBase(MessageTypePong),
		Data:        data,
	}
}

// CreateMessagesMessage wraps a conversation snapshot
func CreateMessagesMessage(messages []entities.Message) *MessagesMessage {
	if messages == nil {
		messages = []entities.Message{}
	}
	return &MessagesMessage{
		BaseMessage: newBase(MessageTypeMessages),
		Messages:    messages,
	}
}

// CreateTranscriptionMessage wraps a transcription result
func CreateTranscriptionMessage(result entities.Transcription) *TranscriptionMessage {
	return &TranscriptionMessage{
		BaseMessage: newBase(MessageTypeTranscription),
		Text:        result.Text,
		Succeeded:   result.Succeeded(),
		Failure:     result.Failure,
	}
}
