package entities

import (
	"time"

	"github.com/google/uuid"
)

// PlaybackState represents the lifecycle state of a playback session
type PlaybackState string

const (
	PlaybackStateIdle    PlaybackState = "idle"
	PlaybackStateLoading PlaybackState = "loading"
	PlaybackStatePlaying PlaybackState = "playing"
	PlaybackStateEnded   PlaybackState = "ended"
)

// PlaybackOrigin tells whether a session was started by the automatic trigger
// or by the user
type PlaybackOrigin string

const (
	PlaybackOriginAuto   PlaybackOrigin = "auto"
	PlaybackOriginManual PlaybackOrigin = "manual"
)

// PlaybackSession wraps one active or completed audio playback
type PlaybackSession struct {
	ID        string         `json:"id"`
	Key       string         `json:"key"` // fingerprint for auto sessions, message id for manual ones
	Origin    PlaybackOrigin `json:"origin"`
	State     PlaybackState  `json:"state"`
	CreatedAt time.Time      `json:"created_at"`
	StartedAt *time.Time     `json:"started_at,omitempty"`
	EndedAt   *time.Time     `json:"ended_at,omitempty"`
}

// NewPlaybackSession creates a session in the loading state
func NewPlaybackSession(key string, origin PlaybackOrigin) *PlaybackSession {
	return &PlaybackSession{
		ID:        uuid.NewString(),
		Key:       key,
		Origin:    origin,
		State:     PlaybackStateLoading,
		CreatedAt: time.Now(),
	}
}

// Start marks the session as playing
func (s *PlaybackSession) Start() {
	now := time.Now()
	s.State = PlaybackStatePlaying
	s.StartedAt = &now
}

// End marks the session as ended. Ending an already finished session is a no-op.
func (s *PlaybackSession) End() {
	if s.IsFinished() {
		return
	}
	now := time.Now()
	s.State = PlaybackStateEnded
	s.EndedAt = &now
}

// Reset returns a session that never started playing to idle
func (s *PlaybackSession) Reset() {
	s.State = PlaybackStateIdle
}

// IsActive reports whether the session is loading or playing
func (s *PlaybackSession) IsActive() bool {
	return s.State == PlaybackStateLoading || s.State == PlaybackStatePlaying
}

// IsFinished reports whether the session reached a terminal state
func (s *PlaybackSession) IsFinished() bool {
	return s.State == PlaybackStateEnded || s.State == PlaybackStateIdle
}
