package usecase

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/orbytt/voicedesk/domain/entities"
	"github.com/orbytt/voicedesk/domain/repositories"
)

// SpeechCapture drives one recording from start to transcription:
// idle -> recording -> stopping -> transcribing -> idle.
type SpeechCapture struct {
	recorder    repositories.AudioRecorder
	transcriber *Transcriber
	logger      *zap.Logger

	mu        sync.Mutex
	state     entities.CaptureState
	listeners []func(entities.CaptureState)
}

// NewSpeechCapture creates an idle speech capture
func NewSpeechCapture(recorder repositories.AudioRecorder, transcriber *Transcriber, logger *zap.Logger) *SpeechCapture {
	return &SpeechCapture{
		recorder:    recorder,
		transcriber: transcriber,
		logger:      logger,
		state:       entities.CaptureStateIdle,
	}
}

// OnStateChange registers a callback invoked after every transition
func (s *SpeechCapture) OnStateChange(listener func(entities.CaptureState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, listener)
}

// State returns the current capture state
func (s *SpeechCapture) State() entities.CaptureState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start begins recording. If the recorder cannot start the capture stays idle.
func (s *SpeechCapture) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != entities.CaptureStateIdle {
		s.mu.Unlock()
		return ErrCaptureBusy
	}

	if err := s.recorder.Start(ctx); err != nil {
		s.mu.Unlock()
		s.logger.Error("Failed to start recording", zap.Error(err))
		return fmt.Errorf("failed to start recording: %w", err)
	}

	s.setStateLocked(entities.CaptureStateRecording)
	return nil
}

// Stop ends recording and transcribes what was captured. Provider failures
// come back as a placeholder transcription, not as an error.
func (s *SpeechCapture) Stop(ctx context.Context) (entities.Transcription, error) {
	s.mu.Lock()
	if s.state != entities.CaptureStateRecording {
		s.mu.Unlock()
		return entities.Transcription{}, ErrNotRecording
	}
	s.setStateLocked(entities.CaptureStateStopping)

	audio, mimeType, err := s.recorder.Stop(ctx)
	if err != nil {
		s.mu.Lock()
		s.setStateLocked(entities.CaptureStateIdle)
		s.logger.Error("Failed to stop recording", zap.Error(err))
		return entities.Transcription{}, fmt.Errorf("failed to stop recording: %w", err)
	}

	if len(audio) == 0 {
		s.mu.Lock()
		s.setStateLocked(entities.CaptureStateIdle)
		return entities.Transcription{
			Text:    NoSpeechPlaceholder,
			Failure: entities.TranscriptionFailureEmptyResult,
		}, nil
	}

	s.mu.Lock()
	s.setStateLocked(entities.CaptureStateTranscribing)

	result := s.transcriber.Transcribe(ctx, audio, mimeType)

	s.mu.Lock()
	s.setStateLocked(entities.CaptureStateIdle)

	s.logger.Info("Speech capture finished",
		zap.Int("audioBytes", len(audio)),
		zap.String("failure", string(result.Failure)))

	return result, nil
}

// Cancel discards an in-progress recording
func (s *SpeechCapture) Cancel(ctx context.Context) {
	s.mu.Lock()
	if s.state != entities.CaptureStateRecording {
		s.mu.Unlock()
		return
	}
	s.setStateLocked(entities.CaptureStateStopping)

	if _, _, err := s.recorder.Stop(ctx); err != nil {
		s.logger.Warn("Failed to stop cancelled recording", zap.Error(err))
	}

	s.mu.Lock()
	s.setStateLocked(entities.CaptureStateIdle)
}

// setStateLocked records the transition, releases s.mu and notifies listeners
func (s *SpeechCapture) setStateLocked(state entities.CaptureState) {
	s.state = state
	listeners := make([]func(entities.CaptureState), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, listener := range listeners {
		listener(state)
	}
}
