package websocket

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"

	"github.com/orbytt/voicedesk/domain/repositories"
)

func setupTestPlayer(t *testing.T) (*wsPlayer, *Client) {
	logger := zaptest.NewLogger(t)
	client := &Client{
		send:   make(chan WriteData, 64),
		done:   make(chan struct{}),
		logger: logger,
	}
	return newWSPlayer(client, logger), client
}

func drain(client *Client) []WriteData {
	var frames []WriteData
	for {
		select {
		case frame := <-client.send:
			frames = append(frames, frame)
		default:
			return frames
		}
	}
}

func eventType(t *testing.T, frame WriteData) string {
	t.Helper()
	if frame.Type != websocket.TextMessage {
		t.Fatalf("Expected text frame, got type %d", frame.Type)
	}
	var event map[string]interface{}
	if err := sonic.Unmarshal(frame.Payload, &event); err != nil {
		t.Fatalf("Invalid event: %v", err)
	}
	return event["type"].(string)
}

func TestWSPlayer_StreamsClipInFrames(t *testing.T) {
	player, client := setupTestPlayer(t)

	clip := repositories.AudioClip{
		PlaybackID: "p-1",
		MessageKey: "Hello",
		Audio:      make([]byte, audioFrameSize*2+10),
		MimeType:   "audio/pcm",
	}
	handle, err := player.Play(context.Background(), clip)
	if err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	defer handle.Stop()

	frames := drain(client)
	if len(frames) != 5 {
		t.Fatalf("Expected start, 3 audio frames and end, got %d frames", len(frames))
	}
	if eventType(t, frames[0]) != string(MessageTypeSpeakingStart) {
		t.Error("Expected speaking_start first")
	}
	for _, frame := range frames[1:4] {
		if frame.Type != websocket.BinaryMessage {
			t.Errorf("Expected binary audio frame, got type %d", frame.Type)
		}
	}
	if len(frames[3].Payload) != 10 {
		t.Errorf("Expected 10 byte tail frame, got %d", len(frames[3].Payload))
	}
	if eventType(t, frames[4]) != string(MessageTypeSpeakingEnd) {
		t.Error("Expected speaking_end last")
	}
}

func TestWSPlayer_EndedClosesHandle(t *testing.T) {
	player, client := setupTestPlayer(t)

	handle, err := player.Play(context.Background(), repositories.AudioClip{
		PlaybackID: "p-1",
		Audio:      []byte("not really mp3"),
		MimeType:   "audio/ogg",
	})
	if err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	drain(client)

	if !player.ended("p-1") {
		t.Fatal("Expected playback to be known")
	}
	select {
	case <-handle.Done():
	case <-time.After(time.Second):
		t.Fatal("Expected handle to be done")
	}
	if player.ended("p-1") {
		t.Error("Finished playback should be forgotten")
	}

	handle.Stop()
	if frames := drain(client); len(frames) != 0 {
		t.Errorf("Stopping a finished playback should send nothing, got %d frames", len(frames))
	}
}

func TestWSPlayer_StopSendsSpeakingStop(t *testing.T) {
	player, client := setupTestPlayer(t)

	handle, err := player.Play(context.Background(), repositories.AudioClip{
		PlaybackID: "p-1",
		Audio:      make([]byte, 100),
		MimeType:   "audio/pcm",
	})
	if err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	drain(client)

	handle.Stop()
	handle.Stop()

	frames := drain(client)
	if len(frames) != 1 || eventType(t, frames[0]) != string(MessageTypeSpeakingStop) {
		t.Errorf("Expected a single speaking_stop, got %d frames", len(frames))
	}
	select {
	case <-handle.Done():
	default:
		t.Error("Expected handle to be done after Stop")
	}
}

func TestWSPlayer_Errors(t *testing.T) {
	player, client := setupTestPlayer(t)

	if _, err := player.Play(context.Background(), repositories.AudioClip{PlaybackID: "p-1"}); !errors.Is(err, errEmptyClip) {
		t.Errorf("Expected errEmptyClip, got %v", err)
	}

	close(client.done)
	_, err := player.Play(context.Background(), repositories.AudioClip{
		PlaybackID: "p-2",
		Audio:      make([]byte, 100),
		MimeType:   "audio/pcm",
	})
	if !errors.Is(err, errClientClosed) {
		t.Errorf("Expected errClientClosed, got %v", err)
	}
}

func TestWSPlayer_StopDoesNotWaitForFullBuffer(t *testing.T) {
	player, client := setupTestPlayer(t)

	handle, err := player.Play(context.Background(), repositories.AudioClip{
		PlaybackID: "p-1",
		Audio:      make([]byte, 100),
		MimeType:   "audio/pcm",
	})
	if err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	drain(client)
	for len(client.send) < cap(client.send) {
		client.send <- WriteData{Type: websocket.BinaryMessage}
	}

	stopped := make(chan struct{})
	go func() {
		handle.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Stop blocked on a full send buffer")
	}

	// the stop message is delivered once the writer catches up
	deadline := time.After(2 * time.Second)
	for {
		select {
		case frame := <-client.send:
			if frame.Type == websocket.TextMessage && eventType(t, frame) == string(MessageTypeSpeakingStop) {
				return
			}
		case <-deadline:
			t.Fatal("Expected speaking_stop after the buffer drained")
		}
	}
}
