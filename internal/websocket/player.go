package websocket

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/orbytt/voicedesk/domain/repositories"
	"github.com/orbytt/voicedesk/internal/audio"
)

const (
	// Size of the binary frames a clip is split into.
	audioFrameSize = 32 * 1024

	// Extra time given to the browser after the estimated clip length
	// before a playback is considered finished.
	playbackGrace = 2 * time.Second

	// Used when the clip length cannot be estimated.
	fallbackPlaybackTimeout = 5 * time.Minute
)

var errEmptyClip = errors.New("audio clip is empty")

// wsPlayer plays clips by streaming them to the browser tab. A playback
// ends when the tab reports playback_ended or the clip's estimated
// length has passed.
type wsPlayer struct {
	client *Client
	logger *zap.Logger

	mu      sync.Mutex
	handles map[string]*wsHandle
}

func newWSPlayer(client *Client, logger *zap.Logger) *wsPlayer {
	return &wsPlayer{
		client:  client,
		logger:  logger,
		handles: make(map[string]*wsHandle),
	}
}

// Play sends speaking_start, the audio frames and speaking_end
func (p *wsPlayer) Play(ctx context.Context, clip repositories.AudioClip) (repositories.PlaybackHandle, error) {
	if len(clip.Audio) == 0 {
		return nil, errEmptyClip
	}

	length, err := audio.Duration(clip.Audio, clip.MimeType)
	if err != nil {
		p.logger.Warn("Could not estimate clip length",
			zap.String("mimeType", clip.MimeType),
			zap.Error(err))
		length = fallbackPlaybackTimeout
	} else {
		length += playbackGrace
	}

	if err := p.client.sendJSON(&SpeakingStartMessage{
		BaseMessage: newBase(MessageTypeSpeakingStart),
		PlaybackID:  clip.PlaybackID,
		MessageKey:  clip.MessageKey,
		MimeType:    clip.MimeType,
		Bytes:       len(clip.Audio),
	}); err != nil {
		return nil, err
	}

	for offset := 0; offset < len(clip.Audio); offset += audioFrameSize {
		end := offset + audioFrameSize
		if end > len(clip.Audio) {
			end = len(clip.Audio)
		}
		if err := p.client.enqueue(WriteData{Type: websocket.BinaryMessage, Payload: clip.Audio[offset:end]}); err != nil {
			return nil, err
		}
	}

	if err := p.client.sendJSON(&SpeakingEndMessage{
		BaseMessage: newBase(MessageTypeSpeakingEnd),
		PlaybackID:  clip.PlaybackID,
	}); err != nil {
		return nil, err
	}

	h := &wsHandle{player: p, playbackID: clip.PlaybackID, done: make(chan struct{})}
	h.timer = time.AfterFunc(length, h.finish)
	p.mu.Lock()
	p.handles[clip.PlaybackID] = h
	p.mu.Unlock()

	p.logger.Debug("Clip streamed to client",
		zap.String("playbackID", clip.PlaybackID),
		zap.Int("bytes", len(clip.Audio)),
		zap.Duration("expectedLength", length))

	return h, nil
}

// ended is called when the client reports the end of a playback
func (p *wsPlayer) ended(playbackID string) bool {
	p.mu.Lock()
	h, ok := p.handles[playbackID]
	p.mu.Unlock()
	if !ok {
		return false
	}
	h.finish()
	return true
}

func (p *wsPlayer) forget(playbackID string) {
	p.mu.Lock()
	delete(p.handles, playbackID)
	p.mu.Unlock()
}

// wsHandle is the PlaybackHandle of one streamed clip
type wsHandle struct {
	player     *wsPlayer
	playbackID string
	timer      *time.Timer
	once       sync.Once
	done       chan struct{}
}

// Stop tells the client to stop the clip. Safe to call more than once and
// never waits for the socket; a full send buffer defers the message.
func (h *wsHandle) Stop() {
	h.once.Do(func() {
		h.release()
		stop := &SpeakingStopMessage{
			BaseMessage: newBase(MessageTypeSpeakingStop),
			PlaybackID:  h.playbackID,
		}
		client := h.player.client
		if err := client.trySendJSON(stop); errors.Is(err, errSendBufferFull) {
			go func() { _ = client.sendJSON(stop) }()
		}
	})
}

func (h *wsHandle) Done() <-chan struct{} {
	return h.done
}

func (h *wsHandle) finish() {
	h.once.Do(h.release)
}

func (h *wsHandle) release() {
	if h.timer != nil {
		h.timer.Stop()
	}
	h.player.forget(h.playbackID)
	close(h.done)
}
