package usecase

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/orbytt/voicedesk/domain/entities"
	"github.com/orbytt/voicedesk/domain/repositories"
	"github.com/orbytt/voicedesk/internal/metrics"
)

// DefaultSettleDelay is the wait between an automatic trigger and the
// synthesis call, so the dashboard can finish rendering the new message.
const DefaultSettleDelay = 800 * time.Millisecond

// scheduleFunc runs fn once after d. The returned function cancels the run.
type scheduleFunc func(d time.Duration, fn func()) (stop func() bool)

func afterFunc(d time.Duration, fn func()) func() bool {
	return time.AfterFunc(d, fn).Stop
}

// PlaybackConfig holds configuration for a PlaybackController
type PlaybackConfig struct {
	SettleDelay time.Duration // Optional: defaults to DefaultSettleDelay
}

// pendingPlayback is the cancellation token of a scheduled automatic playback
type pendingPlayback struct {
	ctx    context.Context
	cancel context.CancelFunc
	stop   func() bool
}

func (p *pendingPlayback) abort() {
	if p.stop != nil {
		p.stop()
	}
	p.cancel()
}

// activePlayback owns the session and, once playing, its audio handle
type activePlayback struct {
	session *entities.PlaybackSession
	handle  repositories.PlaybackHandle
	cancel  context.CancelFunc
}

// PlaybackController decides when assistant messages are spoken. It plays
// the newest assistant message once per fingerprint and lets the user toggle
// playback of any message by id. At most one session is active at a time.
//
// The played set lives as long as the controller; it is never cleared by
// message store changes.
type PlaybackController struct {
	tts         repositories.TextToSpeech
	player      repositories.AudioPlayer
	settleDelay time.Duration
	schedule    scheduleFunc
	logger      *zap.Logger

	mu            sync.Mutex
	played        map[string]struct{}
	lastDisplayed string
	displayed     bool
	pending       *pendingPlayback
	active        *activePlayback
	errorHandlers []func(message string)
	closed        bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewPlaybackController creates a playback controller with an empty played set
func NewPlaybackController(
	tts repositories.TextToSpeech,
	player repositories.AudioPlayer,
	config PlaybackConfig,
	logger *zap.Logger,
) *PlaybackController {
	settleDelay := config.SettleDelay
	if settleDelay <= 0 {
		settleDelay = DefaultSettleDelay
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &PlaybackController{
		tts:         tts,
		player:      player,
		settleDelay: settleDelay,
		schedule:    afterFunc,
		logger:      logger,
		played:      make(map[string]struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// OnError registers a callback receiving user-facing failure messages
func (c *PlaybackController) OnError(handler func(message string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorHandlers = append(c.errorHandlers, handler)
}

// OnStoreUpdated evaluates the automatic trigger against a message store
// snapshot. The host calls it after every store update.
func (c *PlaybackController) OnStoreUpdated(snapshot []entities.Message) {
	message, ok := entities.LastAssistantMessage(snapshot)
	if !ok {
		return
	}
	fingerprint := message.Fingerprint()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	if c.displayed && fingerprint == c.lastDisplayed {
		metrics.PlaybackSkipped.WithLabelValues("displayed").Inc()
		return
	}

	if _, seen := c.played[fingerprint]; seen {
		c.logger.Debug("Message already played, skipping", zap.String("fingerprint", preview(fingerprint)))
		metrics.PlaybackSkipped.WithLabelValues("played").Inc()
		return
	}

	c.lastDisplayed = fingerprint
	c.displayed = true
	c.played[fingerprint] = struct{}{}

	c.cancelPendingLocked()
	c.stopActiveLocked()

	text := message.SpeakableText()
	if text == "" {
		metrics.PlaybackSkipped.WithLabelValues("blank").Inc()
		return
	}

	ctx, cancel := context.WithCancel(c.ctx)
	pending := &pendingPlayback{ctx: ctx, cancel: cancel}
	c.pending = pending
	pending.stop = c.schedule(c.settleDelay, func() {
		c.runPending(pending, fingerprint, text)
	})

	c.logger.Info("Scheduled automatic playback",
		zap.String("fingerprint", preview(fingerprint)),
		zap.Duration("settleDelay", c.settleDelay))
}

// Seed records the snapshot a client connected with as already displayed
// and played, so restored history is not read aloud on connect.
func (c *PlaybackController) Seed(snapshot []entities.Message) {
	message, ok := entities.LastAssistantMessage(snapshot)
	if !ok {
		return
	}
	fingerprint := message.Fingerprint()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastDisplayed = fingerprint
	c.displayed = true
	c.played[fingerprint] = struct{}{}
}

// runPending starts a scheduled automatic playback unless its token was
// cancelled or replaced in the meantime
func (c *PlaybackController) runPending(pending *pendingPlayback, fingerprint, text string) {
	c.mu.Lock()
	if c.pending != pending || pending.ctx.Err() != nil {
		c.mu.Unlock()
		metrics.PlaybackSkipped.WithLabelValues("superseded").Inc()
		return
	}
	c.pending = nil

	ap := &activePlayback{
		session: entities.NewPlaybackSession(fingerprint, entities.PlaybackOriginAuto),
		cancel:  pending.cancel,
	}
	c.active = ap
	c.mu.Unlock()

	if err := c.play(pending.ctx, ap, text); err != nil {
		c.logger.Error("Automatic playback failed",
			zap.String("fingerprint", preview(fingerprint)),
			zap.Error(err))
	}
}

// TriggerManualPlayback toggles playback of the message identified by id.
// If that message is the active session it is stopped and no synthesis
// happens. Otherwise any active session is stopped and text is spoken.
func (c *PlaybackController) TriggerManualPlayback(ctx context.Context, text, id string) error {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		return ErrControllerClosed
	}

	if ap := c.active; ap != nil && ap.session.Key == id && ap.session.IsActive() {
		c.stopActiveLocked()
		ap.session.Reset()
		c.mu.Unlock()
		c.logger.Info("Manual playback stopped", zap.String("messageID", id))
		return nil
	}

	c.cancelPendingLocked()
	c.stopActiveLocked()

	text = strings.TrimSpace(text)
	if text == "" {
		handlers := c.errorHandlersLocked()
		c.mu.Unlock()
		err := &PlaybackError{Op: PlaybackOpSynthesize, Err: ErrNothingToSpeak}
		notify(handlers, err.UserMessage())
		return err
	}

	playCtx, cancel := context.WithCancel(ctx)
	ap := &activePlayback{
		session: entities.NewPlaybackSession(id, entities.PlaybackOriginManual),
		cancel:  cancel,
	}
	c.active = ap
	c.mu.Unlock()

	return c.play(playCtx, ap, text)
}

// IsPlaying reports whether the message identified by id is playing
func (c *PlaybackController) IsPlaying(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil &&
		c.active.session.Key == id &&
		c.active.session.State == entities.PlaybackStatePlaying
}

// ActiveSession returns a copy of the active session, if any
func (c *PlaybackController) ActiveSession() (entities.PlaybackSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return entities.PlaybackSession{}, false
	}
	return *c.active.session, true
}

// Close cancels any scheduled playback and stops the active one. The
// controller ignores every call made after Close.
func (c *PlaybackController) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cancelPendingLocked()
	c.stopActiveLocked()
	c.mu.Unlock()

	c.cancel()
}

// play synthesizes text and starts playback for ap. A session that was
// stopped or replaced while synthesizing or starting is dropped silently.
func (c *PlaybackController) play(ctx context.Context, ap *activePlayback, text string) error {
	origin := string(ap.session.Origin)

	speech, err := c.tts.ConvertTextToSpeech(ctx, text)

	c.mu.Lock()
	if c.active != ap {
		c.mu.Unlock()
		c.logger.Debug("Playback superseded during synthesis", zap.String("sessionID", ap.session.ID))
		return nil
	}

	if err != nil {
		metrics.SynthesisRequests.WithLabelValues(origin, "error").Inc()
		return c.failLocked(ap, &PlaybackError{Op: PlaybackOpSynthesize, Err: err})
	}
	metrics.SynthesisRequests.WithLabelValues(origin, "ok").Inc()
	clip := repositories.AudioClip{
		PlaybackID: ap.session.ID,
		MessageKey: ap.session.Key,
		Audio:      speech.Audio,
		MimeType:   speech.MimeType,
	}
	c.mu.Unlock()

	// the player may block while streaming; store updates must not wait on it
	handle, err := c.player.Play(ctx, clip)

	c.mu.Lock()
	if c.active != ap {
		c.mu.Unlock()
		if handle != nil {
			handle.Stop()
		}
		c.logger.Debug("Playback superseded while starting", zap.String("sessionID", ap.session.ID))
		return nil
	}
	if err != nil {
		return c.failLocked(ap, &PlaybackError{Op: PlaybackOpPlay, Err: err})
	}

	ap.handle = handle
	ap.session.Start()
	c.mu.Unlock()

	metrics.PlaybackStarts.WithLabelValues(origin).Inc()
	c.logger.Info("Playback started",
		zap.String("sessionID", ap.session.ID),
		zap.String("origin", origin),
		zap.Int("audioBytes", len(speech.Audio)))

	go c.watch(ap)
	return nil
}

// failLocked returns ap to idle and reports err. It releases c.mu.
func (c *PlaybackController) failLocked(ap *activePlayback, err *PlaybackError) error {
	ap.session.Reset()
	ap.cancel()
	c.active = nil
	handlers := c.errorHandlersLocked()
	c.mu.Unlock()

	notify(handlers, err.UserMessage())
	return err
}

// watch ends the session when its playback finishes on its own
func (c *PlaybackController) watch(ap *activePlayback) {
	<-ap.handle.Done()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != ap {
		return
	}
	ap.session.End()
	ap.cancel()
	c.active = nil
	c.logger.Debug("Playback ended", zap.String("sessionID", ap.session.ID))
}

func (c *PlaybackController) cancelPendingLocked() {
	if c.pending == nil {
		return
	}
	c.pending.abort()
	c.pending = nil
}

// stopActiveLocked releases the active session. A session still loading
// goes back to idle, a playing one ends.
func (c *PlaybackController) stopActiveLocked() {
	ap := c.active
	if ap == nil {
		return
	}
	c.active = nil
	ap.cancel()
	if ap.handle != nil {
		ap.handle.Stop()
	}
	if ap.session.State == entities.PlaybackStateLoading {
		ap.session.Reset()
	} else {
		ap.session.End()
	}
}

func (c *PlaybackController) errorHandlersLocked() []func(string) {
	handlers := make([]func(string), len(c.errorHandlers))
	copy(handlers, c.errorHandlers)
	return handlers
}

func notify(handlers []func(string), message string) {
	for _, handler := range handlers {
		handler(message)
	}
}

func preview(text string) string {
	const limit = 20
	r := []rune(text)
	if len(r) <= limit {
		return text
	}
	return string(r[:limit]) + "..."
}
