package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/orbytt/voicedesk/domain/entities"
	"github.com/orbytt/voicedesk/domain/repositories"
	"github.com/orbytt/voicedesk/internal/metrics"
	"github.com/orbytt/voicedesk/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio chunks
)

var (
	errClientClosed   = errors.New("client connection closed")
	errHubStopped     = errors.New("hub is not running")
	errSendBufferFull = errors.New("client send buffer is full")
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// dashboard tabs authenticate with a token, not an origin
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// HubConfig holds configuration for a Hub
type HubConfig struct {
	SettleDelay time.Duration // Optional: settle delay of every client's playback controller
}

// Hub maintains the set of connected dashboard clients. Every client owns
// its own playback controller and speech capture; the conversation store
// is shared.
type Hub struct {
	// Registered clients.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Closed when Run returns.
	stopped chan struct{}

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	chat        *usecase.ChatService
	store       repositories.MessageStore
	tts         repositories.TextToSpeech
	transcriber *usecase.Transcriber
	config      HubConfig

	logger *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(
	chat *usecase.ChatService,
	store repositories.MessageStore,
	tts repositories.TextToSpeech,
	transcriber *usecase.Transcriber,
	config HubConfig,
	logger *zap.Logger,
) *Hub {
	return &Hub{
		clients:     make(map[string]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		stopped:     make(chan struct{}),
		chat:        chat,
		store:       store,
		tts:         tts,
		transcriber: transcriber,
		config:      config,
		logger:      logger,
	}
}

// Run starts the hub's main loop. When ctx is done every client is
// disconnected and Run returns.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.clientID] = client
			h.mu.Unlock()
			metrics.WebSocketConnections.Inc()
			h.logger.Info("Client registered", zap.String("clientID", client.clientID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.clientID]; ok {
				delete(h.clients, client.clientID)
				metrics.WebSocketConnections.Dec()
			}
			h.mu.Unlock()
			client.shutdown()
			h.logger.Info("Client unregistered", zap.String("clientID", client.clientID))

		case <-ctx.Done():
			h.mu.Lock()
			for id, client := range h.clients {
				delete(h.clients, id)
				metrics.WebSocketConnections.Dec()
				client.shutdown()
			}
			h.mu.Unlock()
			h.logger.Info("Hub stopped")
			return
		}
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeIdle disconnects clients that sent nothing for longer than maxIdle
func (h *Hub) closeIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	h.mu.RLock()
	var idle []*Client
	for _, client := range h.clients {
		if client.lastSeen().Before(cutoff) {
			idle = append(idle, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range idle {
		client.logger.Info("Closing idle client", zap.Time("lastSeen", client.lastSeen()))
		client.shutdown()
	}
	return len(idle)
}

func (h *Hub) join(c *Client) error {
	select {
	case h.register <- c:
		return nil
	case <-h.stopped:
		return errHubStopped
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stopped:
		c.shutdown()
	}
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	// Closed on shutdown; senders give up instead of blocking.
	done      chan struct{}
	closeOnce sync.Once

	// Closed once the client has its initial conversation.
	ready chan struct{}

	clientID string
	logger   *zap.Logger

	validator  *MessageValidator
	controller *usecase.PlaybackController
	capture    *usecase.SpeechCapture
	recorder   *chunkRecorder
	player     *wsPlayer

	mu          sync.Mutex
	unsubscribe func()
	lastActive  atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
}

func newClient(hub *Hub, conn *websocket.Conn, clientID string, logger *zap.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	logger = logger.With(zap.String("clientID", clientID))

	c := &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan WriteData, 256),
		done:      make(chan struct{}),
		ready:     make(chan struct{}),
		clientID:  clientID,
		logger:    logger,
		validator: NewMessageValidator(),
		recorder:  newChunkRecorder(),
		ctx:       ctx,
		cancel:    cancel,
	}
	c.touch()

	c.player = newWSPlayer(c, logger)
	c.controller = usecase.NewPlaybackController(hub.tts, c.player, usecase.PlaybackConfig{
		SettleDelay: hub.config.SettleDelay,
	}, logger)
	c.controller.OnError(func(message string) {
		c.sendError(ErrorCodePlayback, message, "")
	})

	c.capture = usecase.NewSpeechCapture(c.recorder, hub.transcriber, logger)
	c.capture.OnStateChange(func(state entities.CaptureState) {
		_ = c.sendJSON(&CaptureStateMessage{
			BaseMessage: newBase(MessageTypeCaptureState),
			State:       state,
		})
	})

	return c
}

// HandleWebSocketWithAuth handles websocket requests from an authenticated dashboard client
func HandleWebSocketWithAuth(hub *Hub, c echo.Context, clientID string, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := newClient(hub, conn, clientID, logger)
	if err := hub.join(client); err != nil {
		logger.Warn("Rejecting client", zap.String("clientID", clientID), zap.Error(err))
		client.shutdown()
		conn.Close()
		return nil
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	client.attach()
	go client.readPump()

	return nil
}

// attach subscribes to store updates and sends the conversation as it was
// at that moment. The conversation the client connects with is never read
// aloud; updates wait until it has been sent.
func (c *Client) attach() {
	defer close(c.ready)

	snapshot, unsubscribe := c.hub.store.SubscribeWithSnapshot(c.onStoreUpdated)
	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		unsubscribe()
		return
	default:
		c.unsubscribe = unsubscribe
	}
	c.mu.Unlock()

	c.controller.Seed(snapshot)
	_ = c.sendJSON(CreateMessagesMessage(snapshot))
}

// readPump pumps messages from the websocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			c.processMessage(message)
		case websocket.BinaryMessage:
			c.processBinaryAudioChunk(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				c.shutdown()
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown()
				return
			}
		}
	}
}

// processMessage processes incoming control messages from the dashboard
func (c *Client) processMessage(message []byte) {
	c.touch()

	msg, err := c.validator.ValidateMessage(message)
	if err != nil {
		c.logger.Warn("Invalid message", zap.Error(err))
		c.sendError(ErrorCodeInvalidMessage, "Invalid message", err.Error())
		return
	}

	switch m := msg.(type) {
	case *SendMessageMessage:
		go c.handleSendMessage(m.Text)
	case *TogglePlaybackMessage:
		go c.handleTogglePlayback(m.ID, m.Text)
	case *ListeningStartMessage:
		c.handleListeningStart(m.MimeType)
	case *ListeningEndMessage:
		go c.handleListeningEnd()
	case *ListeningCancelMessage:
		c.capture.Cancel(c.ctx)
	case *PlaybackEndedMessage:
		if !c.player.ended(m.PlaybackID) {
			c.logger.Debug("Playback already finished", zap.String("playbackID", m.PlaybackID))
		}
	case *ResetConversationMessage:
		go c.handleReset()
	case *PingMessage:
		_ = c.sendJSON(CreatePongMessage(m.Data))
	}
}

// processBinaryAudioChunk appends microphone audio to the running recording
func (c *Client) processBinaryAudioChunk(data []byte) {
	c.touch()

	if err := c.recorder.Write(data); err != nil {
		if errors.Is(err, errNotRecording) {
			c.logger.Warn("Received binary audio chunk but no recording is running", zap.Int("size", len(data)))
			return
		}
		c.logger.Error("Failed to buffer audio chunk", zap.Error(err))
		c.sendError(ErrorCodeCapture, "Recording is too long", err.Error())
		c.capture.Cancel(c.ctx)
		return
	}

	c.logger.Debug("Buffered audio chunk", zap.Int("size", len(data)))
}

func (c *Client) handleSendMessage(text string) {
	_, err := c.hub.chat.SendMessage(c.ctx, text)
	if err == nil {
		return
	}

	var connErr *usecase.ConnectionError
	if errors.As(err, &connErr) {
		c.sendError(ErrorCodeBackend, connErr.Description, "")
		return
	}
	c.logger.Error("Failed to send message", zap.Error(err))
	c.sendError(ErrorCodeInternal, "Failed to send message", err.Error())
}

func (c *Client) handleTogglePlayback(id, text string) {
	// failures reach the client through the controller's error handler
	if err := c.controller.TriggerManualPlayback(c.ctx, text, id); err != nil {
		c.logger.Warn("Manual playback failed", zap.String("messageID", id), zap.Error(err))
	}

	_ = c.sendJSON(&PlaybackStateMessage{
		BaseMessage: newBase(MessageTypePlaybackState),
		ID:          id,
		Playing:     c.controller.IsPlaying(id),
	})
}

func (c *Client) handleListeningStart(mimeType string) {
	if c.capture.State() != entities.CaptureStateIdle {
		c.sendError(ErrorCodeCapture, "A recording is already in progress", "")
		return
	}

	c.recorder.SetMimeType(mimeType)
	if err := c.capture.Start(c.ctx); err != nil {
		c.sendError(ErrorCodeCapture, "Could not start recording", err.Error())
	}
}

func (c *Client) handleListeningEnd() {
	result, err := c.capture.Stop(c.ctx)
	switch {
	case errors.Is(err, usecase.ErrNotRecording):
		c.sendError(ErrorCodeCapture, "No recording in progress", "")
		return
	case err != nil:
		c.sendError(ErrorCodeCapture, "Could not finish recording", err.Error())
		return
	}

	_ = c.sendJSON(CreateTranscriptionMessage(result))
}

func (c *Client) handleReset() {
	if err := c.hub.chat.Reset(c.ctx); err != nil {
		c.logger.Error("Failed to reset conversation", zap.Error(err))
		c.sendError(ErrorCodeInternal, "Failed to reset conversation", err.Error())
	}
}

// onStoreUpdated feeds the playback controller and mirrors the conversation.
// It runs on the store writer's goroutine, so it never waits on the socket;
// a dropped snapshot is superseded by the next one.
func (c *Client) onStoreUpdated(snapshot []entities.Message) {
	select {
	case <-c.ready:
	case <-c.done:
		return
	}

	c.controller.OnStoreUpdated(snapshot)
	if err := c.trySendJSON(CreateMessagesMessage(snapshot)); err != nil {
		c.logger.Warn("Dropped conversation update", zap.Int("messages", len(snapshot)), zap.Error(err))
	}
}

func (c *Client) sendJSON(v interface{}) error {
	payload, err := sonic.Marshal(v)
	if err != nil {
		c.logger.Error("Failed to encode message", zap.Error(err))
		return err
	}
	return c.enqueue(WriteData{Type: websocket.TextMessage, Payload: payload})
}

// trySendJSON is sendJSON without waiting for room in the send buffer
func (c *Client) trySendJSON(v interface{}) error {
	payload, err := sonic.Marshal(v)
	if err != nil {
		c.logger.Error("Failed to encode message", zap.Error(err))
		return err
	}

	select {
	case <-c.done:
		return errClientClosed
	default:
	}

	select {
	case c.send <- WriteData{Type: websocket.TextMessage, Payload: payload}:
		return nil
	default:
		return errSendBufferFull
	}
}

func (c *Client) sendError(code, message, details string) {
	_ = c.sendJSON(CreateErrorMessage(code, message, details))
}

// enqueue hands data to the write pump, or fails once the client is closed
func (c *Client) enqueue(data WriteData) error {
	select {
	case <-c.done:
		return errClientClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return errClientClosed
	}
}

func (c *Client) touch() {
	c.lastActive.Store(time.Now().UnixNano())
}

func (c *Client) lastSeen() time.Time {
	return time.Unix(0, c.lastActive.Load())
}

// shutdown releases everything the client owns. Safe to call more than once.
func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.cancel()

		c.mu.Lock()
		unsubscribe := c.unsubscribe
		c.mu.Unlock()
		if unsubscribe != nil {
			unsubscribe()
		}

		c.controller.Close()
		c.capture.Cancel(context.Background())
		c.logger.Debug("Client resources released")
	})
}
