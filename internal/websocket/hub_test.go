package websocket

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap/zaptest"

	"github.com/orbytt/voicedesk/adapters"
	"github.com/orbytt/voicedesk/domain"
	"github.com/orbytt/voicedesk/domain/entities"
	"github.com/orbytt/voicedesk/domain/repositories"
	"github.com/orbytt/voicedesk/usecase"
)

// 100ms of 16-bit mono audio at 24kHz
const testClipBytes = 4800

type stubAssistant struct {
	mu    sync.Mutex
	reply domain.AssistantReply
	err   error
}

func (a *stubAssistant) Process(ctx context.Context, text string) (domain.AssistantReply, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reply, a.err
}

type stubTTS struct{}

func (stubTTS) ConvertTextToSpeech(ctx context.Context, text string) (*repositories.Speech, error) {
	return &repositories.Speech{Audio: make([]byte, testClipBytes), MimeType: "audio/pcm"}, nil
}

type stubSTT struct {
	mu    sync.Mutex
	audio []byte
}

func (s *stubSTT) TranscribeAudio(ctx context.Context, audio []byte, config repositories.AudioConfig) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = append([]byte(nil), audio...)
	return "turn on the lights", nil
}

type testServer struct {
	hub       *Hub
	server    *httptest.Server
	store     *adapters.MemoryMessageStore
	assistant *stubAssistant
	stt       *stubSTT
}

func setupTestServer(t *testing.T) *testServer {
	return setupTestServerWithStore(t, func(store *adapters.MemoryMessageStore) repositories.MessageStore {
		return store
	})
}

// setupTestServerWithStore lets a test put a wrapper in front of the store
func setupTestServerWithStore(t *testing.T, wrap func(*adapters.MemoryMessageStore) repositories.MessageStore) *testServer {
	logger := zaptest.NewLogger(t)

	assistant := &stubAssistant{reply: domain.AssistantReply{Output: "Hello there", AgentName: "Mia"}}
	stt := &stubSTT{}
	memory := adapters.NewMemoryMessageStore(logger)
	store := wrap(memory)
	chat := usecase.NewChatService(store, assistant, usecase.ChatConfig{}, logger)
	transcriber := usecase.NewTranscriber(stt, usecase.TranscriberConfig{}, logger)

	hub := NewHub(chat, store, stubTTS{}, transcriber, HubConfig{SettleDelay: 10 * time.Millisecond}, logger)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	e := echo.New()
	e.GET("/ws", func(c echo.Context) error {
		return HandleWebSocketWithAuth(hub, c, c.QueryParam("client"), logger)
	})
	server := httptest.NewServer(e)

	t.Cleanup(func() {
		server.Close()
		cancel()
	})

	return &testServer{hub: hub, server: server, store: memory, assistant: assistant, stt: stt}
}

// testConn reads typed events off a dashboard connection
type testConn struct {
	t           *testing.T
	conn        *websocket.Conn
	binaryBytes int
}

func (s *testServer) dial(t *testing.T, clientID string) *testConn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws?client=" + clientID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	tc := &testConn{t: t, conn: conn}
	tc.expect(MessageTypeMessages)
	return tc
}

func (c *testConn) sendJSON(v map[string]interface{}) {
	c.t.Helper()
	payload, err := sonic.Marshal(v)
	if err != nil {
		c.t.Fatalf("Failed to encode message: %v", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.t.Fatalf("Failed to write message: %v", err)
	}
}

// expect reads until an event of the given type arrives, counting binary
// frames on the way
func (c *testConn) expect(want MessageType) map[string]interface{} {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	for {
		messageType, payload, err := c.conn.ReadMessage()
		if err != nil {
			c.t.Fatalf("Expected %s event, got read error: %v", want, err)
		}
		if messageType == websocket.BinaryMessage {
			c.binaryBytes += len(payload)
			continue
		}

		var event map[string]interface{}
		if err := sonic.Unmarshal(payload, &event); err != nil {
			c.t.Fatalf("Invalid event %s: %v", payload, err)
		}
		if event["type"] == string(want) {
			return event
		}
	}
}

func waitForCondition(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Condition not met within timeout")
}

func TestHub_NewHub(t *testing.T) {
	ts := setupTestServer(t)

	if ts.hub.clients == nil {
		t.Error("Hub clients map not initialized")
	}
	if ts.hub.register == nil || ts.hub.unregister == nil {
		t.Error("Hub channels not initialized")
	}
	if ts.hub.ClientCount() != 0 {
		t.Errorf("Expected no clients, got %d", ts.hub.ClientCount())
	}
}

func TestHub_SendMessageSpeaksReply(t *testing.T) {
	ts := setupTestServer(t)
	conn := ts.dial(t, "tab-1")

	conn.sendJSON(map[string]interface{}{"type": "send_message", "text": "hi"})

	start := conn.expect(MessageTypeSpeakingStart)
	if start["mime_type"] != "audio/pcm" {
		t.Errorf("Expected audio/pcm, got %v", start["mime_type"])
	}
	if start["message_key"] != "Hello there" {
		t.Errorf("Expected fingerprint key, got %v", start["message_key"])
	}

	end := conn.expect(MessageTypeSpeakingEnd)
	if end["playback_id"] != start["playback_id"] {
		t.Errorf("Expected matching playback ids, got %v and %v", start["playback_id"], end["playback_id"])
	}
	if conn.binaryBytes != testClipBytes {
		t.Errorf("Expected %d audio bytes, got %d", testClipBytes, conn.binaryBytes)
	}

	conn.sendJSON(map[string]interface{}{"type": "playback_ended", "playback_id": start["playback_id"]})
}

func TestHub_EveryClientHasItsOwnController(t *testing.T) {
	ts := setupTestServer(t)
	first := ts.dial(t, "tab-1")
	second := ts.dial(t, "tab-2")

	waitForCondition(t, func() bool { return ts.hub.ClientCount() == 2 })

	first.sendJSON(map[string]interface{}{"type": "send_message", "text": "hi"})

	first.expect(MessageTypeSpeakingStart)
	second.expect(MessageTypeSpeakingStart)
}

func TestHub_HistoryIsNotReadOnConnect(t *testing.T) {
	ts := setupTestServer(t)
	first := ts.dial(t, "tab-1")

	first.sendJSON(map[string]interface{}{"type": "send_message", "text": "hi"})
	first.expect(MessageTypeSpeakingStart)

	late := ts.dial(t, "tab-2")
	late.sendJSON(map[string]interface{}{"type": "ping"})
	late.conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	for {
		_, payload, err := late.conn.ReadMessage()
		if err != nil {
			t.Fatalf("Expected pong, got %v", err)
		}
		if strings.Contains(string(payload), string(MessageTypeSpeakingStart)) {
			t.Fatal("Conversation present at connect should not be spoken")
		}
		if strings.Contains(string(payload), string(MessageTypePong)) {
			return
		}
	}
}

func TestHub_TogglePlayback(t *testing.T) {
	ts := setupTestServer(t)
	conn := ts.dial(t, "tab-1")

	conn.sendJSON(map[string]interface{}{"type": "toggle_playback", "id": "msg-1", "text": "Read me"})

	start := conn.expect(MessageTypeSpeakingStart)
	if start["message_key"] != "msg-1" {
		t.Errorf("Expected message id as key, got %v", start["message_key"])
	}
	state := conn.expect(MessageTypePlaybackState)
	if state["playing"] != true {
		t.Errorf("Expected playing state, got %v", state)
	}

	conn.sendJSON(map[string]interface{}{"type": "toggle_playback", "id": "msg-1", "text": "Read me"})

	stop := conn.expect(MessageTypeSpeakingStop)
	if stop["playback_id"] != start["playback_id"] {
		t.Errorf("Expected stop of %v, got %v", start["playback_id"], stop["playback_id"])
	}
	state = conn.expect(MessageTypePlaybackState)
	if state["playing"] != false {
		t.Errorf("Expected stopped state, got %v", state)
	}
}

func TestHub_BlankManualPlaybackReportsError(t *testing.T) {
	ts := setupTestServer(t)
	conn := ts.dial(t, "tab-1")

	conn.sendJSON(map[string]interface{}{"type": "toggle_playback", "id": "msg-1", "text": "  "})

	event := conn.expect(MessageTypeError)
	if event["error_code"] != ErrorCodePlayback {
		t.Errorf("Expected %s, got %v", ErrorCodePlayback, event["error_code"])
	}
}

func TestHub_VoiceCapture(t *testing.T) {
	ts := setupTestServer(t)
	conn := ts.dial(t, "tab-1")

	conn.sendJSON(map[string]interface{}{"type": "listening_start", "mime_type": "audio/ogg"})
	state := conn.expect(MessageTypeCaptureState)
	if state["state"] != "recording" {
		t.Fatalf("Expected recording, got %v", state["state"])
	}

	if err := conn.conn.WriteMessage(websocket.BinaryMessage, []byte("chunk-1")); err != nil {
		t.Fatalf("Failed to write audio: %v", err)
	}
	if err := conn.conn.WriteMessage(websocket.BinaryMessage, []byte("chunk-2")); err != nil {
		t.Fatalf("Failed to write audio: %v", err)
	}
	conn.sendJSON(map[string]interface{}{"type": "listening_end"})

	result := conn.expect(MessageTypeTranscription)
	if result["text"] != "turn on the lights" || result["succeeded"] != true {
		t.Errorf("Unexpected transcription %v", result)
	}

	ts.stt.mu.Lock()
	defer ts.stt.mu.Unlock()
	if string(ts.stt.audio) != "chunk-1chunk-2" {
		t.Errorf("Expected concatenated chunks, got %q", ts.stt.audio)
	}
}

func TestHub_ListeningEndWithoutRecording(t *testing.T) {
	ts := setupTestServer(t)
	conn := ts.dial(t, "tab-1")

	conn.sendJSON(map[string]interface{}{"type": "listening_end"})

	event := conn.expect(MessageTypeError)
	if event["error_code"] != ErrorCodeCapture {
		t.Errorf("Expected %s, got %v", ErrorCodeCapture, event["error_code"])
	}
}

func TestHub_BackendFailure(t *testing.T) {
	ts := setupTestServer(t)
	ts.assistant.err = errors.New("unexpected response")
	conn := ts.dial(t, "tab-1")

	conn.sendJSON(map[string]interface{}{"type": "send_message", "text": "hi"})

	event := conn.expect(MessageTypeError)
	if event["error_code"] != ErrorCodeBackend {
		t.Errorf("Expected %s, got %v", ErrorCodeBackend, event["error_code"])
	}
	if !strings.Contains(event["message"].(string), "fallback") {
		t.Errorf("Expected connection description, got %v", event["message"])
	}
}

func TestHub_ResetConversation(t *testing.T) {
	ts := setupTestServer(t)
	conn := ts.dial(t, "tab-1")

	conn.sendJSON(map[string]interface{}{"type": "send_message", "text": "hi"})
	conn.expect(MessageTypeSpeakingStart)

	conn.sendJSON(map[string]interface{}{"type": "reset_conversation"})
	for {
		event := conn.expect(MessageTypeMessages)
		if messages, ok := event["messages"].([]interface{}); ok && len(messages) == 0 {
			return
		}
	}
}

func TestHub_InvalidMessage(t *testing.T) {
	ts := setupTestServer(t)
	conn := ts.dial(t, "tab-1")

	conn.sendJSON(map[string]interface{}{"type": "device_status"})

	event := conn.expect(MessageTypeError)
	if event["error_code"] != ErrorCodeInvalidMessage {
		t.Errorf("Expected %s, got %v", ErrorCodeInvalidMessage, event["error_code"])
	}
}

func TestHub_Ping(t *testing.T) {
	ts := setupTestServer(t)
	conn := ts.dial(t, "tab-1")

	conn.sendJSON(map[string]interface{}{"type": "ping", "data": "hello"})

	pong := conn.expect(MessageTypePong)
	if pong["data"] != "hello" {
		t.Errorf("Expected data 'hello', got %v", pong["data"])
	}
}

func TestHub_UnregisterOnClose(t *testing.T) {
	ts := setupTestServer(t)
	conn := ts.dial(t, "tab-1")

	waitForCondition(t, func() bool { return ts.hub.ClientCount() == 1 })
	conn.conn.Close()
	waitForCondition(t, func() bool { return ts.hub.ClientCount() == 0 })
}

func TestHub_CloseIdle(t *testing.T) {
	ts := setupTestServer(t)
	conn := ts.dial(t, "tab-1")
	waitForCondition(t, func() bool { return ts.hub.ClientCount() == 1 })

	if closed := ts.hub.closeIdle(time.Minute); closed != 0 {
		t.Fatalf("Expected no idle clients, got %d", closed)
	}

	ts.hub.mu.RLock()
	client := ts.hub.clients["tab-1"]
	ts.hub.mu.RUnlock()
	client.lastActive.Store(time.Now().Add(-time.Hour).UnixNano())

	if closed := ts.hub.closeIdle(time.Minute); closed != 1 {
		t.Fatalf("Expected 1 idle client, got %d", closed)
	}

	conn.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.conn.ReadMessage(); err != nil {
			break
		}
	}
	waitForCondition(t, func() bool { return ts.hub.ClientCount() == 0 })
}

// lateAppendStore appends a reply right after a client subscribes
type lateAppendStore struct {
	*adapters.MemoryMessageStore
	once sync.Once
}

func (s *lateAppendStore) SubscribeWithSnapshot(listener repositories.MessageListener) ([]entities.Message, func()) {
	snapshot, unsubscribe := s.MemoryMessageStore.SubscribeWithSnapshot(listener)
	s.once.Do(func() {
		go func() {
			_, _ = s.Append(context.Background(), entities.Message{Text: "Reply that landed while connecting"})
		}()
	})
	return snapshot, unsubscribe
}

func TestHub_UpdateDuringConnectIsDelivered(t *testing.T) {
	ts := setupTestServerWithStore(t, func(store *adapters.MemoryMessageStore) repositories.MessageStore {
		return &lateAppendStore{MemoryMessageStore: store}
	})
	conn := ts.dial(t, "tab-1")

	update := conn.expect(MessageTypeMessages)
	messages, _ := update["messages"].([]interface{})
	if len(messages) != 1 {
		t.Fatalf("Expected the late reply in the conversation, got %v", update["messages"])
	}

	start := conn.expect(MessageTypeSpeakingStart)
	if start["message_key"] != "Reply that landed while connecting" {
		t.Errorf("Expected the late reply to be spoken, got %v", start["message_key"])
	}
}

func TestHub_StalledClientDoesNotBlockStore(t *testing.T) {
	ts := setupTestServer(t)

	// a client without pumps never drains its send buffer
	client := newClient(ts.hub, nil, "stalled", zaptest.NewLogger(t))
	t.Cleanup(client.shutdown)
	close(client.ready)
	unsubscribe := ts.store.Subscribe(client.onStoreUpdated)
	defer unsubscribe()

	for len(client.send) < cap(client.send) {
		client.send <- WriteData{Type: websocket.BinaryMessage}
	}

	appended := make(chan error, 1)
	go func() {
		_, err := ts.store.Append(context.Background(), entities.Message{Text: "hi", IsUser: true})
		appended <- err
	}()

	select {
	case err := <-appended:
		if err != nil {
			t.Errorf("Append failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Append blocked behind a stalled client")
	}
}
