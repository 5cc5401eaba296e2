// Command voicedesk-cli is a terminal dashboard client. It sends a message
// or a recorded audio file over the WebSocket protocol, prints every event
// and saves spoken replies to disk.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	ClientID  string    `json:"client_id"`
}

func main() {
	server := flag.String("server", "http://localhost:8080", "voicedesk server URL")
	accessKey := flag.String("access-key", os.Getenv("DASHBOARD_ACCESS_KEY"), "dashboard access key")
	text := flag.String("text", "", "message to send")
	audioPath := flag.String("audio", "", "audio file to send as a recording")
	mimeType := flag.String("mime", "audio/wav", "MIME type of the audio file")
	outDir := flag.String("out", "audio_responses", "directory for received speech")
	wait := flag.Duration("wait", 30*time.Second, "how long to wait for replies")
	flag.Parse()

	token, clientID, err := authenticate(*server, *accessKey)
	if err != nil {
		log.Fatal("Failed to authenticate:", err)
	}
	log.Printf("Authenticated as %s", clientID)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	u, err := url.Parse(*server)
	if err != nil {
		log.Fatal("invalid server URL:", err)
	}
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path = "/ws"

	headers := http.Header{}
	headers.Add("Authorization", "Bearer "+token)

	c, _, err := websocket.DefaultDialer.Dial(u.String(), headers)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer c.Close()

	done := make(chan struct{})
	go handleIncomingMessages(c, *outDir, done)

	switch {
	case *audioPath != "":
		if err := sendRecording(c, *audioPath, *mimeType); err != nil {
			log.Printf("Error sending recording: %v", err)
		}
	case *text != "":
		if err := sendJSONMessage(c, map[string]interface{}{"type": "send_message", "text": *text}); err != nil {
			log.Printf("Error sending message: %v", err)
		}
	default:
		if err := sendJSONMessage(c, map[string]interface{}{"type": "ping", "data": "voicedesk-cli"}); err != nil {
			log.Printf("Error sending ping: %v", err)
		}
	}

	select {
	case <-done:
		return
	case <-time.After(*wait):
	case <-interrupt:
		log.Println("interrupt")
	}

	// Cleanly close the connection by sending a close message and then
	// waiting (with timeout) for the server to close the connection.
	err = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		log.Println("write close:", err)
		return
	}
	select {
	case <-done:
	case <-time.After(time.Second):
	}
}

func authenticate(server, accessKey string) (string, string, error) {
	body, err := sonic.Marshal(map[string]string{"client_name": "voicedesk-cli", "access_key": accessKey})
	if err != nil {
		return "", "", err
	}

	resp, err := http.Post(server+"/api/v1/auth/token", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("authentication failed: %s", string(respBody))
	}

	var tokenResp tokenResponse
	if err := sonic.Unmarshal(respBody, &tokenResp); err != nil {
		return "", "", err
	}
	return tokenResp.Token, tokenResp.ClientID, nil
}

// sendRecording replays an audio file as microphone chunks
func sendRecording(c *websocket.Conn, path, mimeType string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	log.Printf("Read audio file: %s (%d bytes)", path, len(data))

	if err := sendJSONMessage(c, map[string]interface{}{"type": "listening_start", "mime_type": mimeType}); err != nil {
		return err
	}

	const chunkSize = 16 * 1024
	for start := 0; start < len(data); start += chunkSize {
		end := start + chunkSize
		if end > len(data) {
			end = len(data)
		}
		if err := c.WriteMessage(websocket.BinaryMessage, data[start:end]); err != nil {
			return fmt.Errorf("failed to send audio chunk: %w", err)
		}
	}

	return sendJSONMessage(c, map[string]interface{}{"type": "listening_end"})
}

func sendJSONMessage(c *websocket.Conn, message map[string]interface{}) error {
	data, err := sonic.Marshal(message)
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.TextMessage, data)
}

func handleIncomingMessages(c *websocket.Conn, outDir string, done chan struct{}) {
	defer close(done)

	var audioFile *os.File
	var chunkCount int

	for {
		messageType, message, err := c.ReadMessage()
		if err != nil {
			log.Println("read:", err)
			return
		}

		if messageType == websocket.BinaryMessage {
			chunkCount++
			if audioFile != nil {
				if _, err := audioFile.Write(message); err != nil {
					log.Printf("Error writing audio chunk to file: %v", err)
				}
			}
			continue
		}

		var msg map[string]interface{}
		if err := sonic.Unmarshal(message, &msg); err != nil {
			log.Println("unmarshal error:", err)
			continue
		}

		switch msg["type"] {
		case "speaking_start":
			chunkCount = 0
			audioFile, err = createAudioFile(outDir, fmt.Sprint(msg["playback_id"]), fmt.Sprint(msg["mime_type"]))
			if err != nil {
				log.Printf("Error creating audio file: %v", err)
			}
		case "speaking_end":
			if audioFile != nil {
				log.Printf("Saved reply to %s (%d chunks)", audioFile.Name(), chunkCount)
				audioFile.Close()
				audioFile = nil
			}
			// nothing is played here, so the clip is done as soon as it arrived
			_ = sendJSONMessage(c, map[string]interface{}{"type": "playback_ended", "playback_id": msg["playback_id"]})
		case "messages":
			if messages, ok := msg["messages"].([]interface{}); ok && len(messages) > 0 {
				last, _ := messages[len(messages)-1].(map[string]interface{})
				log.Printf("Conversation: %d messages, last: %v", len(messages), last["text"])
			}
		case "transcription":
			log.Printf("Transcription: %v", msg["text"])
			if msg["succeeded"] == true {
				_ = sendJSONMessage(c, map[string]interface{}{"type": "send_message", "text": msg["text"]})
			}
		default:
			log.Printf("Received %s", string(message))
		}
	}
}

func createAudioFile(dir, playbackID, mimeType string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	ext := ".bin"
	switch {
	case strings.Contains(mimeType, "mpeg"):
		ext = ".mp3"
	case strings.Contains(mimeType, "pcm"):
		ext = ".pcm"
	}
	return os.Create(filepath.Join(dir, playbackID+ext))
}
