package websocket

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
)

const (
	defaultRecordingMimeType = "audio/webm"

	// Upper bound of one recording, roughly ten minutes of opus audio.
	maxRecordingBytes = 10 * 1024 * 1024
)

var (
	errRecorderBusy = errors.New("recorder already running")
	errNotRecording = errors.New("recorder is not running")
)

// chunkRecorder collects the binary audio frames a browser sends between
// listening_start and listening_end
type chunkRecorder struct {
	mu        sync.Mutex
	recording bool
	mimeType  string
	buf       bytes.Buffer
}

func newChunkRecorder() *chunkRecorder {
	return &chunkRecorder{mimeType: defaultRecordingMimeType}
}

// SetMimeType sets the format of the next recording
func (r *chunkRecorder) SetMimeType(mimeType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if mimeType == "" {
		mimeType = defaultRecordingMimeType
	}
	r.mimeType = mimeType
}

func (r *chunkRecorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recording {
		return errRecorderBusy
	}
	r.buf.Reset()
	r.recording = true
	return nil
}

// Write appends one audio chunk to the running recording
func (r *chunkRecorder) Write(chunk []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return errNotRecording
	}
	if r.buf.Len()+len(chunk) > maxRecordingBytes {
		return fmt.Errorf("recording exceeds %d bytes", maxRecordingBytes)
	}
	r.buf.Write(chunk)
	return nil
}

func (r *chunkRecorder) Stop(ctx context.Context) ([]byte, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return nil, "", errNotRecording
	}
	r.recording = false

	if r.buf.Len() == 0 {
		return nil, r.mimeType, nil
	}
	data := make([]byte, r.buf.Len())
	copy(data, r.buf.Bytes())
	r.buf.Reset()
	return data, r.mimeType, nil
}
