package audio

import (
	"errors"
	"testing"
	"time"
)

func TestDuration_PCM(t *testing.T) {
	tests := []struct {
		name     string
		size     int
		mimeType string
		want     time.Duration
	}{
		{"default rate", DefaultPCMSampleRate * 2, "audio/pcm", time.Second},
		{"explicit rate", 16000, "audio/pcm;rate=16000", 500 * time.Millisecond},
		{"l16", 48000, "audio/L16; rate=48000", 500 * time.Millisecond},
		{"empty", 0, "audio/pcm", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Duration(make([]byte, tt.size), tt.mimeType)
			if err != nil {
				t.Fatalf("Duration failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestDuration_InvalidMP3(t *testing.T) {
	if _, err := Duration([]byte("definitely not mp3"), "audio/mpeg"); err == nil {
		t.Error("Expected error for invalid mp3 data")
	}
}

func TestDuration_UnknownFormat(t *testing.T) {
	_, err := Duration([]byte("x"), "audio/ogg")
	if !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("Expected ErrUnknownFormat, got %v", err)
	}

	if _, err := Duration([]byte("x"), ""); err == nil {
		t.Error("Expected error for empty MIME type")
	}
}
