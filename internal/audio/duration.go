package audio

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"strconv"
	"time"

	"github.com/hajimehoshi/go-mp3"
)

// DefaultPCMSampleRate applies to raw PCM without a rate parameter
const DefaultPCMSampleRate = 24000

// ErrUnknownFormat is returned for audio whose duration cannot be computed
var ErrUnknownFormat = errors.New("unknown audio format")

// Duration returns the playing time of a synthesized clip. MP3 is decoded
// frame by frame; raw PCM is taken as 16-bit mono.
func Duration(data []byte, mimeType string) (time.Duration, error) {
	mediaType, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return 0, fmt.Errorf("failed to parse MIME type %q: %w", mimeType, err)
	}

	switch mediaType {
	case "audio/mpeg", "audio/mp3":
		return mp3Duration(data)
	case "audio/pcm", "audio/l16":
		rate := DefaultPCMSampleRate
		if r, err := strconv.Atoi(params["rate"]); err == nil && r > 0 {
			rate = r
		}
		return pcmDuration(len(data), rate, 1), nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownFormat, mimeType)
	}
}

func mp3Duration(data []byte) (time.Duration, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("failed to decode mp3: %w", err)
	}

	length := decoder.Length()
	if length < 0 {
		return 0, fmt.Errorf("failed to measure mp3 length")
	}

	// go-mp3 always decodes to 16-bit stereo
	return pcmDuration(int(length), decoder.SampleRate(), 2), nil
}

func pcmDuration(size, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	frames := size / (2 * channels)
	return time.Duration(frames) * time.Second / time.Duration(sampleRate)
}
