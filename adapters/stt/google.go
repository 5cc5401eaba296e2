package stt

import (
	"context"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/orbytt/voicedesk/domain"
	"github.com/orbytt/voicedesk/domain/repositories"
)

const googleProvider = "google"

// GoogleSpeechToText implements SpeechToText for Google Cloud
type GoogleSpeechToText struct {
	client    *speech.Client
	recognize func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)
	language  string
	logger    *zap.Logger
}

// Ensure GoogleSpeechToText implements the SpeechToText interface
var _ repositories.SpeechToText = (*GoogleSpeechToText)(nil)

// NewGoogleSpeechToText creates a Google Cloud Speech client using
// application default credentials
func NewGoogleSpeechToText(ctx context.Context, language string, logger *zap.Logger) (*GoogleSpeechToText, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}

	if language == "" {
		language = "en-US"
	}

	return &GoogleSpeechToText{
		client: client,
		recognize: func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
			return client.Recognize(ctx, req)
		},
		language: language,
		logger:   logger,
	}, nil
}

// TranscribeAudio converts audio data to text using Google Cloud Speech-to-Text
func (g *GoogleSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	encoding, err := getAudioEncoding(config.MimeType)
	if err != nil {
		return "", &domain.ProviderError{Kind: domain.ErrFormat, Provider: googleProvider, Detail: err.Error()}
	}

	language := config.Language
	if language == "" || len(language) == 3 {
		// ISO 639-3 codes such as "eng" are not accepted, Google wants BCP-47
		language = g.language
	}

	recognitionConfig := &speechpb.RecognitionConfig{
		Encoding:                   encoding,
		LanguageCode:               language,
		EnableAutomaticPunctuation: true,
	}
	if config.SampleRate > 0 {
		recognitionConfig.SampleRateHertz = int32(config.SampleRate)
	}

	resp, err := g.recognize(ctx, &speechpb.RecognizeRequest{
		Config: recognitionConfig,
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audioData},
		},
	})
	if err != nil {
		g.logger.Error("Google speech recognition failed", zap.Error(err))
		return "", classifyGRPCError(err)
	}

	var parts []string
	for _, result := range resp.GetResults() {
		if alternatives := result.GetAlternatives(); len(alternatives) > 0 {
			parts = append(parts, strings.TrimSpace(alternatives[0].GetTranscript()))
		}
	}

	transcript := strings.TrimSpace(strings.Join(parts, " "))
	if transcript == "" {
		return "", &domain.ProviderError{Kind: domain.ErrEmptyResult, Provider: googleProvider}
	}

	return transcript, nil
}

// Close releases the underlying gRPC connection
func (g *GoogleSpeechToText) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

func classifyGRPCError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("failed to recognize speech: %w", err)
	}

	kind := domain.ErrProvider
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		kind = domain.ErrAuth
	case codes.ResourceExhausted:
		kind = domain.ErrRateLimit
	case codes.InvalidArgument:
		kind = domain.ErrFormat
	}

	return &domain.ProviderError{
		Kind:     kind,
		Provider: googleProvider,
		Detail:   fmt.Sprintf("%s: %s", st.Code(), st.Message()),
	}
}

// getAudioEncoding converts a recorder MIME type to the Google Speech API enum
func getAudioEncoding(mimeType string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	base := strings.ToLower(strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0]))
	switch base {
	case "audio/wav", "audio/x-wav", "audio/l16", "audio/pcm":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "audio/flac", "audio/x-flac":
		return speechpb.RecognitionConfig_FLAC, nil
	case "audio/basic", "audio/mulaw":
		return speechpb.RecognitionConfig_MULAW, nil
	case "audio/amr":
		return speechpb.RecognitionConfig_AMR, nil
	case "audio/amr-wb":
		return speechpb.RecognitionConfig_AMR_WB, nil
	case "audio/ogg":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "audio/webm":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported audio format: %s", mimeType)
	}
}
