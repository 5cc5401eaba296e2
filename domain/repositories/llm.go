package repositories

import (
	"context"

	"github.com/orbytt/voicedesk/domain"
)

// Assistant abstracts the remote assistant backend that answers user text
type Assistant interface {
	// Process sends the user's text and returns the normalized reply
	Process(ctx context.Context, text string) (domain.AssistantReply, error)
}
