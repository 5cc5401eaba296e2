package repositories

import (
	"context"

	"github.com/orbytt/voicedesk/domain/entities"
)

// MessageListener receives the store snapshot taken right after an update
type MessageListener func(snapshot []entities.Message)

// MessageStore is the ordered, append-only conversation log
type MessageStore interface {
	Append(ctx context.Context, message entities.Message) (entities.Message, error)
	Messages(ctx context.Context) ([]entities.Message, error)
	// Reset clears the conversation. Listeners observe an empty snapshot.
	Reset(ctx context.Context) error
	// Subscribe registers a listener and returns a function that removes it
	Subscribe(listener MessageListener) (unsubscribe func())
	// SubscribeWithSnapshot registers a listener and returns the conversation
	// as it was at that moment. No update can fall between the two.
	SubscribeWithSnapshot(listener MessageListener) (snapshot []entities.Message, unsubscribe func())
}

// MessageArchive persists the conversation log across restarts
type MessageArchive interface {
	Save(ctx context.Context, conversationID string, message entities.Message) error
	Load(ctx context.Context, conversationID string) ([]entities.Message, error)
	Clear(ctx context.Context, conversationID string) error
}
