package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/orbytt/voicedesk/domain/entities"
)

// archivedMessage is the document stored per message
type archivedMessage struct {
	ConversationID   string `bson:"conversation_id"`
	Seq              int64  `bson:"seq"`
	entities.Message `bson:",inline"`
}

// MessageArchive stores conversation messages in a MongoDB collection, one
// document per message ordered by a per-conversation sequence number
type MessageArchive struct {
	collection *mongo.Collection
	counters   *mongo.Collection
}

// NewMessageArchive creates a new MongoDB message archive
func NewMessageArchive(db *mongo.Database) *MessageArchive {
	return &MessageArchive{
		collection: db.Collection("messages"),
		counters:   db.Collection("message_counters"),
	}
}

// EnsureIndexes creates the indexes the archive queries rely on
func (r *MessageArchive) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "seq", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create message index: %w", err)
	}
	return nil
}

// Save implements repositories.MessageArchive
func (r *MessageArchive) Save(ctx context.Context, conversationID string, message entities.Message) error {
	if conversationID == "" {
		return errors.New("conversation ID cannot be empty")
	}

	seq, err := r.nextSeq(ctx, conversationID)
	if err != nil {
		return err
	}

	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}

	doc := archivedMessage{
		ConversationID: conversationID,
		Seq:            seq,
		Message:        message,
	}

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// Load implements repositories.MessageArchive
func (r *MessageArchive) Load(ctx context.Context, conversationID string) ([]entities.Message, error) {
	filter := bson.M{"conversation_id": conversationID}
	opts := options.Find().SetSort(bson.M{"seq": 1})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation %s: %w", conversationID, err)
	}
	defer cursor.Close(ctx)

	var docs []archivedMessage
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode conversation %s: %w", conversationID, err)
	}

	messages := make([]entities.Message, 0, len(docs))
	for _, doc := range docs {
		messages = append(messages, doc.Message)
	}
	return messages, nil
}

// Clear implements repositories.MessageArchive. The sequence counter is kept
// so a cleared conversation never reuses a sequence number.
func (r *MessageArchive) Clear(ctx context.Context, conversationID string) error {
	if _, err := r.collection.DeleteMany(ctx, bson.M{"conversation_id": conversationID}); err != nil {
		return fmt.Errorf("failed to clear conversation %s: %w", conversationID, err)
	}
	return nil
}

func (r *MessageArchive) nextSeq(ctx context.Context, conversationID string) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}

	err := r.counters.FindOneAndUpdate(
		ctx,
		bson.M{"_id": conversationID},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate message sequence: %w", err)
	}
	return counter.Seq, nil
}
