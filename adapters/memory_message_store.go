package adapters

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orbytt/voicedesk/domain/entities"
	"github.com/orbytt/voicedesk/domain/repositories"
)

// MemoryMessageStore is the in-memory conversation log shared by every
// dashboard client. When an archive is configured each append and reset is
// written through to it.
type MemoryMessageStore struct {
	// deliver serializes writers so listeners see snapshots in append order
	deliver sync.Mutex

	mu             sync.RWMutex
	messages       []entities.Message
	listeners      map[int]repositories.MessageListener
	nextListenerID int

	archive        repositories.MessageArchive
	conversationID string
	logger         *zap.Logger
}

// MemoryStoreOption configures a MemoryMessageStore
type MemoryStoreOption func(*MemoryMessageStore)

// WithArchive persists messages of conversationID to archive
func WithArchive(archive repositories.MessageArchive, conversationID string) MemoryStoreOption {
	return func(s *MemoryMessageStore) {
		s.archive = archive
		s.conversationID = conversationID
	}
}

// NewMemoryMessageStore creates an empty message store
func NewMemoryMessageStore(logger *zap.Logger, opts ...MemoryStoreOption) *MemoryMessageStore {
	s := &MemoryMessageStore{
		listeners: make(map[int]repositories.MessageListener),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restore loads the archived conversation into memory. Listeners are not
// notified; it is meant to run before anyone subscribes.
func (s *MemoryMessageStore) Restore(ctx context.Context) error {
	if s.archive == nil {
		return nil
	}

	messages, err := s.archive.Load(ctx, s.conversationID)
	if err != nil {
		return fmt.Errorf("failed to restore conversation: %w", err)
	}

	s.mu.Lock()
	s.messages = messages
	s.mu.Unlock()

	s.logger.Info("Conversation restored",
		zap.String("conversationID", s.conversationID),
		zap.Int("messages", len(messages)))
	return nil
}

// Append implements repositories.MessageStore. The stored copy gets an ID
// and creation time if it has none.
func (s *MemoryMessageStore) Append(ctx context.Context, message entities.Message) (entities.Message, error) {
	if err := message.Validate(); err != nil {
		return entities.Message{}, err
	}

	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}
	if message.DisplayImages != nil {
		message.DisplayImages = append([]string(nil), message.DisplayImages...)
	}

	s.deliver.Lock()
	defer s.deliver.Unlock()

	if s.archive != nil {
		if err := s.archive.Save(ctx, s.conversationID, message); err != nil {
			return entities.Message{}, fmt.Errorf("failed to archive message: %w", err)
		}
	}

	s.mu.Lock()
	s.messages = append(s.messages, message)
	snapshot := s.snapshotLocked()
	listeners := s.listenersLocked()
	s.mu.Unlock()

	for _, listener := range listeners {
		listener(snapshot)
	}

	return message, nil
}

// Messages implements repositories.MessageStore
func (s *MemoryMessageStore) Messages(ctx context.Context) ([]entities.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(), nil
}

// Reset implements repositories.MessageStore
func (s *MemoryMessageStore) Reset(ctx context.Context) error {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	if s.archive != nil {
		if err := s.archive.Clear(ctx, s.conversationID); err != nil {
			return fmt.Errorf("failed to clear archive: %w", err)
		}
	}

	s.mu.Lock()
	s.messages = nil
	listeners := s.listenersLocked()
	s.mu.Unlock()

	for _, listener := range listeners {
		listener([]entities.Message{})
	}
	return nil
}

// Subscribe implements repositories.MessageStore. Listeners run on the
// writer's goroutine and must not write to the store.
func (s *MemoryMessageStore) Subscribe(listener repositories.MessageListener) func() {
	s.mu.Lock()
	id := s.addListenerLocked(listener)
	s.mu.Unlock()
	return s.unsubscriber(id)
}

// SubscribeWithSnapshot implements repositories.MessageStore
func (s *MemoryMessageStore) SubscribeWithSnapshot(listener repositories.MessageListener) ([]entities.Message, func()) {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	snapshot := s.snapshotLocked()
	id := s.addListenerLocked(listener)
	s.mu.Unlock()
	return snapshot, s.unsubscriber(id)
}

func (s *MemoryMessageStore) addListenerLocked(listener repositories.MessageListener) int {
	id := s.nextListenerID
	s.nextListenerID++
	s.listeners[id] = listener
	return id
}

func (s *MemoryMessageStore) unsubscriber(id int) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *MemoryMessageStore) snapshotLocked() []entities.Message {
	snapshot := make([]entities.Message, len(s.messages))
	copy(snapshot, s.messages)
	return snapshot
}

// listenersLocked returns listeners in subscription order
func (s *MemoryMessageStore) listenersLocked() []repositories.MessageListener {
	listeners := make([]repositories.MessageListener, 0, len(s.listeners))
	for id := 0; id < s.nextListenerID; id++ {
		if listener, ok := s.listeners[id]; ok {
			listeners = append(listeners, listener)
		}
	}
	return listeners
}
