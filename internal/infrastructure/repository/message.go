package repository

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hilthontt/chorus/internal/domain"
)

// Oldest messages are evicted when a channel exceeds capacity.
type messageRepository struct {
	messages map[string][]domain.Message // channelID -> []Message
	capacity uint
	mu       *sync.RWMutex
}

func NewMessageRepository(capacity uint) domain.MessageRepository {
	if capacity == 0 {
		capacity = 100
	}
	return &messageRepository{
		capacity: capacity,
		messages: make(map[string][]domain.Message),
		mu:       &sync.RWMutex{},
	}
}

func (r *messageRepository) Create(ctx context.Context, message *domain.Message) error {
	if message == nil || message.ChannelID == "" {
		return domain.ErrInvalidInput
	}

	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	channelMsgs, exists := r.messages[message.ChannelID]
	if !exists {
		channelMsgs = make([]domain.Message, 0, r.capacity)
	}

	channelMsgs = append(channelMsgs, *message)

	if len(channelMsgs) > int(r.capacity) {
		excess := len(channelMsgs) - int(r.capacity)
		channelMsgs = channelMsgs[excess:]
	}

	r.messages[message.ChannelID] = channelMsgs

	return nil
}

func (r *messageRepository) GetByID(ctx context.Context, channelID, messageID string) (*domain.Message, error) {
	if channelID == "" || messageID == "" {
		return nil, domain.ErrInvalidInput
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	idx := slices.IndexFunc(r.messages[channelID], func(m domain.Message) bool { return m.ID == messageID })
	if idx < 0 {
		return nil, domain.ErrMessageNotFound
	}

	msg := r.messages[channelID][idx]
	msg.Mentions = slices.Clone(msg.Mentions)
	return &msg, nil
}

func (r *messageRepository) Delete(ctx context.Context, message *domain.Message) error {
	if message == nil || message.ID == "" || message.ChannelID == "" {
		return domain.ErrInvalidInput
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	channelMsgs, exists := r.messages[message.ChannelID]
	if !exists {
		return nil // idempotent: already gone
	}

	r.messages[message.ChannelID] = slices.DeleteFunc(channelMsgs, func(m domain.Message) bool {
		return m.ID == message.ID
	})
	return nil
}
