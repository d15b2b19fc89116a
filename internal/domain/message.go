package domain

import (
	"context"
	"strings"
	"time"
)

const (
	MaxMessageLength = 4000
	mentionEveryone  = "@everyone"
)

type Message struct {
	ID        string    `json:"id"`
	SpaceID   string    `json:"spaceId"`
	ChannelID string    `json:"channelId"`
	AuthorID  string    `json:"authorId"`
	Content   string    `json:"content"`
	Mentions  []string  `json:"mentions,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// MentionsEveryone reports whether the content pings the whole channel.
func (m *Message) MentionsEveryone() bool {
	return strings.Contains(m.Content, mentionEveryone)
}

type MessageRepository interface {
	Create(ctx context.Context, message *Message) error
	GetByID(ctx context.Context, channelID, messageID string) (*Message, error)
	Delete(ctx context.Context, message *Message) error
}

type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Kind      string    `json:"kind"`
	MessageID string    `json:"messageId"`
	ChannelID string    `json:"channelId"`
	SpaceID   string    `json:"spaceId"`
	CreatedAt time.Time `json:"createdAt"`
}

const NotificationMention = "mention"
