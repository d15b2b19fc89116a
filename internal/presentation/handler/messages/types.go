package messages

import "time"

type createMessageRequest struct {
	Content  string   `json:"content" validate:"required,max=4000"`
	Mentions []string `json:"mentions,omitempty" validate:"max=100"`
}

type messageResponse struct {
	ID        string    `json:"id"`
	SpaceID   string    `json:"spaceId"`
	ChannelID string    `json:"channelId"`
	AuthorID  string    `json:"authorId"`
	Content   string    `json:"content"`
	Mentions  []string  `json:"mentions,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
