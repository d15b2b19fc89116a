package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hilthontt/chorus/internal/domain"
	"github.com/hilthontt/chorus/internal/infrastructure/ws"
)

// Actions serves the send_message and typing websocket actions.
type Actions struct {
	service *Service
}

var _ ws.ActionHandler = (*Actions)(nil)

func NewActions(service *Service) *Actions {
	return &Actions{service: service}
}

type sentMessage struct {
	ID        string `json:"id"`
	ChannelID string `json:"channelId"`
}

func (a *Actions) HandleAction(ctx context.Context, identity domain.Identity, action string, data json.RawMessage) (any, error) {
	switch action {
	case ws.SendMessageAction:
		var cmd SendCommand
		if err := decode(data, &cmd); err != nil {
			return nil, err
		}
		cmd.AuthorID = identity.UserID

		msg, err := a.service.Send(ctx, cmd)
		if err != nil {
			return nil, err
		}
		return sentMessage{ID: msg.ID, ChannelID: msg.ChannelID}, nil

	case ws.TypingAction:
		var cmd TypingCommand
		if err := decode(data, &cmd); err != nil {
			return nil, err
		}
		cmd.UserID = identity.UserID
		return nil, a.service.Typing(ctx, cmd)

	default:
		return nil, ws.ErrUnknownAction
	}
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: action data is required", domain.ErrInvalidInput)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}
