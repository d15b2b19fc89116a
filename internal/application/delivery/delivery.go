// Package delivery turns domain events into room broadcasts. Each concern
// is its own bus subscriber so a failure in one never blocks another.
package delivery

import (
	"context"
	"fmt"

	"github.com/hilthontt/chorus/internal/domain"
	"github.com/hilthontt/chorus/internal/infrastructure/eventbus"
	"github.com/samber/lo"
	"go.uber.org/multierr"
)

// ChannelActivityEvent carries unread-counter hints to every member of a
// space.
const ChannelActivityEvent = "channel.activity"

type Broadcaster interface {
	Broadcast(ctx context.Context, room, event string, payload any) error
}

type SpaceLookup interface {
	SpacesForUser(ctx context.Context, userID string) ([]string, error)
}

type ChannelActivity struct {
	SpaceID   string `json:"spaceId"`
	ChannelID string `json:"channelId"`
	MessageID string `json:"messageId"`
	AuthorID  string `json:"authorId"`
}

// Rooms returns the rooms evt is pushed to.
func Rooms(ctx context.Context, spaces SpaceLookup, evt domain.Event) ([]string, error) {
	switch e := evt.(type) {
	case domain.MessageCreated:
		return []string{domain.ChannelRoom(e.Message.ChannelID)}, nil
	case domain.MessageDeleted:
		return []string{domain.ChannelRoom(e.ChannelID)}, nil
	case domain.TypingStarted:
		return []string{domain.ChannelRoom(e.ChannelID)}, nil
	case domain.NotificationCreated:
		return []string{domain.UserRoom(e.Notification.UserID)}, nil
	case domain.PresenceChanged:
		ids, err := spaces.SpacesForUser(ctx, e.UserID)
		if err != nil {
			return nil, fmt.Errorf("spaces of %s: %w", e.UserID, err)
		}
		return lo.Map(ids, func(id string, _ int) string { return domain.SpaceRoom(id) }), nil
	case domain.MemberRolesUpdated:
		return []string{domain.SpaceRoom(e.SpaceID), domain.UserRoom(e.UserID)}, nil
	case domain.MemberRemoved:
		return []string{domain.SpaceRoom(e.SpaceID), domain.UserRoom(e.UserID)}, nil
	default:
		return nil, fmt.Errorf("%w: no rooms for event %T", domain.ErrInvalidInput, evt)
	}
}

// Register subscribes the delivery handlers and returns a func that removes
// them all.
func Register(bus *eventbus.Bus, out Broadcaster, spaces SpaceLookup) func() {
	fanout := func(ctx context.Context, evt domain.Event) error {
		rooms, err := Rooms(ctx, spaces, evt)
		if err != nil {
			return err
		}
		return broadcastAll(ctx, out, rooms, string(evt.Name()), evt)
	}

	unsubs := []func(){
		eventbus.On(bus, "delivery.messages", func(ctx context.Context, e domain.MessageCreated) error {
			return fanout(ctx, e)
		}),
		eventbus.On(bus, "delivery.messages", func(ctx context.Context, e domain.MessageDeleted) error {
			return fanout(ctx, e)
		}),
		eventbus.On(bus, "delivery.typing", func(ctx context.Context, e domain.TypingStarted) error {
			return fanout(ctx, e)
		}),
		eventbus.On(bus, "delivery.unread", func(ctx context.Context, e domain.MessageCreated) error {
			activity := ChannelActivity{
				SpaceID:   e.Message.SpaceID,
				ChannelID: e.Message.ChannelID,
				MessageID: e.Message.ID,
				AuthorID:  e.Message.AuthorID,
			}
			return out.Broadcast(ctx, domain.SpaceRoom(e.Message.SpaceID), ChannelActivityEvent, activity)
		}),
		eventbus.On(bus, "delivery.notifications", func(ctx context.Context, e domain.NotificationCreated) error {
			return fanout(ctx, e)
		}),
		eventbus.On(bus, "delivery.presence", func(ctx context.Context, e domain.PresenceChanged) error {
			return fanout(ctx, e)
		}),
		eventbus.On(bus, "delivery.membership", func(ctx context.Context, e domain.MemberRolesUpdated) error {
			return fanout(ctx, e)
		}),
		eventbus.On(bus, "delivery.membership", func(ctx context.Context, e domain.MemberRemoved) error {
			return fanout(ctx, e)
		}),
	}

	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

// broadcastAll keeps going after a failed room and reports every failure.
func broadcastAll(ctx context.Context, out Broadcaster, rooms []string, event string, payload any) error {
	var err error
	for _, room := range rooms {
		err = multierr.Append(err, out.Broadcast(ctx, room, event, payload))
	}
	return err
}
