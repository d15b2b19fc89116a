package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/go-playground/validator/v10"
	"github.com/hilthontt/chorus/internal/domain"
	"github.com/hilthontt/chorus/internal/infrastructure/logging"
	"github.com/samber/lo"
)

// Guard is the two-stage permission check.
type Guard interface {
	RequireMember(ctx context.Context, spaceID, userID string) error
	Require(ctx context.Context, spaceID, userID string, required domain.Permission) error
}

type Publisher interface {
	Publish(ctx context.Context, evt domain.Event)
}

type IDGenerator interface {
	NextString() (string, error)
}

type SendCommand struct {
	// SpaceID is optional; when set it must own ChannelID.
	SpaceID   string   `json:"spaceId"`
	ChannelID string   `json:"channelId" validate:"required,max=64"`
	AuthorID  string   `json:"-" validate:"required"`
	Content   string   `json:"content" validate:"required,max=4000"`
	Mentions  []string `json:"mentions" validate:"max=100,dive,required,max=64"`
}

type DeleteCommand struct {
	SpaceID   string `json:"spaceId"`
	ChannelID string `json:"channelId" validate:"required,max=64"`
	MessageID string `json:"messageId" validate:"required,max=64"`
	ActorID   string `json:"-" validate:"required"`
}

type TypingCommand struct {
	ChannelID string `json:"channelId" validate:"required,max=64"`
	UserID    string `json:"-" validate:"required"`
}

type Options struct {
	Guard    Guard
	Channels domain.ChannelDirectory
	Messages domain.MessageRepository
	IDs      IDGenerator
	Events   Publisher
	Clock    clock.Clock
	Logger   logging.Logger
}

type Service struct {
	guard    Guard
	channels domain.ChannelDirectory
	messages domain.MessageRepository
	ids      IDGenerator
	events   Publisher
	clock    clock.Clock
	logger   logging.Logger
	validate *validator.Validate
}

func NewService(opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	return &Service{
		guard:    opts.Guard,
		channels: opts.Channels,
		messages: opts.Messages,
		ids:      opts.IDs,
		events:   opts.Events,
		clock:    opts.Clock,
		logger:   opts.Logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (s *Service) check(cmd any) error {
	if err := s.validate.Struct(cmd); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s failed %s", domain.ErrInvalidInput, verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

// resolveSpace returns the space owning channelID. A channel outside the
// claimed space is reported as not found.
func (s *Service) resolveSpace(ctx context.Context, spaceID, channelID string) (string, error) {
	owner, err := s.channels.SpaceOfChannel(ctx, channelID)
	if err != nil {
		return "", err
	}
	if spaceID != "" && owner != spaceID {
		return "", fmt.Errorf("channel %s in space %s: %w", channelID, spaceID, domain.ErrChannelNotFound)
	}
	return owner, nil
}

// Send stores a message and publishes MessageCreated followed by one
// NotificationCreated per mentioned member.
func (s *Service) Send(ctx context.Context, cmd SendCommand) (*domain.Message, error) {
	cmd.Content = strings.TrimSpace(cmd.Content)
	if err := s.check(cmd); err != nil {
		return nil, err
	}

	spaceID, err := s.resolveSpace(ctx, cmd.SpaceID, cmd.ChannelID)
	if err != nil {
		return nil, err
	}

	if err := s.guard.Require(ctx, spaceID, cmd.AuthorID, domain.SendMessages); err != nil {
		return nil, err
	}

	msg := &domain.Message{
		SpaceID:   spaceID,
		ChannelID: cmd.ChannelID,
		AuthorID:  cmd.AuthorID,
		Content:   cmd.Content,
		CreatedAt: s.clock.Now().UTC(),
	}
	if msg.MentionsEveryone() {
		if err := s.guard.Require(ctx, spaceID, cmd.AuthorID, domain.MentionEveryone); err != nil {
			return nil, err
		}
	}
	msg.Mentions = s.mentionedMembers(ctx, spaceID, cmd.AuthorID, cmd.Mentions)

	id, err := s.ids.NextString()
	if err != nil {
		return nil, fmt.Errorf("generate message id: %w", err)
	}
	msg.ID = id

	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("store message: %w", err)
	}

	s.events.Publish(ctx, domain.MessageCreated{Message: *msg})
	for _, userID := range msg.Mentions {
		s.notify(ctx, msg, userID)
	}

	s.logger.Info(logging.Messaging, logging.Publish, "message sent", map[logging.ExtraKey]any{
		logging.MessageID: msg.ID,
		logging.ChannelID: msg.ChannelID,
		logging.UserID:    msg.AuthorID,
	})
	return msg, nil
}

// mentionedMembers drops duplicates, the author and users outside the space.
func (s *Service) mentionedMembers(ctx context.Context, spaceID, authorID string, mentions []string) []string {
	candidates := lo.Without(lo.Uniq(mentions), authorID)
	return lo.Filter(candidates, func(userID string, _ int) bool {
		return s.guard.RequireMember(ctx, spaceID, userID) == nil
	})
}

func (s *Service) notify(ctx context.Context, msg *domain.Message, userID string) {
	id, err := s.ids.NextString()
	if err != nil {
		s.logger.Warn(logging.Messaging, logging.Publish, "skipping mention notification", map[logging.ExtraKey]any{
			logging.MessageID:    msg.ID,
			logging.UserID:       userID,
			logging.ErrorMessage: err.Error(),
		})
		return
	}
	s.events.Publish(ctx, domain.NotificationCreated{Notification: domain.Notification{
		ID:        id,
		UserID:    userID,
		Kind:      domain.NotificationMention,
		MessageID: msg.ID,
		ChannelID: msg.ChannelID,
		SpaceID:   msg.SpaceID,
		CreatedAt: msg.CreatedAt,
	}})
}

// Delete removes a message. Authors may delete their own; anyone else
// needs ManageMessages.
func (s *Service) Delete(ctx context.Context, cmd DeleteCommand) error {
	if err := s.check(cmd); err != nil {
		return err
	}

	spaceID, err := s.resolveSpace(ctx, cmd.SpaceID, cmd.ChannelID)
	if err != nil {
		return err
	}
	if err := s.guard.RequireMember(ctx, spaceID, cmd.ActorID); err != nil {
		return err
	}

	msg, err := s.messages.GetByID(ctx, cmd.ChannelID, cmd.MessageID)
	if err != nil {
		return err
	}
	if msg.AuthorID != cmd.ActorID {
		if err := s.guard.Require(ctx, spaceID, cmd.ActorID, domain.ManageMessages); err != nil {
			return err
		}
	}

	if err := s.messages.Delete(ctx, msg); err != nil {
		return fmt.Errorf("delete message %s: %w", msg.ID, err)
	}

	s.events.Publish(ctx, domain.MessageDeleted{
		SpaceID:   spaceID,
		ChannelID: msg.ChannelID,
		MessageID: msg.ID,
		DeletedBy: cmd.ActorID,
	})
	return nil
}

// Typing announces that a user is composing in a channel they can see.
func (s *Service) Typing(ctx context.Context, cmd TypingCommand) error {
	if err := s.check(cmd); err != nil {
		return err
	}

	spaceID, err := s.resolveSpace(ctx, "", cmd.ChannelID)
	if err != nil {
		return err
	}
	if err := s.guard.Require(ctx, spaceID, cmd.UserID, domain.ViewChannel); err != nil {
		return err
	}

	s.events.Publish(ctx, domain.TypingStarted{SpaceID: spaceID, ChannelID: cmd.ChannelID, UserID: cmd.UserID})
	return nil
}
