package messaging

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hilthontt/chorus/internal/domain"
	"github.com/hilthontt/chorus/internal/infrastructure/configs"
	"github.com/hilthontt/chorus/internal/infrastructure/permissions"
	"github.com/hilthontt/chorus/internal/infrastructure/repository"
	"github.com/hilthontt/chorus/internal/infrastructure/snowflake"
	"github.com/hilthontt/chorus/internal/infrastructure/ws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var messagingFixtures = []configs.SpaceFixture{
	{
		ID:       "s1",
		Name:     "Acme",
		Channels: []string{"42"},
		Roles: []configs.RoleFixture{
			{ID: "s1", Name: "everyone", Permissions: []string{"VIEW_CHANNEL"}},
			{ID: "writer", Name: "writer", Position: 1, Permissions: []string{"SEND_MESSAGES"}},
			{ID: "herald", Name: "herald", Position: 2, Permissions: []string{"MENTION_EVERYONE"}},
			{ID: "mod", Name: "moderator", Position: 3, Permissions: []string{"MANAGE_MESSAGES"}},
		},
		Members: []configs.MemberFixture{
			{UserID: "alice", Roles: []string{"writer", "herald"}},
			{UserID: "bob", Roles: []string{"writer"}},
			{UserID: "carol", Roles: []string{"mod"}},
			{UserID: "dave"},
		},
	},
	{ID: "s2", Name: "Other", Channels: []string{"77"}},
}

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) Publish(_ context.Context, evt domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recorder) names() []domain.EventName {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventName, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Name())
	}
	return out
}

type fixture struct {
	svc      *Service
	events   *recorder
	messages domain.MessageRepository
	clock    *clock.Mock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	dir := repository.NewDirectory()
	require.NoError(t, repository.Seed(ctx, dir, messagingFixtures))

	mock := clock.NewMock()
	mock.Set(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	ids, err := snowflake.New(snowflake.Options{NodeID: 3, Clock: mock})
	require.NoError(t, err)

	events := &recorder{}
	messages := repository.NewMessageRepository(100)
	svc := NewService(Options{
		Guard:    permissions.NewEngine(dir),
		Channels: dir,
		Messages: messages,
		IDs:      ids,
		Events:   events,
		Clock:    mock,
	})
	return &fixture{svc: svc, events: events, messages: messages, clock: mock}
}

func TestSend_StoresAndPublishes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.svc.Send(ctx, SendCommand{
		SpaceID:   "s1",
		ChannelID: "42",
		AuthorID:  "alice",
		Content:   "  hello @bob  ",
		Mentions:  []string{"bob", "bob", "alice", "mallory"},
	})
	require.NoError(t, err)

	assert.Equal(t, "hello @bob", msg.Content)
	assert.Equal(t, "s1", msg.SpaceID)
	assert.Equal(t, f.clock.Now().UTC(), msg.CreatedAt)
	assert.Equal(t, []string{"bob"}, msg.Mentions, "duplicates, the author and non-members are dropped")

	id, err := snowflake.ParseID(msg.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), id.Node())

	stored, err := f.messages.GetByID(ctx, "42", msg.ID)
	require.NoError(t, err)
	assert.Equal(t, msg.Content, stored.Content)

	require.Equal(t, []domain.EventName{domain.MessageCreatedEvent, domain.NotificationCreatedEvent}, f.events.names())
	notification := f.events.events[1].(domain.NotificationCreated).Notification
	assert.Equal(t, "bob", notification.UserID)
	assert.Equal(t, msg.ID, notification.MessageID)
	assert.Equal(t, domain.NotificationMention, notification.Kind)
	assert.NotEqual(t, msg.ID, notification.ID)
}

func TestSend_DerivesSpaceFromChannel(t *testing.T) {
	f := newFixture(t)

	msg, err := f.svc.Send(context.Background(), SendCommand{ChannelID: "42", AuthorID: "bob", Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "s1", msg.SpaceID)
}

func TestSend_Refusals(t *testing.T) {
	tests := []struct {
		name    string
		cmd     SendCommand
		wantErr error
	}{
		{
			name:    "empty content",
			cmd:     SendCommand{ChannelID: "42", AuthorID: "alice", Content: "   "},
			wantErr: domain.ErrInvalidInput,
		},
		{
			name:    "unknown channel",
			cmd:     SendCommand{ChannelID: "99", AuthorID: "alice", Content: "hi"},
			wantErr: domain.ErrChannelNotFound,
		},
		{
			name:    "channel from another space",
			cmd:     SendCommand{SpaceID: "s2", ChannelID: "42", AuthorID: "alice", Content: "hi"},
			wantErr: domain.ErrChannelNotFound,
		},
		{
			name:    "not a member",
			cmd:     SendCommand{ChannelID: "42", AuthorID: "mallory", Content: "hi"},
			wantErr: domain.ErrNotAMember,
		},
		{
			name:    "member without SEND_MESSAGES",
			cmd:     SendCommand{ChannelID: "42", AuthorID: "dave", Content: "hi"},
			wantErr: domain.ErrMissingPermission,
		},
		{
			name:    "@everyone without MENTION_EVERYONE",
			cmd:     SendCommand{ChannelID: "42", AuthorID: "bob", Content: "hey @everyone"},
			wantErr: domain.ErrMissingPermission,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Send(context.Background(), tt.cmd)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, f.events.names(), "nothing is published on refusal")
		})
	}
}

func TestSend_EveryoneMentionWithPermission(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Send(context.Background(), SendCommand{ChannelID: "42", AuthorID: "alice", Content: "@everyone standup"})
	require.NoError(t, err)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()

	send := func(t *testing.T, f *fixture, author string) *domain.Message {
		t.Helper()
		msg, err := f.svc.Send(ctx, SendCommand{ChannelID: "42", AuthorID: author, Content: "to be deleted"})
		require.NoError(t, err)
		f.events.events = nil
		return msg
	}

	t.Run("author", func(t *testing.T) {
		f := newFixture(t)
		msg := send(t, f, "bob")

		require.NoError(t, f.svc.Delete(ctx, DeleteCommand{SpaceID: "s1", ChannelID: "42", MessageID: msg.ID, ActorID: "bob"}))
		_, err := f.messages.GetByID(ctx, "42", msg.ID)
		assert.ErrorIs(t, err, domain.ErrMessageNotFound)

		require.Len(t, f.events.events, 1)
		assert.Equal(t, domain.MessageDeleted{SpaceID: "s1", ChannelID: "42", MessageID: msg.ID, DeletedBy: "bob"}, f.events.events[0])
	})

	t.Run("moderator", func(t *testing.T) {
		f := newFixture(t)
		msg := send(t, f, "bob")
		assert.NoError(t, f.svc.Delete(ctx, DeleteCommand{ChannelID: "42", MessageID: msg.ID, ActorID: "carol"}))
	})

	t.Run("other member", func(t *testing.T) {
		f := newFixture(t)
		msg := send(t, f, "bob")
		err := f.svc.Delete(ctx, DeleteCommand{ChannelID: "42", MessageID: msg.ID, ActorID: "alice"})
		assert.ErrorIs(t, err, domain.ErrMissingPermission)
		assert.Empty(t, f.events.events)
	})

	t.Run("outsider", func(t *testing.T) {
		f := newFixture(t)
		msg := send(t, f, "bob")
		err := f.svc.Delete(ctx, DeleteCommand{ChannelID: "42", MessageID: msg.ID, ActorID: "mallory"})
		assert.ErrorIs(t, err, domain.ErrNotAMember)
	})

	t.Run("missing message", func(t *testing.T) {
		f := newFixture(t)
		err := f.svc.Delete(ctx, DeleteCommand{ChannelID: "42", MessageID: "404", ActorID: "carol"})
		assert.ErrorIs(t, err, domain.ErrMessageNotFound)
	})
}

func TestTyping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Typing(ctx, TypingCommand{ChannelID: "42", UserID: "dave"}))
	assert.Equal(t, []domain.Event{domain.TypingStarted{SpaceID: "s1", ChannelID: "42", UserID: "dave"}}, f.events.events)

	assert.ErrorIs(t, f.svc.Typing(ctx, TypingCommand{ChannelID: "42", UserID: "mallory"}), domain.ErrNotAMember)
	assert.ErrorIs(t, f.svc.Typing(ctx, TypingCommand{UserID: "dave"}), domain.ErrInvalidInput)
}

func TestActions(t *testing.T) {
	f := newFixture(t)
	actions := NewActions(f.svc)
	ctx := context.Background()
	alice := domain.Identity{UserID: "alice"}

	result, err := actions.HandleAction(ctx, alice, ws.SendMessageAction, json.RawMessage(`{"channelId":"42","content":"from the socket"}`))
	require.NoError(t, err)
	sent := result.(sentMessage)
	assert.Equal(t, "42", sent.ChannelID)

	stored, err := f.messages.GetByID(ctx, "42", sent.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", stored.AuthorID, "the author is the connection identity")

	_, err = actions.HandleAction(ctx, alice, ws.SendMessageAction, json.RawMessage(`{"channelId":"42","authorId":"bob","content":"spoof"}`))
	require.NoError(t, err)
	last := f.events.events[len(f.events.events)-1].(domain.MessageCreated)
	assert.Equal(t, "alice", last.Message.AuthorID)

	_, err = actions.HandleAction(ctx, alice, ws.TypingAction, json.RawMessage(`{"channelId":"42"}`))
	assert.NoError(t, err)

	_, err = actions.HandleAction(ctx, alice, ws.SendMessageAction, json.RawMessage(`{"channelId":`))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = actions.HandleAction(ctx, alice, ws.TypingAction, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = actions.HandleAction(ctx, alice, "juggle", nil)
	assert.ErrorIs(t, err, ws.ErrUnknownAction)
}
