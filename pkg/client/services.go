package client

import (
	"context"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/hilthontt/chorus/pkg/client/internal/requestconfig"
	"github.com/hilthontt/chorus/pkg/client/option"
)

func segment(s string) string { return url.PathEscape(s) }

type HealthService struct {
	Options []option.RequestOption
}

type HealthResponse struct {
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	Uptime      string `json:"uptime"`
	Connections int    `json:"connections"`
	Rooms       int    `json:"rooms"`
}

func (h *HealthService) Get(ctx context.Context, opts ...option.RequestOption) (*HealthResponse, error) {
	opts = slices.Concat(h.Options, opts)

	res := &HealthResponse{}
	err := requestconfig.ExecuteNewRequest(ctx, http.MethodGet, "api/health", nil, res, opts...)
	return res, err
}

type MessageService struct {
	Options []option.RequestOption
}

type CreateMessageParams struct {
	Content  string   `json:"content"`
	Mentions []string `json:"mentions,omitempty"`
}

type Message struct {
	ID        string    `json:"id"`
	SpaceID   string    `json:"spaceId"`
	ChannelID string    `json:"channelId"`
	AuthorID  string    `json:"authorId"`
	Content   string    `json:"content"`
	Mentions  []string  `json:"mentions,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (m *MessageService) Create(ctx context.Context, spaceID, channelID string, body CreateMessageParams, opts ...option.RequestOption) (*Message, error) {
	if spaceID == "" || channelID == "" {
		return nil, ErrMissingIDParameter
	}
	opts = slices.Concat(m.Options, opts)
	path := "api/spaces/" + segment(spaceID) + "/channels/" + segment(channelID) + "/messages"

	res := &Message{}
	err := requestconfig.ExecuteNewRequest(ctx, http.MethodPost, path, body, res, opts...)
	return res, err
}

func (m *MessageService) Delete(ctx context.Context, spaceID, channelID, messageID string, opts ...option.RequestOption) error {
	if spaceID == "" || channelID == "" || messageID == "" {
		return ErrMissingIDParameter
	}
	opts = slices.Concat(m.Options, opts)
	path := "api/spaces/" + segment(spaceID) + "/channels/" + segment(channelID) + "/messages/" + segment(messageID)

	return requestconfig.ExecuteNewRequest(ctx, http.MethodDelete, path, nil, nil, opts...)
}

type MemberService struct {
	Options []option.RequestOption
}

type Member struct {
	SpaceID  string    `json:"spaceId"`
	UserID   string    `json:"userId"`
	RoleIDs  []string  `json:"roleIds"`
	JoinedAt time.Time `json:"joinedAt"`
}

func (m *MemberService) AssignRole(ctx context.Context, spaceID, userID, roleID string, opts ...option.RequestOption) (*Member, error) {
	if spaceID == "" || userID == "" || roleID == "" {
		return nil, ErrMissingIDParameter
	}
	opts = slices.Concat(m.Options, opts)
	path := "api/spaces/" + segment(spaceID) + "/members/" + segment(userID) + "/roles/" + segment(roleID)

	res := &Member{}
	err := requestconfig.ExecuteNewRequest(ctx, http.MethodPut, path, nil, res, opts...)
	return res, err
}

// Remove kicks userID, or leaves the space when userID is the caller.
func (m *MemberService) Remove(ctx context.Context, spaceID, userID string, opts ...option.RequestOption) error {
	if spaceID == "" || userID == "" {
		return ErrMissingIDParameter
	}
	opts = slices.Concat(m.Options, opts)
	path := "api/spaces/" + segment(spaceID) + "/members/" + segment(userID)

	return requestconfig.ExecuteNewRequest(ctx, http.MethodDelete, path, nil, nil, opts...)
}

type PresenceService struct {
	Options []option.RequestOption
}

type Presence struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

func (p *PresenceService) Get(ctx context.Context, userID string, opts ...option.RequestOption) (*Presence, error) {
	if userID == "" {
		return nil, ErrMissingIDParameter
	}
	opts = slices.Concat(p.Options, opts)

	res := &Presence{}
	err := requestconfig.ExecuteNewRequest(ctx, http.MethodGet, "api/users/"+segment(userID)+"/presence", nil, res, opts...)
	return res, err
}

type RoomService struct {
	Options []option.RequestOption
}

type Room struct {
	Room        string `json:"room"`
	Kind        string `json:"kind"`
	ID          string `json:"id"`
	Subscribers int    `json:"subscribers"`
}

// Get checks whether the caller may join room and how many connections on
// the answering node are subscribed.
func (r *RoomService) Get(ctx context.Context, room string, opts ...option.RequestOption) (*Room, error) {
	if room == "" {
		return nil, ErrMissingRoomParameter
	}
	opts = slices.Concat(r.Options, opts)

	res := &Room{}
	err := requestconfig.ExecuteNewRequest(ctx, http.MethodGet, "api/rooms/"+segment(room), nil, res, opts...)
	return res, err
}
