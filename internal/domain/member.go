package domain

import (
	"context"
	"time"
)

// Identity is the verified principal behind a request or connection.
type Identity struct {
	UserID   string `json:"userId"`
	Username string `json:"username,omitempty"`
}

type Role struct {
	ID          string     `json:"id"`
	SpaceID     string     `json:"spaceId"`
	Name        string     `json:"name"`
	Permissions Permission `json:"permissions"`
	Position    int        `json:"position"`
}

type Member struct {
	SpaceID  string    `json:"spaceId"`
	UserID   string    `json:"userId"`
	RoleIDs  []string  `json:"roleIds"`
	JoinedAt time.Time `json:"joinedAt"`
}

//go:generate go run go.uber.org/mock/mockgen -source=member.go -destination=../mocks/mock_membership_repository.go -package=mocks

// MembershipRepository is served by the persistence layer.
type MembershipRepository interface {
	FindMember(ctx context.Context, spaceID, userID string) (*Member, error)
	RolesForMember(ctx context.Context, spaceID, userID string) ([]Role, error)
	FindRole(ctx context.Context, spaceID, roleID string) (*Role, error)
	SpacesForUser(ctx context.Context, userID string) ([]string, error)
	AssignRole(ctx context.Context, spaceID, userID, roleID string) error
	RemoveMember(ctx context.Context, spaceID, userID string) error
}

type ChannelDirectory interface {
	SpaceOfChannel(ctx context.Context, channelID string) (string, error)
}
