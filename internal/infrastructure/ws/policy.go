package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hilthontt/chorus/internal/domain"
)

// Guard is the permission surface the gateway checks joins against.
type Guard interface {
	RequireMember(ctx context.Context, spaceID, userID string) error
	Require(ctx context.Context, spaceID, userID string, required domain.Permission) error
	Invalidate(spaceID, userID string)
}

// RoomAuthorizer decides joins for dm and thread rooms, whose membership the
// gateway cannot derive on its own.
type RoomAuthorizer interface {
	AuthorizeJoin(ctx context.Context, identity domain.Identity, room domain.Room) error
}

type RoomAuthorizerFunc func(ctx context.Context, identity domain.Identity, room domain.Room) error

func (f RoomAuthorizerFunc) AuthorizeJoin(ctx context.Context, identity domain.Identity, room domain.Room) error {
	return f(ctx, identity, room)
}

// AllowAll admits any authenticated user to any dm or thread room. Callers
// that keep room membership server side should supply their own.
var AllowAll RoomAuthorizer = RoomAuthorizerFunc(func(context.Context, domain.Identity, domain.Room) error {
	return nil
})

var errForeignUserRoom = fmt.Errorf("%w: user rooms are private to their owner", domain.ErrForbidden)

func (g *Gateway) authorizeJoin(ctx context.Context, identity domain.Identity, room domain.Room) error {
	switch room.Kind {
	case domain.UserRoomKind:
		if room.ID != identity.UserID {
			return errForeignUserRoom
		}
		return nil
	case domain.SpaceRoomKind:
		return g.guard.RequireMember(ctx, room.ID, identity.UserID)
	case domain.ChannelRoomKind:
		spaceID, err := g.channels.SpaceOfChannel(ctx, room.ID)
		if err != nil {
			return err
		}
		return g.guard.Require(ctx, spaceID, identity.UserID, domain.ViewChannel)
	default:
		return g.authorizer.AuthorizeJoin(ctx, identity, room)
	}
}

// errorCode maps a failure to the code sent to the client. invalid is used
// for input errors so room and action failures read differently.
func errorCode(err error, invalid string) string {
	switch {
	case errors.Is(err, domain.ErrNotAMember):
		return CodeNotAMember
	case errors.Is(err, domain.ErrMissingPermission):
		return CodeMissingPermission
	case errors.Is(err, domain.ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrUnknownAction):
		return CodeUnknownAction
	case errors.Is(err, domain.ErrChannelNotFound):
		return CodeInvalidRoom
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrMessageNotFound),
		errors.Is(err, domain.ErrMemberNotFound):
		return invalid
	default:
		return CodeInternal
	}
}

func errorMessage(code string, err error) string {
	if code == CodeInternal {
		return "internal error"
	}
	return err.Error()
}

type membershipPayload struct {
	SpaceID string `json:"spaceId"`
	UserID  string `json:"userId"`
}

// revoke re-checks the rooms of a user whose membership changed. Rooms the
// user may no longer see are left with a forbidden error frame.
func (g *Gateway) revoke(ctx context.Context, payload json.RawMessage) {
	var p membershipPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.UserID == "" {
		return
	}
	if p.SpaceID != "" {
		g.guard.Invalidate(p.SpaceID, p.UserID)
	}
	g.Reauthorize(ctx, p.UserID)
}

// Reauthorize drops every room the user's local connections may no longer
// join.
func (g *Gateway) Reauthorize(ctx context.Context, userID string) {
	for _, c := range g.clientsOf(userID) {
		for _, key := range c.Rooms() {
			room, err := domain.ParseRoom(key)
			if err != nil {
				continue
			}
			err = g.authorizeJoin(ctx, c.Identity, room)
			if err == nil {
				continue
			}

			g.rooms.Leave(key, c)
			c.rooms.Remove(key)
			code := errorCode(err, CodeForbidden)
			g.reply(c, NewError("", key, code, "access to room revoked", false))
		}
	}
	g.metrics.RoomsActive.Set(float64(g.rooms.Count()))
}

// Authorize parses key and applies the join policy for identity without
// joining.
func (g *Gateway) Authorize(ctx context.Context, identity domain.Identity, key string) (domain.Room, error) {
	room, err := domain.ParseRoom(key)
	if err != nil {
		return domain.Room{}, err
	}
	if err := g.authorizeJoin(ctx, identity, room); err != nil {
		return domain.Room{}, err
	}
	return room, nil
}
