package permissions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/hilthontt/chorus/internal/domain"
	"github.com/hilthontt/chorus/internal/infrastructure/eventbus"
	"github.com/samber/lo"
)

type Option func(*Engine)

// WithCache keeps computed masks for ttl. Role changes published on the bus
// evict entries early once RegisterInvalidation is wired.
func WithCache(size int, ttl time.Duration) Option {
	return func(e *Engine) {
		if size > 0 && ttl > 0 {
			e.cache = expirable.NewLRU[string, domain.Permission](size, nil, ttl)
		}
	}
}

// Engine derives effective permissions from role assignments held by the
// persistence layer.
type Engine struct {
	members domain.MembershipRepository
	cache   *expirable.LRU[string, domain.Permission]
}

func NewEngine(members domain.MembershipRepository, opts ...Option) *Engine {
	e := &Engine{members: members}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HasPermission is conjunctive; Administrator short-circuits.
func HasPermission(effective, required domain.Permission) bool {
	return domain.HasPermission(effective, required)
}

// Effective ORs the masks of roles.
func Effective(roles []domain.Role) domain.Permission {
	return lo.Reduce(roles, func(acc domain.Permission, r domain.Role, _ int) domain.Permission {
		return acc | r.Permissions
	}, 0)
}

func cacheKey(spaceID, userID string) string {
	return spaceID + "/" + userID
}

// ComputeEffective returns zero for users that are not members of spaceID.
func (e *Engine) ComputeEffective(ctx context.Context, spaceID, userID string) (domain.Permission, error) {
	key := cacheKey(spaceID, userID)
	if e.cache != nil {
		if mask, ok := e.cache.Get(key); ok {
			return mask, nil
		}
	}

	roles, err := e.members.RolesForMember(ctx, spaceID, userID)
	if errors.Is(err, domain.ErrMemberNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load roles of %s in space %s: %w", userID, spaceID, err)
	}

	mask := Effective(roles)
	if e.cache != nil {
		e.cache.Add(key, mask)
	}
	return mask, nil
}

// RequireMember is the first stage of the guard.
func (e *Engine) RequireMember(ctx context.Context, spaceID, userID string) error {
	_, err := e.members.FindMember(ctx, spaceID, userID)
	switch {
	case errors.Is(err, domain.ErrMemberNotFound):
		return domain.NewNotAMemberError(spaceID, userID)
	case err != nil:
		return fmt.Errorf("find member %s in space %s: %w", userID, spaceID, err)
	}
	return nil
}

// Require runs both guard stages: membership, then the permission bits.
func (e *Engine) Require(ctx context.Context, spaceID, userID string, required domain.Permission) error {
	if err := e.RequireMember(ctx, spaceID, userID); err != nil {
		return err
	}

	effective, err := e.ComputeEffective(ctx, spaceID, userID)
	if err != nil {
		return err
	}
	if !HasPermission(effective, required) {
		return domain.NewMissingPermissionError(spaceID, userID, required)
	}
	return nil
}

func (e *Engine) Invalidate(spaceID, userID string) {
	if e.cache != nil {
		e.cache.Remove(cacheKey(spaceID, userID))
	}
}

// RegisterInvalidation evicts cached masks when roles change or a member is
// removed. The returned func unsubscribes both handlers.
func (e *Engine) RegisterInvalidation(bus *eventbus.Bus) func() {
	unsubRoles := eventbus.On(bus, "permissions.cache", func(_ context.Context, evt domain.MemberRolesUpdated) error {
		e.Invalidate(evt.SpaceID, evt.UserID)
		return nil
	})
	unsubRemoved := eventbus.On(bus, "permissions.cache", func(_ context.Context, evt domain.MemberRemoved) error {
		e.Invalidate(evt.SpaceID, evt.UserID)
		return nil
	})

	return func() {
		unsubRoles()
		unsubRemoved()
	}
}
