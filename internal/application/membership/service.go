package membership

import (
	"context"
	"fmt"

	"github.com/hilthontt/chorus/internal/domain"
	"github.com/hilthontt/chorus/internal/infrastructure/logging"
	"github.com/samber/lo"
)

type Guard interface {
	Require(ctx context.Context, spaceID, userID string, required domain.Permission) error
}

type Publisher interface {
	Publish(ctx context.Context, evt domain.Event)
}

type Service struct {
	members domain.MembershipRepository
	guard   Guard
	events  Publisher
	logger  logging.Logger
}

func NewService(members domain.MembershipRepository, guard Guard, events Publisher, logger logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{members: members, guard: guard, events: events, logger: logger}
}

// AssignRole grants roleID to a member. The actor needs ManageRoles and,
// unless an administrator, may only grant roles positioned below their own
// highest role.
func (s *Service) AssignRole(ctx context.Context, actorID, spaceID, userID, roleID string) (*domain.Member, error) {
	if spaceID == "" || userID == "" || roleID == "" {
		return nil, fmt.Errorf("%w: space, user and role are required", domain.ErrInvalidInput)
	}
	if err := s.guard.Require(ctx, spaceID, actorID, domain.ManageRoles); err != nil {
		return nil, err
	}
	if err := s.outranks(ctx, actorID, spaceID, roleID); err != nil {
		return nil, err
	}

	if err := s.members.AssignRole(ctx, spaceID, userID, roleID); err != nil {
		return nil, err
	}
	member, err := s.members.FindMember(ctx, spaceID, userID)
	if err != nil {
		return nil, fmt.Errorf("reload member %s: %w", userID, err)
	}

	s.events.Publish(ctx, domain.MemberRolesUpdated{SpaceID: spaceID, UserID: userID, RoleIDs: member.RoleIDs})
	s.logger.Info(logging.Membership, logging.Publish, "role assigned", map[logging.ExtraKey]any{
		logging.SpaceID: spaceID,
		logging.UserID:  userID,
		"role":          roleID,
		"actor":         actorID,
	})
	return member, nil
}

func (s *Service) outranks(ctx context.Context, actorID, spaceID, roleID string) error {
	target, err := s.members.FindRole(ctx, spaceID, roleID)
	if err != nil {
		return err
	}
	roles, err := s.members.RolesForMember(ctx, spaceID, actorID)
	if err != nil {
		return err
	}

	if lo.SomeBy(roles, func(r domain.Role) bool { return r.Permissions&domain.Administrator != 0 }) {
		return nil
	}
	highest := lo.MaxBy(roles, func(a, b domain.Role) bool { return a.Position > b.Position })
	if len(roles) == 0 || target.Position >= highest.Position {
		return domain.NewMissingPermissionError(spaceID, actorID, domain.ManageRoles)
	}
	return nil
}

// RemoveMember removes userID from the space. Members may always leave;
// removing someone else needs KickMembers.
func (s *Service) RemoveMember(ctx context.Context, actorID, spaceID, userID string) error {
	if spaceID == "" || userID == "" {
		return fmt.Errorf("%w: space and user are required", domain.ErrInvalidInput)
	}
	if actorID != userID {
		if err := s.guard.Require(ctx, spaceID, actorID, domain.KickMembers); err != nil {
			return err
		}
	}

	if err := s.members.RemoveMember(ctx, spaceID, userID); err != nil {
		return err
	}

	s.events.Publish(ctx, domain.MemberRemoved{SpaceID: spaceID, UserID: userID, RemovedBy: actorID})
	s.logger.Info(logging.Membership, logging.Publish, "member removed", map[logging.ExtraKey]any{
		logging.SpaceID: spaceID,
		logging.UserID:  userID,
		"actor":         actorID,
	})
	return nil
}
