package repository

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/hilthontt/chorus/internal/domain"
	"github.com/samber/lo"
)

// Seeder creates the spaces, roles, channels and members other services
// read. Both directories implement it.
type Seeder interface {
	AddSpace(ctx context.Context, spaceID, name string) error
	AddChannel(ctx context.Context, spaceID, channelID string) error
	AddRole(ctx context.Context, role domain.Role) error
	AddMember(ctx context.Context, spaceID, userID string, roleIDs ...string) error
}

type memorySpace struct {
	name     string
	roles    map[string]domain.Role
	members  map[string]*domain.Member
	channels map[string]struct{}
}

// Directory is the in-memory membership repository and channel directory.
// A role whose ID equals its space ID is the space's default role and
// applies to every member.
type Directory struct {
	mu       sync.RWMutex
	spaces   map[string]*memorySpace
	channels map[string]string // channelID -> spaceID
	now      func() time.Time
}

var (
	_ domain.MembershipRepository = (*Directory)(nil)
	_ domain.ChannelDirectory     = (*Directory)(nil)
	_ Seeder                      = (*Directory)(nil)
)

func NewDirectory() *Directory {
	return &Directory{
		spaces:   make(map[string]*memorySpace),
		channels: make(map[string]string),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (d *Directory) AddSpace(_ context.Context, spaceID, name string) error {
	if spaceID == "" {
		return domain.ErrInvalidInput
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if sp, ok := d.spaces[spaceID]; ok {
		sp.name = name
		return nil
	}
	d.spaces[spaceID] = &memorySpace{
		name:     name,
		roles:    make(map[string]domain.Role),
		members:  make(map[string]*domain.Member),
		channels: make(map[string]struct{}),
	}
	return nil
}

func (d *Directory) space(spaceID string, missing error) (*memorySpace, error) {
	sp, ok := d.spaces[spaceID]
	if !ok {
		return nil, missing
	}
	return sp, nil
}

var errUnknownSpace = fmt.Errorf("%w: unknown space", domain.ErrInvalidInput)

func (d *Directory) AddChannel(_ context.Context, spaceID, channelID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	sp, err := d.space(spaceID, errUnknownSpace)
	if err != nil {
		return err
	}
	sp.channels[channelID] = struct{}{}
	d.channels[channelID] = spaceID
	return nil
}

func (d *Directory) AddRole(_ context.Context, role domain.Role) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	sp, err := d.space(role.SpaceID, errUnknownSpace)
	if err != nil {
		return err
	}
	sp.roles[role.ID] = role
	return nil
}

func (d *Directory) AddMember(_ context.Context, spaceID, userID string, roleIDs ...string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	sp, err := d.space(spaceID, errUnknownSpace)
	if err != nil {
		return err
	}
	for _, id := range roleIDs {
		if _, ok := sp.roles[id]; !ok {
			return domain.ErrRoleNotFound
		}
	}

	sp.members[userID] = &domain.Member{
		SpaceID:  spaceID,
		UserID:   userID,
		RoleIDs:  lo.Uniq(roleIDs),
		JoinedAt: d.now(),
	}
	return nil
}

func (d *Directory) FindMember(_ context.Context, spaceID, userID string) (*domain.Member, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	sp, ok := d.spaces[spaceID]
	if !ok {
		return nil, domain.ErrMemberNotFound
	}
	m, ok := sp.members[userID]
	if !ok {
		return nil, domain.ErrMemberNotFound
	}

	cpy := *m
	cpy.RoleIDs = slices.Clone(m.RoleIDs)
	return &cpy, nil
}

// RolesForMember returns the member's roles plus the default role, ordered
// by position.
func (d *Directory) RolesForMember(_ context.Context, spaceID, userID string) ([]domain.Role, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	sp, ok := d.spaces[spaceID]
	if !ok {
		return nil, domain.ErrMemberNotFound
	}
	m, ok := sp.members[userID]
	if !ok {
		return nil, domain.ErrMemberNotFound
	}

	roles := lo.FilterMap(m.RoleIDs, func(id string, _ int) (domain.Role, bool) {
		r, ok := sp.roles[id]
		return r, ok
	})
	if def, ok := sp.roles[spaceID]; ok && !slices.Contains(m.RoleIDs, spaceID) {
		roles = append(roles, def)
	}
	slices.SortFunc(roles, func(a, b domain.Role) int { return a.Position - b.Position })
	return roles, nil
}

func (d *Directory) FindRole(_ context.Context, spaceID, roleID string) (*domain.Role, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	sp, ok := d.spaces[spaceID]
	if !ok {
		return nil, domain.ErrRoleNotFound
	}
	r, ok := sp.roles[roleID]
	if !ok {
		return nil, domain.ErrRoleNotFound
	}
	return &r, nil
}

func (d *Directory) SpacesForUser(_ context.Context, userID string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var ids []string
	for id, sp := range d.spaces {
		if _, ok := sp.members[userID]; ok {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (d *Directory) AssignRole(_ context.Context, spaceID, userID, roleID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	sp, err := d.space(spaceID, domain.ErrMemberNotFound)
	if err != nil {
		return err
	}
	m, ok := sp.members[userID]
	if !ok {
		return domain.ErrMemberNotFound
	}
	if _, ok := sp.roles[roleID]; !ok {
		return domain.ErrRoleNotFound
	}
	if !slices.Contains(m.RoleIDs, roleID) {
		m.RoleIDs = append(m.RoleIDs, roleID)
	}
	return nil
}

func (d *Directory) RemoveMember(_ context.Context, spaceID, userID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	sp, err := d.space(spaceID, domain.ErrMemberNotFound)
	if err != nil {
		return err
	}
	if _, ok := sp.members[userID]; !ok {
		return domain.ErrMemberNotFound
	}
	delete(sp.members, userID)
	return nil
}

func (d *Directory) SpaceOfChannel(_ context.Context, channelID string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	spaceID, ok := d.channels[channelID]
	if !ok {
		return "", domain.ErrChannelNotFound
	}
	return spaceID, nil
}
