package permissions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hilthontt/chorus/internal/domain"
	"github.com/hilthontt/chorus/internal/infrastructure/eventbus"
	"github.com/hilthontt/chorus/internal/infrastructure/logging"
	"github.com/hilthontt/chorus/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestComputeEffectiveORsRoleMasks(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockMembershipRepository(ctrl)
	repo.EXPECT().RolesForMember(gomock.Any(), "s1", "u1").Return([]domain.Role{
		{ID: "r1", Permissions: 0b001},
		{ID: "r2", Permissions: 0b010},
	}, nil)

	mask, err := NewEngine(repo).ComputeEffective(context.Background(), "s1", "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.Permission(0b011), mask)
}

func TestComputeEffectiveNonMemberIsZero(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockMembershipRepository(ctrl)
	repo.EXPECT().RolesForMember(gomock.Any(), "s1", "stranger").Return(nil, domain.ErrMemberNotFound)

	mask, err := NewEngine(repo).ComputeEffective(context.Background(), "s1", "stranger")
	require.NoError(t, err)
	assert.Zero(t, mask)
}

func TestComputeEffectivePropagatesStoreErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockMembershipRepository(ctrl)
	repo.EXPECT().RolesForMember(gomock.Any(), "s1", "u1").Return(nil, errors.New("connection reset"))

	_, err := NewEngine(repo).ComputeEffective(context.Background(), "s1", "u1")
	assert.ErrorContains(t, err, "connection reset")
}

func TestRequireTwoStageGuard(t *testing.T) {
	member := &domain.Member{SpaceID: "s1", UserID: "u1"}

	tests := []struct {
		name     string
		setup    func(repo *mocks.MockMembershipRepository)
		required domain.Permission
		wantErr  error
	}{
		{
			name: "not a member",
			setup: func(repo *mocks.MockMembershipRepository) {
				repo.EXPECT().FindMember(gomock.Any(), "s1", "u1").Return(nil, domain.ErrMemberNotFound)
			},
			required: domain.SendMessages,
			wantErr:  domain.ErrNotAMember,
		},
		{
			name: "missing permission",
			setup: func(repo *mocks.MockMembershipRepository) {
				repo.EXPECT().FindMember(gomock.Any(), "s1", "u1").Return(member, nil)
				repo.EXPECT().RolesForMember(gomock.Any(), "s1", "u1").Return([]domain.Role{{Permissions: domain.ViewChannel}}, nil)
			},
			required: domain.ViewChannel | domain.SendMessages,
			wantErr:  domain.ErrMissingPermission,
		},
		{
			name: "granted",
			setup: func(repo *mocks.MockMembershipRepository) {
				repo.EXPECT().FindMember(gomock.Any(), "s1", "u1").Return(member, nil)
				repo.EXPECT().RolesForMember(gomock.Any(), "s1", "u1").Return([]domain.Role{
					{Permissions: domain.ViewChannel},
					{Permissions: domain.SendMessages},
				}, nil)
			},
			required: domain.ViewChannel | domain.SendMessages,
		},
		{
			name: "administrator",
			setup: func(repo *mocks.MockMembershipRepository) {
				repo.EXPECT().FindMember(gomock.Any(), "s1", "u1").Return(member, nil)
				repo.EXPECT().RolesForMember(gomock.Any(), "s1", "u1").Return([]domain.Role{{Permissions: domain.Administrator}}, nil)
			},
			required: domain.ManageSpace | domain.BanMembers,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			repo := mocks.NewMockMembershipRepository(ctrl)
			tt.setup(repo)

			err := NewEngine(repo).Require(context.Background(), "s1", "u1", tt.required)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}

			require.ErrorIs(t, err, tt.wantErr)
			require.ErrorIs(t, err, domain.ErrForbidden)
			assert.NotErrorIs(t, err, domain.ErrUnauthenticated)
		})
	}
}

func TestCacheInvalidatedByRoleEvents(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockMembershipRepository(ctrl)

	gomock.InOrder(
		repo.EXPECT().RolesForMember(gomock.Any(), "s1", "u1").Return([]domain.Role{{Permissions: domain.ViewChannel}}, nil),
		repo.EXPECT().RolesForMember(gomock.Any(), "s1", "u1").Return([]domain.Role{{Permissions: domain.ViewChannel | domain.SendMessages}}, nil),
	)

	bus := eventbus.New(logging.NewNop())
	engine := NewEngine(repo, WithCache(16, time.Minute))
	unsubscribe := engine.RegisterInvalidation(bus)
	defer unsubscribe()

	ctx := context.Background()
	mask, err := engine.ComputeEffective(ctx, "s1", "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.ViewChannel, mask)

	mask, err = engine.ComputeEffective(ctx, "s1", "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.ViewChannel, mask, "second read served from cache")

	bus.Publish(ctx, domain.MemberRolesUpdated{SpaceID: "s1", UserID: "u1"})

	mask, err = engine.ComputeEffective(ctx, "s1", "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.ViewChannel|domain.SendMessages, mask)
}

func TestEffectiveOfNoRoles(t *testing.T) {
	assert.Zero(t, Effective(nil))
}
