package repository

import (
	"context"
	"fmt"

	"github.com/hilthontt/chorus/internal/domain"
	"github.com/hilthontt/chorus/internal/infrastructure/configs"
)

// Seed loads configured fixtures. Roles are created before members so
// member role references resolve.
func Seed(ctx context.Context, s Seeder, fixtures []configs.SpaceFixture) error {
	for _, sp := range fixtures {
		if err := s.AddSpace(ctx, sp.ID, sp.Name); err != nil {
			return fmt.Errorf("seed space %s: %w", sp.ID, err)
		}
		for _, ch := range sp.Channels {
			if err := s.AddChannel(ctx, sp.ID, ch); err != nil {
				return fmt.Errorf("seed channel %s: %w", ch, err)
			}
		}
		for _, r := range sp.Roles {
			perms, err := domain.ParsePermissions(r.Permissions...)
			if err != nil {
				return fmt.Errorf("seed role %s: %w", r.ID, err)
			}
			role := domain.Role{ID: r.ID, SpaceID: sp.ID, Name: r.Name, Permissions: perms, Position: r.Position}
			if err := s.AddRole(ctx, role); err != nil {
				return fmt.Errorf("seed role %s: %w", r.ID, err)
			}
		}
		for _, m := range sp.Members {
			if err := s.AddMember(ctx, sp.ID, m.UserID, m.Roles...); err != nil {
				return fmt.Errorf("seed member %s: %w", m.UserID, err)
			}
		}
	}
	return nil
}
