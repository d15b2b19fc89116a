package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasPermissionIsConjunctive(t *testing.T) {
	bits := []Permission{ViewChannel, SendMessages, ManageMessages, KickMembers}

	for _, a := range bits {
		for _, b := range bits {
			for mask := Permission(0); mask < 1<<5; mask++ {
				effective := mask << 1 // never sets Administrator
				want := effective&a != 0 && effective&b != 0
				assert.Equalf(t, want, HasPermission(effective, a|b), "mask=%s required=%s", effective, a|b)
			}
		}
	}
}

func TestHasPermissionAdministratorShortCircuits(t *testing.T) {
	assert.True(t, HasPermission(Administrator, ManageSpace|BanMembers|SendMessages))
	assert.True(t, HasPermission(Administrator|ViewChannel, ManageRoles))
	assert.True(t, Administrator.Has(0))
}

func TestHasPermissionZeroRequired(t *testing.T) {
	assert.True(t, HasPermission(0, 0))
	assert.False(t, HasPermission(0, ViewChannel))
}

func TestPermissionString(t *testing.T) {
	assert.Equal(t, "NONE", Permission(0).String())
	assert.Equal(t, "VIEW_CHANNEL|SEND_MESSAGES", (ViewChannel | SendMessages).String())
	assert.Equal(t, "ADMINISTRATOR", Administrator.String())
}

func TestParsePermissions(t *testing.T) {
	p, err := ParsePermissions("view_channel", "SEND_MESSAGES")
	require.NoError(t, err)
	assert.Equal(t, ViewChannel|SendMessages, p)

	none, err := ParsePermissions()
	require.NoError(t, err)
	assert.Equal(t, Permission(0), none)

	_, err = ParsePermissions("FLY")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
