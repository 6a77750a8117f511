package auth

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoleOrdering(t *testing.T) {
	require.True(t, RoleAdmin.AtLeast(RoleModerator))
	require.True(t, RoleModerator.AtLeast(RoleArtist))
	require.True(t, RoleArtist.AtLeast(RoleUser))
	require.True(t, RoleUser.AtLeast(RoleUser))

	require.False(t, RoleUser.AtLeast(RoleArtist))
	require.False(t, RoleArtist.AtLeast(RoleModerator))
	require.False(t, RoleModerator.AtLeast(RoleAdmin))
}

func TestUnknownRoleRanksBelowEverything(t *testing.T) {
	unknown := Role("root")
	require.False(t, unknown.Valid())
	require.Equal(t, -1, unknown.Level())
	require.False(t, unknown.AtLeast(RoleUser))
	// Nothing can "satisfy" an unknown requirement either.
	require.False(t, RoleAdmin.AtLeast(unknown))
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole("  Moderator ")
	require.NoError(t, err)
	require.Equal(t, RoleModerator, role)

	_, err = ParseRole("owner")
	require.Error(t, err)

	_, err = ParseRole("")
	require.Error(t, err)
}
