package users_test

import (
	"testing"

	"github.com/Eklista/medialab-sub000/users"
	"github.com/stretchr/testify/require"
)

func TestAdministratorShortCircuit(t *testing.T) {
	// An administrator with an empty explicit set still passes every check.
	admin := users.User{
		ID:          1,
		Email:       "admin@medialab.test",
		Role:        users.RoleAdministrator,
		Permissions: users.NewPermissionSet(nil),
	}

	require.True(t, admin.Can("anything"))
	require.True(t, admin.Can("inventory.delete"))
	require.True(t, admin.CanAny("nope", "also-nope"))
}

func TestExplicitPermissionMembership(t *testing.T) {
	u := users.User{
		ID:          2,
		Role:        users.RoleCollaborator,
		Permissions: users.NewPermissionSet([]string{"projects.view", "projects.edit"}),
	}

	require.True(t, u.Can("projects.view"))
	require.False(t, u.Can("projects.delete"))
	require.True(t, u.CanAny("projects.delete", "projects.edit"))
	require.False(t, u.CanAny("users.view", "users.edit"))
}

func TestPermissionSetIgnoresEmptyNames(t *testing.T) {
	set := users.NewPermissionSet([]string{"", "a", ""})
	require.Len(t, set.Names(), 1)
	require.True(t, set.Has("a"))
	require.False(t, set.Has(""))
}

func TestFullName(t *testing.T) {
	require.Equal(t, "Ada Lovelace", users.User{FirstName: "Ada", LastName: "Lovelace"}.FullName())
	require.Equal(t, "Ada", users.User{FirstName: "Ada"}.FullName())
	require.Equal(t, "Lovelace", users.User{LastName: "Lovelace"}.FullName())
}
