package api

import (
	"github.com/Eklista/medialab-sub000/internal/utils"
	"github.com/Eklista/medialab-sub000/users"
)

// userDTO tolerates the API's historical mix of snake_case and camelCase
// field names. The reconciliation into the canonical users.User happens
// here, exactly once — nothing past this adapter sees alternate names.
type userDTO struct {
	ID    *int64  `json:"id"`
	Email *string `json:"email"`

	FirstName      *string `json:"first_name"`
	FirstNameCamel *string `json:"firstName"`
	LastName       *string `json:"last_name"`
	LastNameCamel  *string `json:"lastName"`

	Role     *string `json:"role"`
	RoleName *string `json:"role_name"`

	Permissions []string `json:"permissions"`
}

func (d userDTO) toUser() users.User {
	return users.User{
		ID:        utils.Value(d.ID),
		Email:     utils.Value(d.Email),
		FirstName: utils.FirstNonEmpty(utils.Value(d.FirstName), utils.Value(d.FirstNameCamel)),
		LastName:  utils.FirstNonEmpty(utils.Value(d.LastName), utils.Value(d.LastNameCamel)),
		Role: users.RoleType(
			utils.FirstNonEmpty(utils.Value(d.Role), utils.Value(d.RoleName)),
		),
		Permissions: users.NewPermissionSet(d.Permissions),
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	User userDTO `json:"user"`
}

type statusResponse struct {
	Valid bool `json:"valid"`
}

type verifyPasswordRequest struct {
	Password string `json:"password"`
}

type passwordResetRequest struct {
	Email string `json:"email"`
}

type passwordResetConfirm struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}
