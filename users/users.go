package users

// RoleType represents a user's role within the MediaLab platform.
type RoleType string

const (
	// RoleAdministrator grants every permission implicitly; permission
	// checks never consult the explicit permission set for this role.
	RoleAdministrator RoleType = "administrator"

	RoleCollaborator RoleType = "collaborator"
	RoleClient       RoleType = "client"
	RoleViewer       RoleType = "viewer"
)

// User is the canonical client-side user record. The REST response shape is
// reconciled into this type exactly once, at the api boundary adapter —
// nothing deeper than the adapter deals with alternate field names.
type User struct {
	ID          int64         `json:"id"`
	Email       string        `json:"email"`
	FirstName   string        `json:"first_name"`
	LastName    string        `json:"last_name"`
	Role        RoleType      `json:"role"`
	Permissions PermissionSet `json:"permissions"`
}

// FullName returns "FirstName LastName", tolerating either being empty.
func (u User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

// IsAdministrator reports whether the user holds the administrator role.
func (u User) IsAdministrator() bool {
	return u.Role == RoleAdministrator
}

// Can reports whether the user holds the named permission. Administrators
// short-circuit to true regardless of the explicit set.
func (u User) Can(permission string) bool {
	if u.IsAdministrator() {
		return true
	}
	return u.Permissions.Has(permission)
}

// CanAny reports whether the user holds at least one of the named permissions.
func (u User) CanAny(permissions ...string) bool {
	if u.IsAdministrator() {
		return true
	}
	for _, p := range permissions {
		if u.Permissions.Has(p) {
			return true
		}
	}
	return false
}

// PermissionSet is the set of explicit permission names granted to a user.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a PermissionSet from a list of permission names.
func NewPermissionSet(names []string) PermissionSet {
	set := make(PermissionSet, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		set[n] = struct{}{}
	}
	return set
}

// Has reports set membership.
func (s PermissionSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Names returns the permission names in the set, in no particular order.
func (s PermissionSet) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	return names
}
