package models

// Role is the authorization level of a caller, supplied by the upstream
// identity gateway.
type Role string

const (
	RoleUser       Role = "User"
	RoleAdmin      Role = "Admin"
	RoleSuperAdmin Role = "SuperAdmin"
)

// AtLeastAdmin reports whether r may perform review transitions.
func (r Role) AtLeastAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// Principal identifies the caller of an operation.
type Principal struct {
	UserID ULID
	Email  string
	Role   Role
}

// CanManage reports whether p may mutate a video owned by ownerID.
func (p Principal) CanManage(ownerID ULID) bool {
	return p.UserID == ownerID || p.Role.AtLeastAdmin()
}
