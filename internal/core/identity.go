package core

// Role is the suite-wide authorization role carried by every identity.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleHR       Role = "hr"
	RoleManager  Role = "manager"
	RoleEmployee Role = "employee"
)

// Elevated reports whether the role may act on resources it does not
// own, such as moderating another author's message.
func (r Role) Elevated() bool {
	return r == RoleAdmin || r == RoleHR
}

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleHR, RoleManager, RoleEmployee:
		return true
	}
	return false
}

// Identity is the authenticated principal behind a connection. It is
// resolved once at connect time; membership checks stay fresh per
// operation, the identity itself does not.
type Identity struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	Role         Role   `json:"role"`
	DepartmentID int64  `json:"department_id,omitempty"`
}
