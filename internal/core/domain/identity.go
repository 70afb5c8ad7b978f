package domain

type ConnectionID string

// Role is a permission level. Ranks are fixed; see Rank.
type Role string

const (
	RoleUser          Role = "user"
	RoleVIP           Role = "vip"
	RoleModerator     Role = "moderator"
	RoleBroadcaster   Role = "broadcaster"
	RoleAdministrator Role = "administrator"
	RoleAdmin         Role = "admin"
	RoleBot           Role = "bot"
)

// Rank returns the role's position in the permission hierarchy.
// Unknown roles rank 0 and therefore satisfy no requirement.
func (r Role) Rank() int {
	switch r {
	case RoleUser:
		return 1
	case RoleVIP:
		return 2
	case RoleModerator:
		return 3
	case RoleBroadcaster:
		return 4
	case RoleAdministrator, RoleAdmin:
		return 5
	case RoleBot:
		return 6
	default:
		return 0
	}
}

func (r Role) Valid() bool {
	return r.Rank() > 0
}

// AtLeast reports whether r carries the permissions of required.
func (r Role) AtLeast(required Role) bool {
	return r.Rank() >= required.Rank()
}

// ParseRole maps a claim value onto a known role, defaulting to RoleUser.
func ParseRole(s string) Role {
	if r := Role(s); r.Valid() {
		return r
	}
	return RoleUser
}

type Identity struct {
	ID           string `json:"id"`
	PersistentID string `json:"persistentId"`
	Username     string `json:"username"`
	Role         Role   `json:"role"`
}

func (i Identity) IsBot() bool {
	return i.Role == RoleBot
}
