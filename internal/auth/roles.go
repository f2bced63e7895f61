package auth

// Role represents a user role. Roles are strictly ordered: every landlord
// capability includes viewer ones, and admin includes both.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleLandlord Role = "landlord"
	RoleAdmin    Role = "admin"
)

var roleRank = map[Role]int{
	RoleViewer:   1,
	RoleLandlord: 2,
	RoleAdmin:    3,
}

// NormalizeRole validates a role string.
func NormalizeRole(value string) (Role, bool) {
	role := Role(value)
	if _, ok := roleRank[role]; !ok {
		return "", false
	}
	return role, true
}

// RoleAtLeast reports whether role satisfies the required role. Unknown
// roles satisfy nothing.
func RoleAtLeast(role, required Role) bool {
	rank, ok := roleRank[role]
	if !ok {
		return false
	}
	return rank >= roleRank[required]
}
