package access

import "strings"

// Tier is the coarse authorization level derived from a role identifier.
type Tier int

const (
	// TierClassSecretary sees exactly one class. It is also the tier every
	// unrecognised role falls into.
	TierClassSecretary Tier = iota
	// TierCongregationAdmin sees one congregation and its classes.
	TierCongregationAdmin
	// TierTenantOwner sees the entire ministry.
	TierTenantOwner
)

func (t Tier) String() string {
	switch t {
	case TierTenantOwner:
		return "tenant_owner"
	case TierCongregationAdmin:
		return "congregation_admin"
	default:
		return "class_secretary"
	}
}

// Role identifiers issued by the identity provider.
const (
	RoleMinistryAdmin         = "admin_ministerio"
	RoleSuperintendent        = "superintendente"
	RoleCongregationAdmin     = "admin_congregacao"
	RoleCongregationSecretary = "secretario_congregacao"
	RoleClassSecretary        = "secretario_classe"
	RoleTeacher               = "professor"
)

var roleTiers = map[string]Tier{
	RoleMinistryAdmin:         TierTenantOwner,
	RoleSuperintendent:        TierTenantOwner,
	RoleCongregationAdmin:     TierCongregationAdmin,
	RoleCongregationSecretary: TierCongregationAdmin,
	RoleClassSecretary:        TierClassSecretary,
	RoleTeacher:               TierClassSecretary,
}

// Classify maps a role identifier to its tier. Unknown identifiers get the most
// restrictive tier.
func Classify(role string) Tier {
	if tier, ok := roleTiers[normalizeRole(role)]; ok {
		return tier
	}
	return TierClassSecretary
}

// KnownRole reports whether role belongs to the fixed enumeration.
func KnownRole(role string) bool {
	_, ok := roleTiers[normalizeRole(role)]
	return ok
}

func normalizeRole(role string) string {
	return strings.TrimSpace(strings.ToLower(role))
}
