package access

import (
	"fmt"
	"strings"
)

// Identity is the authenticated user as supplied by the identity provider.
// Empty CongregationID/ClassID mean the field is absent.
type Identity struct {
	ID               string `json:"id"`
	DisplayName      string `json:"display_name"`
	Role             string `json:"role"`
	MinistryID       string `json:"ministry_id"`
	CongregationID   string `json:"congregation_id,omitempty"`
	CongregationName string `json:"congregation_name,omitempty"`
	ClassID          string `json:"class_id,omitempty"`
	ClassName        string `json:"class_name,omitempty"`
}

// Tier is recomputed from the role on every call; it is never cached on the identity.
func (i Identity) Tier() Tier { return Classify(i.Role) }

// Fingerprint identifies this exact version of the identity. Any profile change
// produces a different fingerprint.
func (i Identity) Fingerprint() string {
	return strings.Join([]string{
		i.ID, normalizeRole(i.Role), i.MinistryID, i.CongregationID, i.ClassID,
		i.CongregationName, i.ClassName,
	}, "|")
}

// Scope is the data partition a query is restricted to.
type Scope struct {
	MinistryID     string `json:"ministry_id"`
	CongregationID string `json:"congregation_id,omitempty"`
	ClassID        string `json:"class_id,omitempty"`
}

// Tier reports the tier implied by the populated fields.
func (s Scope) Tier() Tier {
	switch {
	case s.ClassID != "":
		return TierClassSecretary
	case s.CongregationID != "":
		return TierCongregationAdmin
	default:
		return TierTenantOwner
	}
}

// Valid reports whether the scope satisfies the shape its tier requires.
func (s Scope) Valid() bool {
	if s.MinistryID == "" {
		return false
	}
	if s.ClassID != "" && s.CongregationID == "" {
		return false
	}
	return true
}

// Contains reports whether an entity tagged with congregationID/classID falls
// inside the scope. Empty ids on the entity never match a narrower scope.
func (s Scope) Contains(congregationID, classID string) bool {
	if s.CongregationID != "" && s.CongregationID != congregationID {
		return false
	}
	if s.ClassID != "" && s.ClassID != classID {
		return false
	}
	return true
}

func (s Scope) String() string {
	parts := []string{"ministry=" + s.MinistryID}
	if s.CongregationID != "" {
		parts = append(parts, "congregation="+s.CongregationID)
	}
	if s.ClassID != "" {
		parts = append(parts, "class="+s.ClassID)
	}
	return strings.Join(parts, ",")
}

// Resolve derives the data partition the identity may query. A tier whose
// required fields are absent fails with ErrIncompleteIdentity; so does an
// unrecognised role.
func Resolve(identity Identity) (Scope, error) {
	ministryID := strings.TrimSpace(identity.MinistryID)
	congregationID := strings.TrimSpace(identity.CongregationID)
	classID := strings.TrimSpace(identity.ClassID)

	if !KnownRole(identity.Role) {
		return Scope{}, fmt.Errorf("%w: unrecognised role %q", ErrIncompleteIdentity, identity.Role)
	}
	if ministryID == "" {
		return Scope{}, fmt.Errorf("%w: ministry_id is required", ErrIncompleteIdentity)
	}

	switch identity.Tier() {
	case TierTenantOwner:
		return Scope{MinistryID: ministryID}, nil
	case TierCongregationAdmin:
		if congregationID == "" {
			return Scope{}, fmt.Errorf("%w: congregation_id is required", ErrIncompleteIdentity)
		}
		return Scope{MinistryID: ministryID, CongregationID: congregationID}, nil
	default:
		if congregationID == "" {
			return Scope{}, fmt.Errorf("%w: congregation_id is required", ErrIncompleteIdentity)
		}
		if classID == "" {
			return Scope{}, fmt.Errorf("%w: class_id is required", ErrIncompleteIdentity)
		}
		return Scope{MinistryID: ministryID, CongregationID: congregationID, ClassID: classID}, nil
	}
}
