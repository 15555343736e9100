package models

import "slices"

type EligibilityKind int

const (
	EligibleEveryone EligibilityKind = iota
	EligibleSingleUser
	EligibleRoleSet
)

// Eligibility decides which users may accrue progress on a task. Exactly one of the
// variants is active; UserID is only set for SingleUser and Roles only for RoleSet.
type Eligibility struct {
	Kind   EligibilityKind
	UserID string
	Roles  []string
}

func Everyone() Eligibility {
	return Eligibility{Kind: EligibleEveryone}
}

func SingleUser(userID string) Eligibility {
	return Eligibility{Kind: EligibleSingleUser, UserID: userID}
}

// RoleSet with no roles degrades to Everyone.
func RoleSet(roles ...string) Eligibility {
	if len(roles) == 0 {
		return Everyone()
	}
	return Eligibility{Kind: EligibleRoleSet, Roles: slices.Clone(roles)}
}

// Allows reports whether a user holding roles may progress on the task.
func (e Eligibility) Allows(userID string, roles []string) bool {
	switch e.Kind {
	case EligibleSingleUser:
		return e.UserID == userID
	case EligibleRoleSet:
		for _, r := range roles {
			if slices.Contains(e.Roles, r) {
				return true
			}
		}
		return false
	default:
		return true
	}
}

// Columns maps the variant onto the nullable assigned_user_id / authorized_roles pair.
func (e Eligibility) Columns() (assignedUserID *string, authorizedRoles []string) {
	switch e.Kind {
	case EligibleSingleUser:
		id := e.UserID
		return &id, nil
	case EligibleRoleSet:
		return nil, e.Roles
	}
	return nil, nil
}

// EligibilityFromColumns is the inverse of Columns. A row with both columns set, which
// the schema forbids, resolves to the single user.
func EligibilityFromColumns(assignedUserID *string, authorizedRoles []string) Eligibility {
	if assignedUserID != nil && *assignedUserID != "" {
		return SingleUser(*assignedUserID)
	}
	return RoleSet(authorizedRoles...)
}
