package types

import "strings"

// Role is a membership role inside one organization.
type Role string

// Membership roles
const (
	RoleOwner    Role = "Owner"
	RoleAdmin    Role = "Admin"
	RoleManager  Role = "Manager"
	RoleSalesRep Role = "SalesRep"
)

// OrgStatus is the activity status of an organization.
type OrgStatus string

// Organization status values
const (
	OrgActive   OrgStatus = "Active"
	OrgInactive OrgStatus = "Inactive"
)

// SubscriptionStatus values
type SubscriptionStatus string

const (
	SubscriptionActive  SubscriptionStatus = "Active"
	SubscriptionExpired SubscriptionStatus = "Expired"
)

// PlanType is a subscription billing period.
type PlanType string

const (
	Plan6Months  PlanType = "6months"
	Plan12Months PlanType = "12months"
)

// ActorRole is the console role of the operator performing an action.
type ActorRole string

// Operator roles
const (
	ActorSuperAdmin ActorRole = "super_admin"
	ActorDeveloper  ActorRole = "developer"
	ActorSupport    ActorRole = "support"
)

var ValidRoles = []Role{RoleOwner, RoleAdmin, RoleManager, RoleSalesRep}

var ValidPlans = []PlanType{Plan6Months, Plan12Months}

// ParseRole accepts the spellings different directory versions have used
// ("owner", "OWNER", "sales_rep", "salesRep").
func ParseRole(s string) (Role, bool) {
	key := strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(s))
	for _, r := range ValidRoles {
		if strings.ToLower(string(r)) == key {
			return r, true
		}
	}
	return "", false
}

func IsValidPlan(p PlanType) bool {
	for _, v := range ValidPlans {
		if v == p {
			return true
		}
	}
	return false
}

// PlanMonths returns the number of calendar months a plan covers.
func PlanMonths(p PlanType) int {
	switch p {
	case Plan6Months:
		return 6
	case Plan12Months:
		return 12
	default:
		return 0
	}
}

func IsValidActorRole(r ActorRole) bool {
	return r == ActorSuperAdmin || r == ActorDeveloper || r == ActorSupport
}
