// Package membership holds the member list of one organization and the
// ownership transfer protocol. Every operation returns a new Registry; the
// receiver is never modified.
package membership

import (
	"github.com/Marga-Ghale/ora-admin-console/internal/apperr"
	"github.com/Marga-Ghale/ora-admin-console/internal/models"
	"github.com/Marga-Ghale/ora-admin-console/internal/types"
	"github.com/Marga-Ghale/ora-admin-console/internal/validation"
	"github.com/google/uuid"
)

// LastActiveNever is shown for members who have not signed in yet.
const LastActiveNever = "Never"

// newID is swapped in tests.
var newID = uuid.NewString

type Registry struct {
	members []models.Membership
}

// New builds a registry and checks that exactly one member is Owner.
func New(members []models.Membership) (*Registry, error) {
	r := &Registry{members: models.CloneMembers(members)}
	if n := r.OwnerCount(); n != 1 {
		return nil, &apperr.InvariantViolation{Op: "load members", Reason: ownerCountReason(n)}
	}
	return r, nil
}

func ownerCountReason(n int) string {
	if n == 0 {
		return "organization has no owner"
	}
	return "organization has more than one owner"
}

// Members returns a copy of the member list.
func (r *Registry) Members() []models.Membership {
	return models.CloneMembers(r.members)
}

func (r *Registry) Len() int { return len(r.members) }

func (r *Registry) Find(id string) (models.Membership, bool) {
	if i := r.index(id); i >= 0 {
		return r.members[i], true
	}
	return models.Membership{}, false
}

func (r *Registry) Owner() (models.Membership, bool) {
	for _, m := range r.members {
		if m.Role == types.RoleOwner {
			return m, true
		}
	}
	return models.Membership{}, false
}

func (r *Registry) OwnerCount() int {
	n := 0
	for _, m := range r.members {
		if m.Role == types.RoleOwner {
			n++
		}
	}
	return n
}

// EmailTaken compares emails case-insensitively.
func (r *Registry) EmailTaken(email string) bool {
	key := validation.NormalizeEmail(email)
	for _, m := range r.members {
		if validation.NormalizeEmail(m.Email) == key {
			return true
		}
	}
	return false
}

func (r *Registry) index(id string) int {
	for i, m := range r.members {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func (r *Registry) with(mutate func(members []models.Membership)) *Registry {
	next := &Registry{members: models.CloneMembers(r.members)}
	mutate(next.members)
	return next
}

func notFound(id string) error {
	return &apperr.ValidationError{Field: "memberId", Message: "member " + id + " not found"}
}

// Revoke removes a member's access. The Owner can never be revoked; ownership
// has to be transferred first.
func (r *Registry) Revoke(id string) (*Registry, error) {
	i := r.index(id)
	if i < 0 {
		return nil, notFound(id)
	}
	if r.members[i].Role == types.RoleOwner {
		return nil, &apperr.InvariantViolation{Op: "revoke access", Reason: "the owner's access cannot be revoked; transfer ownership first"}
	}
	return r.with(func(ms []models.Membership) { ms[i].IsActive = false }), nil
}

// Grant restores access regardless of email verification.
func (r *Registry) Grant(id string) (*Registry, error) {
	i := r.index(id)
	if i < 0 {
		return nil, notFound(id)
	}
	return r.with(func(ms []models.Membership) { ms[i].IsActive = true }), nil
}

// NewMember is the caller-supplied part of an added membership.
type NewMember struct {
	Name  string
	Email string
	Role  types.Role
}

// Add appends a member with a fresh id. Owner is only created through a
// transfer.
func (r *Registry) Add(nm NewMember) (*Registry, models.Membership, error) {
	fe := apperr.FieldErrors{}
	fe.Add(validation.PersonName(nm.Name))
	fe.Add(validation.Email(nm.Email))
	switch nm.Role {
	case types.RoleAdmin, types.RoleManager, types.RoleSalesRep:
	case types.RoleOwner:
		fe[validation.FieldRole] = "Owner can only be assigned through an ownership transfer"
	default:
		fe[validation.FieldRole] = "Unknown role"
	}
	if err := fe.OrNil(); err != nil {
		return nil, models.Membership{}, err
	}
	if r.EmailTaken(nm.Email) {
		return nil, models.Membership{}, &apperr.ConflictError{Field: validation.FieldEmail, Message: "A member with this email already exists"}
	}

	m := models.Membership{
		ID:         newID(),
		Name:       nm.Name,
		Email:      nm.Email,
		Role:       nm.Role,
		IsActive:   true,
		LastActive: LastActiveNever,
	}
	next := r.with(func([]models.Membership) {})
	next.members = append(next.members, m)
	return next, m, nil
}

// promote and demote are only applied together, inside a single state
// update, by the transfer protocol.
func promote(ms []models.Membership, i int) { ms[i].Role = types.RoleOwner }

func demote(ms []models.Membership, i int) { ms[i].Role = types.RoleAdmin }
