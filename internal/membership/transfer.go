package membership

import (
	"github.com/Marga-Ghale/ora-admin-console/internal/apperr"
	"github.com/Marga-Ghale/ora-admin-console/internal/models"
	"github.com/Marga-Ghale/ora-admin-console/internal/types"
	"github.com/Marga-Ghale/ora-admin-console/internal/validation"
)

// TransferMode selects how a new owner is chosen.
type TransferMode string

const (
	TransferToExisting TransferMode = "existing"
	TransferToNew      TransferMode = "new"
)

// OwnerProfile is the onboarding form for an external owner. Coordinates
// arrive as typed text.
type OwnerProfile struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	TaxID         string `json:"taxId"`
	CitizenshipID string `json:"citizenshipId"`
	Address       string `json:"address"`
	Latitude      string `json:"latitude"`
	Longitude     string `json:"longitude"`
}

// Validate runs every field rule plus the email collision check and
// returns the aggregated field map.
func (p OwnerProfile) Validate(r *Registry) error {
	fe := apperr.FieldErrors{}
	fe.Add(validation.PersonName(p.Name))
	fe.Add(validation.Email(p.Email))
	fe.Add(validation.Phone(p.Phone))
	fe.Add(validation.TaxIDCreate(validation.FormatTaxIDCreate(p.TaxID)))
	fe.Add(validation.CitizenshipID(p.CitizenshipID))
	fe.Add(validation.Address(p.Address))
	fe.Add(validation.Latitude(p.Latitude))
	fe.Add(validation.Longitude(p.Longitude))
	if err := fe.OrNil(); err != nil {
		return err
	}
	if r.EmailTaken(p.Email) {
		return &apperr.ConflictError{Field: validation.FieldEmail, Message: "A member with this email already exists"}
	}
	return nil
}

// TransferToExistingMember makes targetID the Owner and the previous Owner an
// Admin. Nothing else about either membership changes.
func (r *Registry) TransferToExistingMember(targetID string) (*Registry, error) {
	ti := r.index(targetID)
	if ti < 0 {
		return nil, &apperr.ValidationError{Field: "targetId", Message: "member not found in this organization"}
	}
	target := r.members[ti]
	if target.Role == types.RoleOwner {
		return nil, &apperr.ValidationError{Field: "targetId", Message: "already owner"}
	}
	if !target.IsActive {
		return nil, &apperr.ValidationError{Field: "targetId", Message: "member's access is revoked; grant access before transferring ownership"}
	}
	oi, err := r.ownerIndex()
	if err != nil {
		return nil, err
	}

	return r.with(func(ms []models.Membership) {
		demote(ms, oi)
		promote(ms, ti)
	}), nil
}

// TransferToNewOwner onboards an external owner and demotes the current one
// in the same update.
func (r *Registry) TransferToNewOwner(p OwnerProfile) (*Registry, models.Membership, error) {
	if err := p.Validate(r); err != nil {
		return nil, models.Membership{}, err
	}
	oi, err := r.ownerIndex()
	if err != nil {
		return nil, models.Membership{}, err
	}

	lat, _ := validation.ParseCoordinate(p.Latitude)
	lng, _ := validation.ParseCoordinate(p.Longitude)
	owner := models.Membership{
		ID:            newID(),
		Name:          p.Name,
		Email:         p.Email,
		Role:          types.RoleAdmin,
		EmailVerified: false,
		IsActive:      true,
		LastActive:    LastActiveNever,
		Phone:         validation.DigitsOnly(p.Phone),
		TaxID:         validation.FormatTaxIDCreate(p.TaxID),
		CitizenshipID: p.CitizenshipID,
		Address:       p.Address,
		Location:      &models.Location{Latitude: lat, Longitude: lng},
	}

	next := r.with(func([]models.Membership) {})
	next.members = append(next.members, owner)
	ni := len(next.members) - 1
	demote(next.members, oi)
	promote(next.members, ni)
	return next, next.members[ni], nil
}

func (r *Registry) ownerIndex() (int, error) {
	for i, m := range r.members {
		if m.Role == types.RoleOwner {
			return i, nil
		}
	}
	return -1, &apperr.InvariantViolation{Op: "transfer ownership", Reason: "organization has no owner"}
}
