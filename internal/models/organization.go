package models

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Marga-Ghale/ora-admin-console/internal/types"
	"github.com/shopspring/decimal"
)

// ============================================
// Organization aggregate
// ============================================

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type Deactivation struct {
	Reason string    `json:"reason"`
	Date   time.Time `json:"date"`
}

// SubscriptionExtension is an append-only history entry.
type SubscriptionExtension struct {
	ID              string          `json:"id"`
	ExtensionDate   time.Time       `json:"extensionDate"`
	Duration        types.PlanType  `json:"duration"`
	PreviousEndDate time.Time       `json:"previousEndDate"`
	NewEndDate      time.Time       `json:"newEndDate"`
	ExtendedBy      string          `json:"extendedBy"`
	Amount          decimal.Decimal `json:"amount"`
}

type Subscription struct {
	Status  types.SubscriptionStatus `json:"status"`
	Expiry  time.Time                `json:"expiry"`
	Type    types.PlanType           `json:"type"`
	History []SubscriptionExtension  `json:"history"`
}

// WorkingHours are passthrough settings, never computed here.
type WorkingHours struct {
	CheckIn         string `json:"checkIn"`
	CheckOut        string `json:"checkOut"`
	HalfDayCheckOut string `json:"halfDayCheckOut"`
	WeeklyOffDay    string `json:"weeklyOffDay"`
	Timezone        string `json:"timezone"`
}

type Membership struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	Role          types.Role `json:"role"`
	EmailVerified bool       `json:"emailVerified"`
	IsActive      bool       `json:"isActive"`
	LastActive    string     `json:"lastActive"`

	// Onboarding profile, only filled for owners created by transfer.
	Phone         string    `json:"phone,omitempty"`
	TaxID         string    `json:"taxId,omitempty"`
	CitizenshipID string    `json:"citizenshipId,omitempty"`
	Address       string    `json:"address,omitempty"`
	Location      *Location `json:"location,omitempty"`
}

type Organization struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Address       string          `json:"address"`
	Phone         string          `json:"phone"`
	TaxID         string          `json:"taxId"`
	Location      Location        `json:"location"`
	Status        types.OrgStatus `json:"status"`
	EmailVerified bool            `json:"emailVerified"`
	Deactivation  *Deactivation   `json:"deactivation,omitempty"`
	Subscription  Subscription    `json:"subscription"`
	WorkingHours  WorkingHours    `json:"workingHours"`
	CreatedDate   time.Time       `json:"createdDate"`
	Members       []Membership    `json:"members"`
}

// AddressLink is derived from the coordinates.
func (o *Organization) AddressLink() string {
	return AddressLink(o.Location)
}

func AddressLink(l Location) string {
	return fmt.Sprintf("https://www.google.com/maps?q=%s,%s",
		strconv.FormatFloat(l.Latitude, 'f', -1, 64),
		strconv.FormatFloat(l.Longitude, 'f', -1, 64))
}

// Owner returns the membership holding the Owner role.
func (o *Organization) Owner() (Membership, bool) {
	for _, m := range o.Members {
		if m.Role == types.RoleOwner {
			return m, true
		}
	}
	return Membership{}, false
}

// OwnerName is read from the owner membership, never stored separately.
func (o *Organization) OwnerName() string {
	owner, _ := o.Owner()
	return owner.Name
}

func (o *Organization) OwnerEmail() string {
	owner, _ := o.Owner()
	return owner.Email
}

func (o *Organization) IsActive() bool {
	return o.Status == types.OrgActive
}

// Clone deep-copies the organization so working copies never alias the
// committed snapshot.
func (o *Organization) Clone() *Organization {
	if o == nil {
		return nil
	}
	c := *o
	if o.Deactivation != nil {
		d := *o.Deactivation
		c.Deactivation = &d
	}
	c.Subscription.History = append([]SubscriptionExtension(nil), o.Subscription.History...)
	c.Members = CloneMembers(o.Members)
	return &c
}

func CloneMembers(in []Membership) []Membership {
	if in == nil {
		return nil
	}
	out := make([]Membership, len(in))
	for i, m := range in {
		out[i] = m
		if m.Location != nil {
			l := *m.Location
			out[i].Location = &l
		}
	}
	return out
}

// OrganizationPatch carries the editable fields sent on edit commit.
type OrganizationPatch struct {
	Name         string       `json:"name"`
	Address      string       `json:"address"`
	Phone        string       `json:"phone"`
	TaxID        string       `json:"taxId"`
	Location     Location     `json:"location"`
	WorkingHours WorkingHours `json:"workingHours"`
}

// PatchOf extracts the editable fields of an organization.
func PatchOf(o *Organization) OrganizationPatch {
	return OrganizationPatch{
		Name:         o.Name,
		Address:      o.Address,
		Phone:        o.Phone,
		TaxID:        o.TaxID,
		Location:     o.Location,
		WorkingHours: o.WorkingHours,
	}
}

// Apply writes the patch onto o.
func (p OrganizationPatch) Apply(o *Organization) {
	o.Name = p.Name
	o.Address = p.Address
	o.Phone = p.Phone
	o.TaxID = p.TaxID
	o.Location = p.Location
	o.WorkingHours = p.WorkingHours
}

// ExtensionRequest is sent to the directory when extending a subscription.
type ExtensionRequest struct {
	Duration   types.PlanType  `json:"duration"`
	ExtendedBy string          `json:"extendedBy"`
	Amount     decimal.Decimal `json:"amount"`
}
