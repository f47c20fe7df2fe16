package directory

import (
	"fmt"
	"strings"
	"time"

	"github.com/Marga-Ghale/ora-admin-console/internal/apperr"
	"github.com/Marga-Ghale/ora-admin-console/internal/models"
	"github.com/Marga-Ghale/ora-admin-console/internal/subscription"
	"github.com/Marga-Ghale/ora-admin-console/internal/types"
	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// Record is an organization as decoded from a directory response, before
// normalization. Different directory versions name the same field
// differently.
type Record map[string]any

// Alternate names, canonical first.
var (
	idKeys            = []string{"id", "_id", "organizationId", "organization_id"}
	nameKeys          = []string{"name", "organizationName", "organization_name", "orgName"}
	addressKeys       = []string{"address", "organizationAddress"}
	phoneKeys         = []string{"phone", "phoneNumber", "phone_number", "contactNumber"}
	taxIDKeys         = []string{"taxId", "tax_id", "panNumber", "pan_vat", "vatNumber"}
	latKeys           = []string{"latitude", "lat"}
	lngKeys           = []string{"longitude", "lng", "lon"}
	statusKeys        = []string{"status", "organizationStatus"}
	activeKeys        = []string{"isActive", "is_active", "active"}
	verifiedKeys      = []string{"emailVerified", "email_verified", "isEmailVerified", "isVerified"}
	createdKeys       = []string{"createdDate", "createdAt", "created_at"}
	membersKeys       = []string{"members", "memberships", "users"}
	workingHoursKeys  = []string{"workingHours", "working_hours"}
	subscriptionKeys  = []string{"subscription"}
	expiryKeys        = []string{"expiry", "expiryDate", "expiry_date", "endDate", "subscription_end", "subscriptionEnd", "subscriptionExpiry"}
	planKeys          = []string{"type", "plan", "planType", "subscriptionType", "duration"}
	historyKeys       = []string{"history", "extensions", "extensionHistory", "subscriptionHistory"}
	ownerEmailKeys    = []string{"ownerEmail", "owner_email"}
	deactivationKeys  = []string{"deactivation"}
	deactReasonKeys   = []string{"reason", "deactivationReason", "deactivation_reason"}
	deactDateKeys     = []string{"date", "deactivatedAt", "deactivation_date", "deactivationDate"}
	memberIDKeys      = []string{"id", "_id", "userId", "user_id", "memberId"}
	memberNameKeys    = []string{"name", "fullName", "full_name", "username"}
	roleKeys          = []string{"role", "memberRole"}
	lastActiveKeys    = []string{"lastActive", "last_active", "lastLogin", "lastSeen"}
	extDateKeys       = []string{"extensionDate", "extension_date", "extendedAt", "date"}
	extDurationKeys   = []string{"duration", "plan", "type"}
	extPrevKeys       = []string{"previousEndDate", "previous_end_date", "oldEndDate", "from"}
	extNewKeys        = []string{"newEndDate", "new_end_date", "to"}
	extByKeys         = []string{"extendedBy", "extended_by", "by"}
	extAmountKeys     = []string{"amount", "price"}
	citizenshipIDKeys = []string{"citizenshipId", "citizenship_id", "citizenshipNumber"}
)

func (r Record) pick(keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := r[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func (r Record) str(keys []string) string {
	v, ok := r.pick(keys)
	if !ok {
		return ""
	}
	return strings.TrimSpace(cast.ToString(v))
}

func (r Record) boolean(keys []string) (bool, bool) {
	v, ok := r.pick(keys)
	if !ok {
		return false, false
	}
	b, err := cast.ToBoolE(v)
	return b, err == nil
}

func (r Record) float(keys []string) float64 {
	v, ok := r.pick(keys)
	if !ok {
		return 0
	}
	return cast.ToFloat64(v)
}

func (r Record) time(keys []string) time.Time {
	v, ok := r.pick(keys)
	if !ok {
		return time.Time{}
	}
	t, err := cast.ToTimeE(v)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func (r Record) sub(keys []string) Record {
	v, ok := r.pick(keys)
	if !ok {
		return nil
	}
	m, err := cast.ToStringMapE(v)
	if err != nil {
		return nil
	}
	return Record(m)
}

func (r Record) list(keys []string) []Record {
	v, ok := r.pick(keys)
	if !ok {
		return nil
	}
	items, err := cast.ToSliceE(v)
	if err != nil {
		return nil
	}
	out := make([]Record, 0, len(items))
	for _, it := range items {
		if m, err := cast.ToStringMapE(it); err == nil {
			out = append(out, Record(m))
		}
	}
	return out
}

// Normalize maps a raw directory record onto the canonical Organization.
// Subscription status is recomputed from the expiry at now. A record that
// does not name exactly one owner is rejected.
func Normalize(r Record, now time.Time) (*models.Organization, error) {
	o := &models.Organization{
		ID:           r.str(idKeys),
		Name:         r.str(nameKeys),
		Address:      r.str(addressKeys),
		Phone:        r.str(phoneKeys),
		TaxID:        r.str(taxIDKeys),
		Location:     normalizeLocation(r),
		Status:       normalizeStatus(r),
		Deactivation: normalizeDeactivation(r),
		Subscription: normalizeSubscription(r, now),
		CreatedDate:  r.time(createdKeys),
		Members:      []models.Membership{},
	}
	if o.ID == "" {
		return nil, fmt.Errorf("organization record has no id")
	}
	o.EmailVerified, _ = r.boolean(verifiedKeys)

	if wh := r.sub(workingHoursKeys); wh != nil {
		if err := decodeWorkingHours(wh, &o.WorkingHours); err != nil {
			return nil, fmt.Errorf("organization %s: working hours: %w", o.ID, err)
		}
	}

	for _, mr := range r.list(membersKeys) {
		m, err := normalizeMember(mr)
		if err != nil {
			return nil, fmt.Errorf("organization %s: %w", o.ID, err)
		}
		o.Members = append(o.Members, m)
	}
	if err := resolveOwner(o, r.str(ownerEmailKeys)); err != nil {
		return nil, err
	}
	return o, nil
}

func normalizeLocation(r Record) models.Location {
	src := r
	if loc := r.sub([]string{"location", "coordinates"}); loc != nil {
		src = loc
	}
	return models.Location{Latitude: src.float(latKeys), Longitude: src.float(lngKeys)}
}

func normalizeStatus(r Record) types.OrgStatus {
	if s := r.str(statusKeys); s != "" {
		if strings.EqualFold(s, string(types.OrgInactive)) {
			return types.OrgInactive
		}
		return types.OrgActive
	}
	if active, ok := r.boolean(activeKeys); ok && !active {
		return types.OrgInactive
	}
	return types.OrgActive
}

func normalizeDeactivation(r Record) *models.Deactivation {
	src := r.sub(deactivationKeys)
	if src == nil {
		src = r
	}
	reason := src.str(deactReasonKeys)
	if reason == "" {
		return nil
	}
	return &models.Deactivation{Reason: reason, Date: src.time(deactDateKeys)}
}

func normalizeSubscription(r Record, now time.Time) models.Subscription {
	src := r.sub(subscriptionKeys)
	if src == nil {
		src = r
	}
	sub := models.Subscription{
		Expiry:  src.time(expiryKeys),
		Type:    types.PlanType(src.str(planKeys)),
		History: []models.SubscriptionExtension{},
	}
	if sub.Expiry.IsZero() {
		sub.Expiry = r.time(expiryKeys)
	}
	for _, er := range src.list(historyKeys) {
		sub.History = append(sub.History, models.SubscriptionExtension{
			ID:              er.str(idKeys),
			ExtensionDate:   er.time(extDateKeys),
			Duration:        types.PlanType(er.str(extDurationKeys)),
			PreviousEndDate: er.time(extPrevKeys),
			NewEndDate:      er.time(extNewKeys),
			ExtendedBy:      er.str(extByKeys),
			Amount:          normalizeAmount(er),
		})
	}
	sub.Status = subscription.StatusAt(sub.Expiry, now)
	return sub
}

func normalizeAmount(r Record) decimal.Decimal {
	s := r.str(extAmountKeys)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func normalizeMember(r Record) (models.Membership, error) {
	m := models.Membership{
		ID:            r.str(memberIDKeys),
		Name:          r.str(memberNameKeys),
		Email:         r.str([]string{"email"}),
		LastActive:    r.str(lastActiveKeys),
		Phone:         r.str(phoneKeys),
		TaxID:         r.str(taxIDKeys),
		CitizenshipID: r.str(citizenshipIDKeys),
		Address:       r.str(addressKeys),
	}
	if m.ID == "" {
		return m, fmt.Errorf("member record has no id")
	}
	if raw := r.str(roleKeys); raw != "" {
		role, ok := types.ParseRole(raw)
		if !ok {
			return m, fmt.Errorf("member %s has unknown role %q", m.ID, raw)
		}
		m.Role = role
	} else {
		m.Role = types.RoleSalesRep
	}
	m.EmailVerified, _ = r.boolean(verifiedKeys)
	if active, ok := r.boolean(activeKeys); ok {
		m.IsActive = active
	} else {
		m.IsActive = true
	}
	if m.LastActive == "" {
		m.LastActive = "Never"
	}
	if loc := r.sub([]string{"location"}); loc != nil {
		m.Location = &models.Location{Latitude: loc.float(latKeys), Longitude: loc.float(lngKeys)}
	}
	return m, nil
}

// resolveOwner handles older records that only carry ownerEmail at the
// organization level.
func resolveOwner(o *models.Organization, ownerEmail string) error {
	owners := 0
	for _, m := range o.Members {
		if m.Role == types.RoleOwner {
			owners++
		}
	}
	if owners == 0 && ownerEmail != "" {
		for i := range o.Members {
			if strings.EqualFold(o.Members[i].Email, ownerEmail) {
				o.Members[i].Role = types.RoleOwner
				owners = 1
				break
			}
		}
	}
	if owners != 1 {
		return &apperr.InvariantViolation{
			Op:     "normalize organization " + o.ID,
			Reason: fmt.Sprintf("expected exactly one owner, found %d", owners),
		}
	}
	return nil
}

func decodeWorkingHours(in Record, out *models.WorkingHours) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		MatchName: func(mapKey, fieldName string) bool {
			return strings.EqualFold(strings.ReplaceAll(mapKey, "_", ""), fieldName)
		},
		Result: out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(map[string]any(in))
}
