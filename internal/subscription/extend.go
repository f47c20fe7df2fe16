package subscription

import (
	"fmt"
	"time"

	"github.com/Marga-Ghale/ora-admin-console/internal/apperr"
	"github.com/Marga-Ghale/ora-admin-console/internal/models"
	"github.com/Marga-Ghale/ora-admin-console/internal/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// newID is swapped in tests.
var newID = uuid.NewString

// AddMonths adds calendar months, clamping the day to the end of the target
// month (Aug 31 + 6 months is Feb 28/29, never early March).
func AddMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

// EndDate is max(expiry, now) + plan.
func EndDate(expiry, now time.Time, plan types.PlanType) (time.Time, error) {
	months := types.PlanMonths(plan)
	if months == 0 {
		return time.Time{}, &apperr.ValidationError{Field: "duration", Message: fmt.Sprintf("unknown plan %q", plan)}
	}
	anchor := expiry
	if now.After(anchor) {
		anchor = now
	}
	return AddMonths(anchor, months), nil
}

// Extend returns the subscription after applying one extension and the
// history entry that records it. The input is not modified.
func Extend(sub models.Subscription, req models.ExtensionRequest, now time.Time) (models.Subscription, models.SubscriptionExtension, error) {
	end, err := EndDate(sub.Expiry, now, req.Duration)
	if err != nil {
		return sub, models.SubscriptionExtension{}, err
	}
	ext := models.SubscriptionExtension{
		ID:              newID(),
		ExtensionDate:   now,
		Duration:        req.Duration,
		PreviousEndDate: sub.Expiry,
		NewEndDate:      end,
		ExtendedBy:      req.ExtendedBy,
		Amount:          req.Amount,
	}

	out := sub
	out.History = append(append([]models.SubscriptionExtension(nil), sub.History...), ext)
	out.Expiry = end
	out.Status = types.SubscriptionActive
	out.Type = req.Duration
	return out, ext, nil
}

// Catalog prices each billing period.
type Catalog map[types.PlanType]decimal.Decimal

// Price returns zero for unpriced plans.
func (c Catalog) Price(p types.PlanType) decimal.Decimal {
	if v, ok := c[p]; ok {
		return v
	}
	return decimal.Zero
}
