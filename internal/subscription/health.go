// Package subscription computes derived subscription state from raw dates.
// Every function takes `now` explicitly.
package subscription

import (
	"math"
	"time"

	"github.com/Marga-Ghale/ora-admin-console/internal/types"
)

// Bucket is the urgency label shown for a subscription.
type Bucket string

const (
	BucketExpired  Bucket = "Expired"
	BucketCritical Bucket = "Critical"
	BucketWarning  Bucket = "Warning"
	BucketHealthy  Bucket = "Healthy"
)

const day = 24 * time.Hour

// DaysRemaining is ceil((expiry - now) / 1 day).
func DaysRemaining(expiry, now time.Time) int {
	return int(math.Ceil(float64(expiry.Sub(now)) / float64(day)))
}

// BucketFor maps days remaining to a health bucket. Both ends of the
// Warning range are inclusive.
func BucketFor(days int) Bucket {
	switch {
	case days < 0:
		return BucketExpired
	case days < 30:
		return BucketCritical
	case days <= 60:
		return BucketWarning
	default:
		return BucketHealthy
	}
}

// IsExpiringSoon drives the renewal nudge, independent of the bucket.
func IsExpiringSoon(days int) bool {
	return days > 0 && days <= 7
}

// Report is the derived view of one subscription.
type Report struct {
	DaysRemaining int                      `json:"daysRemaining"`
	Bucket        Bucket                   `json:"bucket"`
	ExpiringSoon  bool                     `json:"expiringSoon"`
	Status        types.SubscriptionStatus `json:"status"`
}

func Health(expiry, now time.Time) Report {
	days := DaysRemaining(expiry, now)
	return Report{
		DaysRemaining: days,
		Bucket:        BucketFor(days),
		ExpiringSoon:  IsExpiringSoon(days),
		Status:        StatusAt(expiry, now),
	}
}

// StatusAt reports Expired once the expiry has passed.
func StatusAt(expiry, now time.Time) types.SubscriptionStatus {
	if DaysRemaining(expiry, now) < 0 {
		return types.SubscriptionExpired
	}
	return types.SubscriptionActive
}
