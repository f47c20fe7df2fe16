package service

import (
	"context"
	"sync"
	"time"

	"github.com/Marga-Ghale/ora-admin-console/internal/directory"
	"github.com/Marga-Ghale/ora-admin-console/internal/email"
	"github.com/Marga-Ghale/ora-admin-console/internal/models"
	"github.com/Marga-Ghale/ora-admin-console/internal/subscription"
	"go.uber.org/zap"
)

// ExpiringLister narrows the reminder scan to a window of expiry dates.
// The Postgres repository implements it.
type ExpiringLister interface {
	ListExpiringBetween(ctx context.Context, from, to time.Time) ([]*models.Organization, error)
}

// ============================================
// Subscription Service
// ============================================

// lapseWindow is how far back a scan looks for subscriptions that just
// lapsed. It matches the daily scan schedule.
const lapseWindow = 24 * time.Hour

// ScanResult summarizes one subscription scan. Expired counts the
// active organizations whose subscription lapsed within lapseWindow before
// the scan.
type ScanResult struct {
	Reminded int `json:"reminded"`
	Expired  int `json:"expired"`
	Changed  int `json:"changed"`
}

type SubscriptionService interface {
	// Scan emails owners of subscriptions that expire soon and refreshes
	// the loaded organizations so lapsed subscriptions show as Expired.
	Scan(ctx context.Context) (ScanResult, error)
}

type subscriptionService struct {
	dir          directory.Service
	expiring     ExpiringLister
	orgs         OrganizationService
	notifier     Notifier
	reminderDays int
	log          *zap.Logger
	now          func() time.Time

	mu       sync.Mutex
	reminded map[string]string // org id -> day last reminded
}

func NewSubscriptionService(
	dir directory.Service,
	expiring ExpiringLister,
	orgs OrganizationService,
	notifier Notifier,
	reminderDays int,
	log *zap.Logger,
	now func() time.Time,
) SubscriptionService {
	if reminderDays <= 0 {
		reminderDays = 7
	}
	return &subscriptionService{
		dir:          dir,
		expiring:     expiring,
		orgs:         orgs,
		notifier:     notifier,
		reminderDays: reminderDays,
		log:          log.Named("subscriptions"),
		now:          now,
		reminded:     make(map[string]string),
	}
}

func (s *subscriptionService) candidates(ctx context.Context, now time.Time) ([]*models.Organization, error) {
	if s.expiring != nil {
		return s.expiring.ListExpiringBetween(ctx, now.Add(-lapseWindow), now.Add(time.Duration(s.reminderDays)*24*time.Hour))
	}
	return s.dir.ListOrganizations(ctx)
}

func (s *subscriptionService) Scan(ctx context.Context) (ScanResult, error) {
	now := s.now()
	var res ScanResult

	orgs, err := s.candidates(ctx, now)
	if err != nil {
		return res, directory.Fail(directory.OpList, err)
	}

	today := now.Format("2006-01-02")
	since := now.Add(-lapseWindow)
	for _, org := range orgs {
		expiry := org.Subscription.Expiry
		if expiry.Before(now) {
			if org.IsActive() && !expiry.Before(since) {
				res.Expired++
			}
			continue
		}
		days := subscription.DaysRemaining(expiry, now)
		if !org.IsActive() || days == 0 || days > s.reminderDays {
			continue
		}
		if !s.markReminded(org.ID, today) {
			continue
		}

		err := s.notifier.SendSubscriptionExpiring(org.OwnerEmail(), email.SubscriptionExpiringData{
			OwnerName:        org.OwnerName(),
			OrganizationName: org.Name,
			DaysRemaining:    days,
			ExpiryDate:       org.Subscription.Expiry.Format(dateLayout),
			ConsoleURL:       "/organizations/" + org.ID,
		})
		if err != nil {
			s.log.Warn("expiry reminder failed", zap.String("org_id", org.ID), zap.Error(err))
			s.clearReminded(org.ID)
			continue
		}
		res.Reminded++
	}

	if s.orgs != nil {
		res.Changed = s.orgs.RefreshLoaded(ctx)
	}
	s.log.Info("subscription scan finished",
		zap.Int("reminded", res.Reminded),
		zap.Int("expired", res.Expired),
		zap.Int("changed", res.Changed))
	return res, nil
}

// markReminded reports false when org was already reminded today.
func (s *subscriptionService) markReminded(orgID, day string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reminded[orgID] == day {
		return false
	}
	s.reminded[orgID] = day
	return true
}

func (s *subscriptionService) clearReminded(orgID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reminded, orgID)
}
