package directory

import (
	"context"
	"time"

	"github.com/Marga-Ghale/ora-admin-console/internal/models"
	"github.com/Marga-Ghale/ora-admin-console/internal/subscription"
	"go.uber.org/zap"
)

// SnapshotCache is the subset of the Redis wrapper used for organization
// snapshots.
type SnapshotCache interface {
	GetCache(ctx context.Context, key string, dest interface{}) error
	SetCache(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	InvalidateCache(ctx context.Context, pattern string) error
}

// Cached serves FetchOrganization from the snapshot cache and drops the
// entry once a write returns. Cache failures never fail the call. The
// subscription status of a cached snapshot is recomputed on every hit.
type Cached struct {
	Service
	cache SnapshotCache
	ttl   time.Duration
	log   *zap.Logger
	now   func() time.Time
}

func NewCached(next Service, cache SnapshotCache, ttl time.Duration, log *zap.Logger) *Cached {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cached{Service: next, cache: cache, ttl: ttl, log: log.Named("directory.cache"), now: time.Now}
}

// SetClock replaces the clock used to derive subscription status on hits.
func (c *Cached) SetClock(now func() time.Time) { c.now = now }

func cacheKey(id string) string { return "org:" + id }

func (c *Cached) FetchOrganization(ctx context.Context, id string) (*models.Organization, error) {
	var org models.Organization
	if err := c.cache.GetCache(ctx, cacheKey(id), &org); err == nil {
		org.Subscription.Status = subscription.StatusAt(org.Subscription.Expiry, c.now())
		return &org, nil
	}
	fresh, err := c.Service.FetchOrganization(ctx, id)
	if err != nil {
		return nil, err
	}
	c.store(ctx, fresh)
	return fresh, nil
}

func (c *Cached) store(ctx context.Context, org *models.Organization) {
	if err := c.cache.SetCache(ctx, cacheKey(org.ID), org, c.ttl); err != nil {
		c.log.Warn("cache write failed", zap.String("org_id", org.ID), zap.Error(err))
	}
}

func (c *Cached) invalidate(ctx context.Context, id string) {
	if err := c.cache.InvalidateCache(ctx, cacheKey(id)); err != nil {
		c.log.Warn("cache invalidation failed", zap.String("org_id", id), zap.Error(err))
	}
}

func (c *Cached) UpdateOrganization(ctx context.Context, id string, patch models.OrganizationPatch) (*models.Organization, error) {
	defer c.invalidate(ctx, id)
	return c.Service.UpdateOrganization(ctx, id, patch)
}

func (c *Cached) SetOrganizationActive(ctx context.Context, id string, active bool, deactivation *models.Deactivation) error {
	defer c.invalidate(ctx, id)
	return c.Service.SetOrganizationActive(ctx, id, active, deactivation)
}

func (c *Cached) ExtendSubscription(ctx context.Context, id string, req models.ExtensionRequest) (*models.Organization, *models.SubscriptionExtension, error) {
	defer c.invalidate(ctx, id)
	return c.Service.ExtendSubscription(ctx, id, req)
}

func (c *Cached) SaveMemberships(ctx context.Context, id string, members []models.Membership) (*models.Organization, error) {
	defer c.invalidate(ctx, id)
	return c.Service.SaveMemberships(ctx, id, members)
}
