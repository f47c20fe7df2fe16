package directory

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/Marga-Ghale/ora-admin-console/internal/models"
	"github.com/cenkalti/backoff"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// IsTransient reports whether a directory failure is worth retrying.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if pgconn.SafeToRetry(err) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var tmp interface{ Temporary() bool }
	if errors.As(err, &tmp) {
		return tmp.Temporary()
	}
	return false
}

// Retrying retries transient failures with exponential backoff.
// ExtendSubscription appends history and is only retried when the request
// provably never reached the store.
type Retrying struct {
	Service
	maxRetries uint64
	initial    time.Duration
	log        *zap.Logger
}

func NewRetrying(next Service, maxRetries int, log *zap.Logger) *Retrying {
	if log == nil {
		log = zap.NewNop()
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Retrying{
		Service:    next,
		maxRetries: uint64(maxRetries),
		initial:    200 * time.Millisecond,
		log:        log.Named("directory.retry"),
	}
}

func (r *Retrying) policy(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.initial
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = 10 * time.Second
	return backoff.WithContext(backoff.WithMaxRetries(bo, r.maxRetries), ctx)
}

func (r *Retrying) run(ctx context.Context, op string, retryable func(error) bool, fn func() error) error {
	return backoff.RetryNotify(func() error {
		err := fn()
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, r.policy(ctx), func(err error, wait time.Duration) {
		r.log.Warn("retrying directory call", zap.String("op", op), zap.Duration("wait", wait), zap.Error(err))
	})
}

func (r *Retrying) FetchOrganization(ctx context.Context, id string) (*models.Organization, error) {
	var out *models.Organization
	err := r.run(ctx, OpFetch, IsTransient, func() (err error) {
		out, err = r.Service.FetchOrganization(ctx, id)
		return err
	})
	return out, err
}

func (r *Retrying) ListOrganizations(ctx context.Context) ([]*models.Organization, error) {
	var out []*models.Organization
	err := r.run(ctx, OpList, IsTransient, func() (err error) {
		out, err = r.Service.ListOrganizations(ctx)
		return err
	})
	return out, err
}

func (r *Retrying) UpdateOrganization(ctx context.Context, id string, patch models.OrganizationPatch) (*models.Organization, error) {
	var out *models.Organization
	err := r.run(ctx, OpUpdate, IsTransient, func() (err error) {
		out, err = r.Service.UpdateOrganization(ctx, id, patch)
		return err
	})
	return out, err
}

func (r *Retrying) SetOrganizationActive(ctx context.Context, id string, active bool, deactivation *models.Deactivation) error {
	return r.run(ctx, OpSetActive, IsTransient, func() error {
		return r.Service.SetOrganizationActive(ctx, id, active, deactivation)
	})
}

func (r *Retrying) ExtendSubscription(ctx context.Context, id string, req models.ExtensionRequest) (*models.Organization, *models.SubscriptionExtension, error) {
	var org *models.Organization
	var ext *models.SubscriptionExtension
	err := r.run(ctx, OpExtend, pgconn.SafeToRetry, func() (err error) {
		org, ext, err = r.Service.ExtendSubscription(ctx, id, req)
		return err
	})
	return org, ext, err
}

func (r *Retrying) SaveMemberships(ctx context.Context, id string, members []models.Membership) (*models.Organization, error) {
	var out *models.Organization
	err := r.run(ctx, OpSaveMemberships, IsTransient, func() (err error) {
		out, err = r.Service.SaveMemberships(ctx, id, members)
		return err
	})
	return out, err
}
