// Package directory is the boundary to the service that stores
// organizations and their memberships. Everything that crosses it is in the
// canonical models shape and every failure leaving it is an
// *apperr.PersistenceError.
package directory

import (
	"context"
	"errors"

	"github.com/Marga-Ghale/ora-admin-console/internal/apperr"
	"github.com/Marga-Ghale/ora-admin-console/internal/models"
)

// Service is the directory contract the lifecycle core depends on.
type Service interface {
	FetchOrganization(ctx context.Context, id string) (*models.Organization, error)
	ListOrganizations(ctx context.Context) ([]*models.Organization, error)
	UpdateOrganization(ctx context.Context, id string, patch models.OrganizationPatch) (*models.Organization, error)
	SetOrganizationActive(ctx context.Context, id string, active bool, deactivation *models.Deactivation) error
	ExtendSubscription(ctx context.Context, id string, req models.ExtensionRequest) (*models.Organization, *models.SubscriptionExtension, error)
	SaveMemberships(ctx context.Context, id string, members []models.Membership) (*models.Organization, error)
}

// Operation names, used in errors, logs and failure injection.
const (
	OpFetch           = "fetchOrganization"
	OpList            = "listOrganizations"
	OpUpdate          = "updateOrganization"
	OpSetActive       = "setOrganizationActive"
	OpExtend          = "extendSubscription"
	OpSaveMemberships = "saveMemberships"
)

// Fail converts err into a PersistenceError for op. Errors that already are
// one pass through unchanged.
func Fail(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *apperr.PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	msg := ""
	var me interface{ ServiceMessage() string }
	if errors.As(err, &me) {
		msg = me.ServiceMessage()
	}
	return apperr.Persistence(op, msg, err)
}

// NotFound is the persistence failure for an unknown organization id.
func NotFound(op, id string) error {
	return apperr.Persistence(op, "Organization "+id+" was not found", apperr.ErrNotFound)
}
