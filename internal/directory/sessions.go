package directory

import (
	"context"

	"github.com/Marga-Ghale/ora-admin-console/internal/models"
	"go.uber.org/zap"
)

// SessionStore deletes login sessions by member id.
type SessionStore interface {
	DeleteSession(ctx context.Context, key string) error
}

// SessionRevoking ends the login sessions of every member once their
// organization is deactivated. Revocation is best effort and never undoes
// a successful deactivation.
type SessionRevoking struct {
	Service
	sessions SessionStore
	log      *zap.Logger
}

func NewSessionRevoking(next Service, sessions SessionStore, log *zap.Logger) *SessionRevoking {
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionRevoking{Service: next, sessions: sessions, log: log.Named("directory.sessions")}
}

func (s *SessionRevoking) SetOrganizationActive(ctx context.Context, id string, active bool, deactivation *models.Deactivation) error {
	if err := s.Service.SetOrganizationActive(ctx, id, active, deactivation); err != nil {
		return err
	}
	if active {
		return nil
	}

	org, err := s.Service.FetchOrganization(ctx, id)
	if err != nil {
		s.log.Warn("could not load members to revoke sessions", zap.String("org_id", id), zap.Error(err))
		return nil
	}
	revoked := 0
	for _, m := range org.Members {
		if err := s.sessions.DeleteSession(ctx, m.ID); err != nil {
			s.log.Warn("session revoke failed", zap.String("org_id", id), zap.String("member_id", m.ID), zap.Error(err))
			continue
		}
		revoked++
	}
	s.log.Info("sessions revoked", zap.String("org_id", id), zap.Int("count", revoked))
	return nil
}
