package lifecycle

import (
	"context"

	"github.com/Marga-Ghale/ora-admin-console/internal/apperr"
	"github.com/Marga-Ghale/ora-admin-console/internal/directory"
	"github.com/Marga-Ghale/ora-admin-console/internal/editsession"
	"github.com/Marga-Ghale/ora-admin-console/internal/models"
	"go.uber.org/zap"
)

// BeginEdit opens the edit session. Only one may be open at a time.
func (c *Controller) BeginEdit(actor ActingUser) (*editsession.View, error) {
	if err := Authorize(actor, ActionEdit); err != nil {
		return nil, err
	}
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.committed == nil {
		c.mu.Unlock()
		return nil, c.notLoaded()
	}
	if c.edit != nil {
		c.mu.Unlock()
		return nil, apperr.ErrSessionOpen
	}
	c.edit = editsession.Begin(c.committed)
	c.mu.Unlock()

	c.syncEdit()
	c.log.Debug("edit session opened", zap.String("actor", actor.ID))
	return c.EditView(actor)
}

func (c *Controller) session() (*editsession.Session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.edit == nil {
		return nil, apperr.ErrNoSession
	}
	return c.edit, nil
}

// UpdateField writes one field into the draft. A validation error is
// returned with the updated view; it does not end the session.
func (c *Controller) UpdateField(actor ActingUser, field editsession.Field, value string) (*editsession.View, error) {
	if err := Authorize(actor, ActionEdit); err != nil {
		return nil, err
	}
	c.opMu.Lock()
	defer c.opMu.Unlock()

	s, err := c.session()
	if err != nil {
		return nil, err
	}
	fieldErr := s.UpdateField(field, value)
	c.syncEdit()
	v, err := c.EditView(actor)
	if err != nil {
		return nil, err
	}
	return v, fieldErr
}

// CancelEdit leaves edit mode, or returns a pending decision when there
// are unsaved changes.
func (c *Controller) CancelEdit(actor ActingUser, cont editsession.Continuation) (editsession.Decision, error) {
	if err := Authorize(actor, ActionEdit); err != nil {
		return editsession.Decision{}, err
	}
	c.opMu.Lock()
	defer c.opMu.Unlock()

	s, err := c.session()
	if err != nil {
		return editsession.Decision{}, err
	}
	d, err := s.RequestCancel(cont)
	c.syncEdit()
	return d, err
}

// ResolveCancel settles the pending decision. With saveAndContinue the
// result carries the saved organization; a failed save leaves the session
// open with the draft intact.
func (c *Controller) ResolveCancel(ctx context.Context, actor ActingUser, r editsession.Resolution) (editsession.Decision, *Result, error) {
	if err := Authorize(actor, ActionEdit); err != nil {
		return editsession.Decision{}, nil, err
	}
	c.opMu.Lock()
	defer c.opMu.Unlock()

	s, err := c.session()
	if err != nil {
		return editsession.Decision{}, nil, err
	}
	prev, _ := c.base()
	d, err := s.Resolve(ctx, c.editUpdater(), r)
	if err != nil {
		c.syncEdit()
		return editsession.Decision{}, nil, err
	}
	if d.Resolution != editsession.ResolutionSaveAndContinue {
		c.syncEdit()
		return d, nil, nil
	}
	saved := c.finishEdit(s)
	c.log.Info("organization updated", zap.String("actor", actor.ID))
	return d, c.result("Organization updated successfully", prev, saved), nil
}

// SaveEdit commits the draft.
func (c *Controller) SaveEdit(ctx context.Context, actor ActingUser) (*Result, error) {
	if err := Authorize(actor, ActionEdit); err != nil {
		return nil, err
	}
	c.opMu.Lock()
	defer c.opMu.Unlock()

	s, err := c.session()
	if err != nil {
		return nil, err
	}
	prev, _ := c.base()
	if _, err := s.Commit(ctx, c.editUpdater()); err != nil {
		c.syncEdit()
		return nil, err
	}
	saved := c.finishEdit(s)
	c.log.Info("organization updated", zap.String("actor", actor.ID))
	return c.result("Organization updated successfully", prev, saved), nil
}

// finishEdit adopts the session's committed copy and drops the session.
func (c *Controller) finishEdit(s *editsession.Session) *models.Organization {
	saved := s.Committed()
	c.mu.Lock()
	c.edit = nil
	c.editView = nil
	c.mu.Unlock()
	c.commit(saved)
	return saved
}

// editUpdater shows the draft as the working copy while the update is in
// flight.
func (c *Controller) editUpdater() editsession.Updater {
	return editsession.UpdaterFunc(func(ctx context.Context, id string, patch models.OrganizationPatch) (*models.Organization, error) {
		w, err := c.base()
		if err != nil {
			return nil, err
		}
		patch.Apply(w)
		c.setWorking(w)

		org, err := c.dir.UpdateOrganization(ctx, id, patch)
		if err != nil {
			c.setWorking(nil)
			return nil, c.persistFailed(directory.OpUpdate, err)
		}
		return org, nil
	})
}
