// Package lifecycle is the per-organization façade the console drives. Each
// mutating operation validates locally, applies to a working copy that is
// shown immediately, calls the directory and then either adopts the
// server's copy or drops the working copy and keeps the committed one.
package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Marga-Ghale/ora-admin-console/internal/apperr"
	"github.com/Marga-Ghale/ora-admin-console/internal/directory"
	"github.com/Marga-Ghale/ora-admin-console/internal/editsession"
	"github.com/Marga-Ghale/ora-admin-console/internal/membership"
	"github.com/Marga-Ghale/ora-admin-console/internal/models"
	"github.com/Marga-Ghale/ora-admin-console/internal/subscription"
	"github.com/Marga-Ghale/ora-admin-console/internal/types"
	"go.uber.org/zap"
)

type Options struct {
	Catalog subscription.Catalog
	Now     func() time.Time
	Logger  *zap.Logger
}

// Result is the success payload of a mutating operation.
type Result struct {
	Message      string                        `json:"message"`
	Organization *models.Organization          `json:"organization"`
	Extension    *models.SubscriptionExtension `json:"extension,omitempty"`
	// Previous is the committed snapshot the operation started from.
	Previous *models.Organization `json:"-"`
}

type Controller struct {
	id      string
	dir     directory.Service
	catalog subscription.Catalog
	now     func() time.Time
	log     *zap.Logger

	// opMu serializes operations; at most one directory call is in flight.
	opMu sync.Mutex

	mu        sync.RWMutex
	committed *models.Organization
	working   *models.Organization
	edit      *editsession.Session
	editView  *editsession.View
}

func New(id string, dir directory.Service, opts Options) *Controller {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Controller{
		id:      id,
		dir:     dir,
		catalog: opts.Catalog,
		now:     opts.Now,
		log:     opts.Logger.Named("lifecycle").With(zap.String("org_id", id)),
	}
}

func (c *Controller) ID() string { return c.id }

// Load fetches the organization and replaces the committed snapshot. An open
// edit session keeps its draft.
func (c *Controller) Load(ctx context.Context) (*models.Organization, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	org, err := c.dir.FetchOrganization(ctx, c.id)
	if err != nil {
		return nil, directory.Fail(directory.OpFetch, err)
	}
	c.commit(org)
	return org.Clone(), nil
}

// Refresh is Load for background polling.
func (c *Controller) Refresh(ctx context.Context) (*models.Organization, error) {
	return c.Load(ctx)
}

// Snapshot returns the organization as currently shown: the working copy
// while a call is in flight, otherwise the committed one.
func (c *Controller) Snapshot() *models.Organization {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.working != nil {
		return c.working.Clone()
	}
	return c.committed.Clone()
}

func (c *Controller) View(actor ActingUser) (*models.Organization, error) {
	if err := Authorize(actor, ActionView); err != nil {
		return nil, err
	}
	org := c.Snapshot()
	if org == nil {
		return nil, c.notLoaded()
	}
	return org, nil
}

// EditView returns the open edit session, if any.
func (c *Controller) EditView(actor ActingUser) (*editsession.View, error) {
	if err := Authorize(actor, ActionView); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.editView == nil {
		return nil, nil
	}
	v := *c.editView
	return &v, nil
}

func (c *Controller) notLoaded() error {
	return fmt.Errorf("organization %s: %w", c.id, apperr.ErrNotFound)
}

func (c *Controller) base() (*models.Organization, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.committed == nil {
		return nil, c.notLoaded()
	}
	return c.committed.Clone(), nil
}

func (c *Controller) setWorking(w *models.Organization) {
	c.mu.Lock()
	c.working = w
	if w != nil && c.editView != nil {
		c.editView.State = editsession.StateSaving
	}
	c.mu.Unlock()
}

// commit replaces the committed snapshot wholesale.
func (c *Controller) commit(org *models.Organization) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.committed = org.Clone()
	c.working = nil
	if c.edit != nil {
		c.edit.Rebase(org)
	}
}

func (c *Controller) syncEdit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.edit == nil || c.edit.Closed() {
		c.edit = nil
		c.editView = nil
		return
	}
	v := c.edit.View()
	c.editView = &v
}

func (c *Controller) reject(op string, err error) {
	if apperr.IsInvariant(err) {
		c.log.Warn("operation rejected", zap.String("op", op), zap.Error(err))
		return
	}
	c.log.Debug("operation rejected", zap.String("op", op), zap.Error(err))
}

func (c *Controller) persistFailed(op string, err error) error {
	err = directory.Fail(op, err)
	c.log.Error("directory call failed, kept committed snapshot", zap.String("op", op), zap.Error(err))
	return err
}

// apply runs one optimistic round trip. mutate edits the working copy;
// persist sends it and returns the server copy.
func (c *Controller) apply(
	ctx context.Context,
	op string,
	mutate func(w *models.Organization) error,
	persist func(ctx context.Context, w *models.Organization) (*models.Organization, error),
) (prev, saved *models.Organization, err error) {
	prev, err = c.base()
	if err != nil {
		return nil, nil, err
	}
	w := prev.Clone()
	if err := mutate(w); err != nil {
		c.reject(op, err)
		return nil, nil, err
	}

	c.setWorking(w)
	saved, err = persist(ctx, w.Clone())
	if err != nil {
		c.setWorking(nil)
		c.syncEdit()
		return nil, nil, c.persistFailed(op, err)
	}
	c.commit(saved)
	c.syncEdit()
	return prev, saved.Clone(), nil
}

// confirm re-reads the organization after a call that returns nothing. If
// the read fails the call still succeeded, so the working copy stands.
func (c *Controller) confirm(ctx context.Context, w *models.Organization) *models.Organization {
	org, err := c.dir.FetchOrganization(ctx, c.id)
	if err != nil {
		c.log.Warn("confirmation fetch failed, using working copy", zap.Error(err))
		return w
	}
	return org
}

func (c *Controller) result(msg string, prev, saved *models.Organization) *Result {
	return &Result{Message: msg, Organization: saved, Previous: prev}
}

// ============================================
// Activation
// ============================================

// Activate re-enables an inactive organization. The deactivation record is
// kept for audit.
func (c *Controller) Activate(ctx context.Context, actor ActingUser) (*Result, error) {
	if err := Authorize(actor, ActionActivate); err != nil {
		return nil, err
	}
	c.opMu.Lock()
	defer c.opMu.Unlock()

	prev, saved, err := c.apply(ctx, directory.OpSetActive,
		func(w *models.Organization) error {
			if w.Status == types.OrgActive {
				return &apperr.InvariantViolation{Op: "activate", Reason: "organization is already active"}
			}
			w.Status = types.OrgActive
			return nil
		},
		func(ctx context.Context, w *models.Organization) (*models.Organization, error) {
			if err := c.dir.SetOrganizationActive(ctx, c.id, true, nil); err != nil {
				return nil, err
			}
			return c.confirm(ctx, w), nil
		})
	if err != nil {
		return nil, err
	}
	c.log.Info("organization activated", zap.String("actor", actor.ID))
	return c.result("Organization activated successfully", prev, saved), nil
}

// Deactivate suspends an active organization. Ending the members' sessions
// is left to the directory.
func (c *Controller) Deactivate(ctx context.Context, actor ActingUser, reason string) (*Result, error) {
	if err := Authorize(actor, ActionDeactivate); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, &apperr.ValidationError{Field: "reason", Message: "A reason is required to deactivate an organization"}
	}
	c.opMu.Lock()
	defer c.opMu.Unlock()

	prev, saved, err := c.apply(ctx, directory.OpSetActive,
		func(w *models.Organization) error {
			if w.Status == types.OrgInactive {
				return &apperr.InvariantViolation{Op: "deactivate", Reason: "organization is already inactive"}
			}
			w.Status = types.OrgInactive
			w.Deactivation = &models.Deactivation{Reason: reason, Date: c.now()}
			return nil
		},
		func(ctx context.Context, w *models.Organization) (*models.Organization, error) {
			if err := c.dir.SetOrganizationActive(ctx, c.id, false, w.Deactivation); err != nil {
				return nil, err
			}
			return c.confirm(ctx, w), nil
		})
	if err != nil {
		return nil, err
	}
	c.log.Info("organization deactivated", zap.String("actor", actor.ID), zap.String("reason", reason))
	return c.result("Organization deactivated successfully", prev, saved), nil
}

// ============================================
// Subscription
// ============================================

// ExtendSubscription moves the expiry to max(expiry, now) + duration and
// records the extension.
func (c *Controller) ExtendSubscription(ctx context.Context, actor ActingUser, duration types.PlanType) (*Result, error) {
	if err := Authorize(actor, ActionExtend); err != nil {
		return nil, err
	}
	if !types.IsValidPlan(duration) {
		return nil, &apperr.ValidationError{Field: "duration", Message: "Duration must be 6months or 12months"}
	}
	c.opMu.Lock()
	defer c.opMu.Unlock()

	req := models.ExtensionRequest{
		Duration:   duration,
		ExtendedBy: actor.ID,
		Amount:     c.catalog.Price(duration),
	}
	var ext *models.SubscriptionExtension
	prev, saved, err := c.apply(ctx, directory.OpExtend,
		func(w *models.Organization) error {
			sub, _, err := subscription.Extend(w.Subscription, req, c.now())
			if err != nil {
				return err
			}
			w.Subscription = sub
			return nil
		},
		func(ctx context.Context, _ *models.Organization) (*models.Organization, error) {
			org, e, err := c.dir.ExtendSubscription(ctx, c.id, req)
			if err != nil {
				return nil, err
			}
			ext = e
			return org, nil
		})
	if err != nil {
		return nil, err
	}

	c.log.Info("subscription extended",
		zap.String("actor", actor.ID),
		zap.String("duration", string(duration)),
		zap.Time("new_end_date", saved.Subscription.Expiry))
	res := c.result("Subscription extended until "+saved.Subscription.Expiry.Format("Jan 2, 2006"), prev, saved)
	res.Extension = ext
	return res, nil
}

// ============================================
// Membership
// ============================================

func (c *Controller) saveMembers(ctx context.Context, w *models.Organization) (*models.Organization, error) {
	return c.dir.SaveMemberships(ctx, c.id, w.Members)
}

func registryOf(w *models.Organization) (*membership.Registry, error) {
	return membership.New(w.Members)
}

// setAccess grants or revokes. A member already in the requested state
// results in no directory call.
func (c *Controller) setAccess(ctx context.Context, actor ActingUser, memberID string, grant bool) (*Result, error) {
	action, op := ActionRevoke, "revoke access"
	if grant {
		action, op = ActionGrant, "grant access"
	}
	if err := Authorize(actor, action); err != nil {
		return nil, err
	}
	c.opMu.Lock()
	defer c.opMu.Unlock()

	current, err := c.base()
	if err != nil {
		return nil, err
	}
	reg, err := registryOf(current)
	if err != nil {
		c.reject(op, err)
		return nil, err
	}
	m, ok := reg.Find(memberID)
	if !ok {
		return nil, &apperr.ValidationError{Field: "memberId", Message: "member " + memberID + " not found"}
	}
	if m.Role == types.RoleOwner && !grant {
		err := &apperr.InvariantViolation{Op: op, Reason: "the owner's access cannot be revoked; transfer ownership first"}
		c.reject(op, err)
		return nil, err
	}
	if m.IsActive == grant {
		msg := m.Name + " already has access"
		if !grant {
			msg = m.Name + "'s access is already revoked"
		}
		return c.result(msg, current, current.Clone()), nil
	}

	prev, saved, err := c.apply(ctx, directory.OpSaveMemberships,
		func(w *models.Organization) error {
			reg, err := registryOf(w)
			if err != nil {
				return err
			}
			if grant {
				reg, err = reg.Grant(memberID)
			} else {
				reg, err = reg.Revoke(memberID)
			}
			if err != nil {
				return err
			}
			w.Members = reg.Members()
			return nil
		},
		c.saveMembers)
	if err != nil {
		return nil, err
	}

	c.log.Info(op, zap.String("actor", actor.ID), zap.String("member_id", memberID))
	if grant {
		return c.result("Access granted to "+m.Name, prev, saved), nil
	}
	return c.result("Access revoked for "+m.Name, prev, saved), nil
}

func (c *Controller) GrantAccess(ctx context.Context, actor ActingUser, memberID string) (*Result, error) {
	return c.setAccess(ctx, actor, memberID, true)
}

func (c *Controller) RevokeAccess(ctx context.Context, actor ActingUser, memberID string) (*Result, error) {
	return c.setAccess(ctx, actor, memberID, false)
}

// AddMember adds a non-owner member.
func (c *Controller) AddMember(ctx context.Context, actor ActingUser, nm membership.NewMember) (*Result, error) {
	if err := Authorize(actor, ActionAddMember); err != nil {
		return nil, err
	}
	c.opMu.Lock()
	defer c.opMu.Unlock()

	var added models.Membership
	prev, saved, err := c.apply(ctx, directory.OpSaveMemberships,
		func(w *models.Organization) error {
			reg, err := registryOf(w)
			if err != nil {
				return err
			}
			reg, added, err = reg.Add(nm)
			if err != nil {
				return err
			}
			w.Members = reg.Members()
			return nil
		},
		c.saveMembers)
	if err != nil {
		return nil, err
	}
	c.log.Info("member added", zap.String("actor", actor.ID), zap.String("member_id", added.ID), zap.String("role", string(added.Role)))
	return c.result(fmt.Sprintf("%s added as %s", added.Name, added.Role), prev, saved), nil
}

// ============================================
// Ownership transfer
// ============================================

// TransferRequest selects the new owner: an existing member by TargetID, or
// a new person described by Profile.
type TransferRequest struct {
	Mode     membership.TransferMode `json:"mode"`
	TargetID string                  `json:"targetId,omitempty"`
	Profile  membership.OwnerProfile `json:"profile"`
}

// BeginOwnershipTransfer validates, applies and persists a transfer in one
// step. It is refused while an edit session is open.
func (c *Controller) BeginOwnershipTransfer(ctx context.Context, actor ActingUser, req TransferRequest) (*Result, error) {
	if err := Authorize(actor, ActionTransfer); err != nil {
		return nil, err
	}
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.RLock()
	editing := c.edit != nil
	c.mu.RUnlock()
	if editing {
		return nil, apperr.ErrFlowBusy
	}
	if req.Mode != membership.TransferToExisting && req.Mode != membership.TransferToNew {
		return nil, &apperr.ValidationError{Field: "mode", Message: "mode must be existing or new"}
	}

	var owner models.Membership
	prev, saved, err := c.apply(ctx, directory.OpSaveMemberships,
		func(w *models.Organization) error {
			reg, err := registryOf(w)
			if err != nil {
				return err
			}
			switch req.Mode {
			case membership.TransferToExisting:
				reg, err = reg.TransferToExistingMember(req.TargetID)
			default:
				reg, _, err = reg.TransferToNewOwner(req.Profile)
			}
			if err != nil {
				return err
			}
			w.Members = reg.Members()
			owner, _ = reg.Owner()
			return nil
		},
		c.saveMembers)
	if err != nil {
		return nil, err
	}

	c.log.Info("ownership transferred",
		zap.String("actor", actor.ID),
		zap.String("mode", string(req.Mode)),
		zap.String("from", prev.OwnerEmail()),
		zap.String("to", owner.Email))
	return c.result("Ownership transferred to "+saved.OwnerName(), prev, saved), nil
}
