package service

import (
	"context"
	"sync"
	"time"

	"github.com/Marga-Ghale/ora-admin-console/internal/directory"
	"github.com/Marga-Ghale/ora-admin-console/internal/editsession"
	"github.com/Marga-Ghale/ora-admin-console/internal/email"
	"github.com/Marga-Ghale/ora-admin-console/internal/lifecycle"
	"github.com/Marga-Ghale/ora-admin-console/internal/membership"
	"github.com/Marga-Ghale/ora-admin-console/internal/models"
	"github.com/Marga-Ghale/ora-admin-console/internal/socket"
	"github.com/Marga-Ghale/ora-admin-console/internal/subscription"
	"github.com/Marga-Ghale/ora-admin-console/internal/types"
	"go.uber.org/zap"
)

const dateLayout = "Jan 2, 2006"

// Notifier sends the owner and member emails that follow lifecycle
// operations. *email.Service implements it.
type Notifier interface {
	SendOwnershipTransferred(to string, data email.OwnershipTransferredData) error
	SendOrganizationDeactivated(to string, data email.OrganizationDeactivatedData) error
	SendOrganizationActivated(to string, data email.OrganizationActivatedData) error
	SendSubscriptionExtended(to string, data email.SubscriptionExtendedData) error
	SendSubscriptionExpiring(to string, data email.SubscriptionExpiringData) error
	SendMemberAdded(to string, data email.MemberAddedData) error
}

// Publisher pushes committed snapshots to connected consoles.
// *socket.Broadcaster implements it.
type Publisher interface {
	BroadcastOrganization(msgType socket.MessageType, org *models.Organization, actorID string, extra map[string]interface{})
	BroadcastEditSession(orgID, actorID string, open bool)
}

// ============================================
// Organization Service
// ============================================

// OrganizationSummary is one row of the organization list.
type OrganizationSummary struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	OwnerName    string              `json:"ownerName"`
	OwnerEmail   string              `json:"ownerEmail"`
	Status       types.OrgStatus     `json:"status"`
	MemberCount  int                 `json:"memberCount"`
	Expiry       time.Time           `json:"expiry"`
	Subscription subscription.Report `json:"subscription"`
}

// OrganizationDetail is the organization as the console renders it, with
// the derived fields computed at read time.
type OrganizationDetail struct {
	Organization *models.Organization `json:"organization"`
	OwnerName    string               `json:"ownerName"`
	OwnerEmail   string               `json:"ownerEmail"`
	AddressLink  string               `json:"addressLink"`
	Subscription subscription.Report  `json:"subscription"`
	EditSession  *editsession.View    `json:"editSession,omitempty"`
	Actions      []lifecycle.Action   `json:"actions"`
}

type OrganizationService interface {
	List(ctx context.Context, actor lifecycle.ActingUser) ([]OrganizationSummary, error)
	Get(ctx context.Context, actor lifecycle.ActingUser, id string) (*OrganizationDetail, error)
	Refresh(ctx context.Context, actor lifecycle.ActingUser, id string) (*OrganizationDetail, error)
	RefreshLoaded(ctx context.Context) int

	Activate(ctx context.Context, actor lifecycle.ActingUser, id string) (*lifecycle.Result, error)
	Deactivate(ctx context.Context, actor lifecycle.ActingUser, id, reason string) (*lifecycle.Result, error)
	ExtendSubscription(ctx context.Context, actor lifecycle.ActingUser, id string, duration types.PlanType) (*lifecycle.Result, error)

	GrantAccess(ctx context.Context, actor lifecycle.ActingUser, id, memberID string) (*lifecycle.Result, error)
	RevokeAccess(ctx context.Context, actor lifecycle.ActingUser, id, memberID string) (*lifecycle.Result, error)
	AddMember(ctx context.Context, actor lifecycle.ActingUser, id string, nm membership.NewMember) (*lifecycle.Result, error)
	TransferOwnership(ctx context.Context, actor lifecycle.ActingUser, id string, req lifecycle.TransferRequest) (*lifecycle.Result, error)

	BeginEdit(ctx context.Context, actor lifecycle.ActingUser, id string) (*editsession.View, error)
	EditView(ctx context.Context, actor lifecycle.ActingUser, id string) (*editsession.View, error)
	UpdateField(ctx context.Context, actor lifecycle.ActingUser, id string, field editsession.Field, value string) (*editsession.View, error)
	CancelEdit(ctx context.Context, actor lifecycle.ActingUser, id string, cont editsession.Continuation) (editsession.Decision, error)
	ResolveCancel(ctx context.Context, actor lifecycle.ActingUser, id string, r editsession.Resolution) (editsession.Decision, *lifecycle.Result, error)
	SaveEdit(ctx context.Context, actor lifecycle.ActingUser, id string) (*lifecycle.Result, error)
}

type organizationService struct {
	dir       directory.Service
	catalog   subscription.Catalog
	notifier  Notifier
	publisher Publisher
	log       *zap.Logger
	now       func() time.Time

	mu          sync.Mutex
	controllers map[string]*lifecycle.Controller
}

func NewOrganizationService(
	dir directory.Service,
	catalog subscription.Catalog,
	notifier Notifier,
	publisher Publisher,
	log *zap.Logger,
	now func() time.Time,
) OrganizationService {
	return &organizationService{
		dir:         dir,
		catalog:     catalog,
		notifier:    notifier,
		publisher:   publisher,
		log:         log.Named("organizations"),
		now:         now,
		controllers: make(map[string]*lifecycle.Controller),
	}
}

// controller returns the loaded controller for id, loading it on first use.
// A failed load is not cached.
func (s *organizationService) controller(ctx context.Context, id string) (*lifecycle.Controller, error) {
	s.mu.Lock()
	c, ok := s.controllers[id]
	s.mu.Unlock()
	if ok {
		return c, nil
	}

	c = lifecycle.New(id, s.dir, lifecycle.Options{Catalog: s.catalog, Now: s.now, Logger: s.log})
	if _, err := c.Load(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.controllers[id]; ok {
		return existing, nil
	}
	s.controllers[id] = c
	return c, nil
}

func (s *organizationService) loaded() []*lifecycle.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*lifecycle.Controller, 0, len(s.controllers))
	for _, c := range s.controllers {
		out = append(out, c)
	}
	return out
}

// ============================================
// Reads
// ============================================

func summarize(org *models.Organization, now time.Time) OrganizationSummary {
	return OrganizationSummary{
		ID:           org.ID,
		Name:         org.Name,
		OwnerName:    org.OwnerName(),
		OwnerEmail:   org.OwnerEmail(),
		Status:       org.Status,
		MemberCount:  len(org.Members),
		Expiry:       org.Subscription.Expiry,
		Subscription: subscription.Health(org.Subscription.Expiry, now),
	}
}

// List reads straight from the directory. Organizations with an open
// controller show their current snapshot instead.
func (s *organizationService) List(ctx context.Context, actor lifecycle.ActingUser) ([]OrganizationSummary, error) {
	if err := lifecycle.Authorize(actor, lifecycle.ActionView); err != nil {
		return nil, err
	}
	orgs, err := s.dir.ListOrganizations(ctx)
	if err != nil {
		return nil, directory.Fail(directory.OpList, err)
	}

	s.mu.Lock()
	live := make(map[string]*lifecycle.Controller, len(s.controllers))
	for id, c := range s.controllers {
		live[id] = c
	}
	s.mu.Unlock()

	now := s.now()
	out := make([]OrganizationSummary, 0, len(orgs))
	for _, org := range orgs {
		if c, ok := live[org.ID]; ok {
			if snap := c.Snapshot(); snap != nil {
				org = snap
			}
		}
		out = append(out, summarize(org, now))
	}
	return out, nil
}

func (s *organizationService) detail(c *lifecycle.Controller, actor lifecycle.ActingUser) (*OrganizationDetail, error) {
	org, err := c.View(actor)
	if err != nil {
		return nil, err
	}
	edit, err := c.EditView(actor)
	if err != nil {
		return nil, err
	}
	return &OrganizationDetail{
		Organization: org,
		OwnerName:    org.OwnerName(),
		OwnerEmail:   org.OwnerEmail(),
		AddressLink:  org.AddressLink(),
		Subscription: subscription.Health(org.Subscription.Expiry, s.now()),
		EditSession:  edit,
		Actions:      allowedActions(actor),
	}, nil
}

func allowedActions(actor lifecycle.ActingUser) []lifecycle.Action {
	all := []lifecycle.Action{
		lifecycle.ActionActivate, lifecycle.ActionDeactivate, lifecycle.ActionExtend,
		lifecycle.ActionGrant, lifecycle.ActionRevoke, lifecycle.ActionAddMember,
		lifecycle.ActionEdit, lifecycle.ActionTransfer,
	}
	out := []lifecycle.Action{}
	for _, a := range all {
		if lifecycle.Can(actor, a) {
			out = append(out, a)
		}
	}
	return out
}

func (s *organizationService) Get(ctx context.Context, actor lifecycle.ActingUser, id string) (*OrganizationDetail, error) {
	if err := lifecycle.Authorize(actor, lifecycle.ActionView); err != nil {
		return nil, err
	}
	c, err := s.controller(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.detail(c, actor)
}

func (s *organizationService) Refresh(ctx context.Context, actor lifecycle.ActingUser, id string) (*OrganizationDetail, error) {
	if err := lifecycle.Authorize(actor, lifecycle.ActionView); err != nil {
		return nil, err
	}
	c, err := s.controller(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := c.Refresh(ctx); err != nil {
		return nil, err
	}
	return s.detail(c, actor)
}

// RefreshLoaded re-reads every open organization so derived state such as
// an expired subscription shows up without user action. It returns how many
// changed status.
func (s *organizationService) RefreshLoaded(ctx context.Context) int {
	changed := 0
	for _, c := range s.loaded() {
		before := c.Snapshot()
		after, err := c.Refresh(ctx)
		if err != nil {
			s.log.Warn("refresh failed", zap.String("org_id", c.ID()), zap.Error(err))
			continue
		}
		if before == nil || before.Subscription.Status != after.Subscription.Status || before.Status != after.Status {
			changed++
			s.publisher.BroadcastOrganization(socket.MessageOrganizationUpdated, after, "", nil)
		}
	}
	return changed
}

// ============================================
// Activation & Subscription
// ============================================

func (s *organizationService) Activate(ctx context.Context, actor lifecycle.ActingUser, id string) (*lifecycle.Result, error) {
	c, err := s.controller(ctx, id)
	if err != nil {
		return nil, err
	}
	res, err := c.Activate(ctx, actor)
	if err != nil {
		return nil, err
	}

	org := res.Organization
	s.publisher.BroadcastOrganization(socket.MessageOrganizationActivated, org, actor.ID, map[string]interface{}{"message": res.Message})
	s.notify("organization_activated", s.notifier.SendOrganizationActivated(org.OwnerEmail(), email.OrganizationActivatedData{
		OwnerName:        org.OwnerName(),
		OrganizationName: org.Name,
		ConsoleURL:       "/organizations/" + org.ID,
	}))
	return res, nil
}

func (s *organizationService) Deactivate(ctx context.Context, actor lifecycle.ActingUser, id, reason string) (*lifecycle.Result, error) {
	c, err := s.controller(ctx, id)
	if err != nil {
		return nil, err
	}
	res, err := c.Deactivate(ctx, actor, reason)
	if err != nil {
		return nil, err
	}

	org := res.Organization
	s.publisher.BroadcastOrganization(socket.MessageOrganizationDeactivated, org, actor.ID, map[string]interface{}{"message": res.Message})
	data := email.OrganizationDeactivatedData{
		OwnerName:        org.OwnerName(),
		OrganizationName: org.Name,
		Reason:           reason,
		Date:             s.now().Format(dateLayout),
	}
	if org.Deactivation != nil {
		data.Reason = org.Deactivation.Reason
		data.Date = org.Deactivation.Date.Format(dateLayout)
	}
	s.notify("organization_deactivated", s.notifier.SendOrganizationDeactivated(org.OwnerEmail(), data))
	return res, nil
}

func (s *organizationService) ExtendSubscription(ctx context.Context, actor lifecycle.ActingUser, id string, duration types.PlanType) (*lifecycle.Result, error) {
	c, err := s.controller(ctx, id)
	if err != nil {
		return nil, err
	}
	res, err := c.ExtendSubscription(ctx, actor, duration)
	if err != nil {
		return nil, err
	}

	org := res.Organization
	extra := map[string]interface{}{"message": res.Message}
	data := email.SubscriptionExtendedData{
		OwnerName:        org.OwnerName(),
		OrganizationName: org.Name,
		Duration:         string(duration),
		PreviousEndDate:  res.Previous.Subscription.Expiry.Format(dateLayout),
		NewEndDate:       org.Subscription.Expiry.Format(dateLayout),
	}
	if res.Extension != nil {
		extra["extension"] = res.Extension
		if !res.Extension.Amount.IsZero() {
			data.Amount = res.Extension.Amount.StringFixed(2)
		}
	}
	s.publisher.BroadcastOrganization(socket.MessageSubscriptionExtended, org, actor.ID, extra)
	s.notify("subscription_extended", s.notifier.SendSubscriptionExtended(org.OwnerEmail(), data))
	return res, nil
}

// ============================================
// Membership
// ============================================

func memberByID(org *models.Organization, id string) (models.Membership, bool) {
	for _, m := range org.Members {
		if m.ID == id {
			return m, true
		}
	}
	return models.Membership{}, false
}

func (s *organizationService) setAccess(ctx context.Context, actor lifecycle.ActingUser, id, memberID string, grant bool) (*lifecycle.Result, error) {
	c, err := s.controller(ctx, id)
	if err != nil {
		return nil, err
	}
	var res *lifecycle.Result
	if grant {
		res, err = c.GrantAccess(ctx, actor, memberID)
	} else {
		res, err = c.RevokeAccess(ctx, actor, memberID)
	}
	if err != nil {
		return nil, err
	}

	before, _ := memberByID(res.Previous, memberID)
	after, _ := memberByID(res.Organization, memberID)
	if before.IsActive != after.IsActive {
		s.publisher.BroadcastOrganization(socket.MessageMemberAccessChanged, res.Organization, actor.ID, map[string]interface{}{
			"message":  res.Message,
			"memberId": memberID,
			"isActive": after.IsActive,
		})
	}
	return res, nil
}

func (s *organizationService) GrantAccess(ctx context.Context, actor lifecycle.ActingUser, id, memberID string) (*lifecycle.Result, error) {
	return s.setAccess(ctx, actor, id, memberID, true)
}

func (s *organizationService) RevokeAccess(ctx context.Context, actor lifecycle.ActingUser, id, memberID string) (*lifecycle.Result, error) {
	return s.setAccess(ctx, actor, id, memberID, false)
}

func (s *organizationService) AddMember(ctx context.Context, actor lifecycle.ActingUser, id string, nm membership.NewMember) (*lifecycle.Result, error) {
	c, err := s.controller(ctx, id)
	if err != nil {
		return nil, err
	}
	res, err := c.AddMember(ctx, actor, nm)
	if err != nil {
		return nil, err
	}

	org := res.Organization
	for _, m := range org.Members {
		if _, existed := memberByID(res.Previous, m.ID); existed {
			continue
		}
		s.publisher.BroadcastOrganization(socket.MessageMemberAdded, org, actor.ID, map[string]interface{}{
			"message":  res.Message,
			"memberId": m.ID,
		})
		s.notify("member_added", s.notifier.SendMemberAdded(m.Email, email.MemberAddedData{
			MemberName:       m.Name,
			OrganizationName: org.Name,
			Role:             string(m.Role),
		}))
	}
	return res, nil
}

// TransferOwnership emails both the previous and the new owner.
func (s *organizationService) TransferOwnership(ctx context.Context, actor lifecycle.ActingUser, id string, req lifecycle.TransferRequest) (*lifecycle.Result, error) {
	c, err := s.controller(ctx, id)
	if err != nil {
		return nil, err
	}
	res, err := c.BeginOwnershipTransfer(ctx, actor, req)
	if err != nil {
		return nil, err
	}

	org := res.Organization
	prevOwner, _ := res.Previous.Owner()
	newOwner, _ := org.Owner()
	s.publisher.BroadcastOrganization(socket.MessageOwnershipTransferred, org, actor.ID, map[string]interface{}{
		"message":         res.Message,
		"previousOwnerId": prevOwner.ID,
		"newOwnerId":      newOwner.ID,
	})

	data := email.OwnershipTransferredData{
		OrganizationName:  org.Name,
		PreviousOwnerName: prevOwner.Name,
		NewOwnerName:      newOwner.Name,
		NewOwnerEmail:     newOwner.Email,
		ConsoleURL:        "/organizations/" + org.ID,
	}
	toNew := data
	toNew.RecipientName, toNew.IsNewOwner = newOwner.Name, true
	s.notify("ownership_transferred", s.notifier.SendOwnershipTransferred(newOwner.Email, toNew))

	toPrev := data
	toPrev.RecipientName = prevOwner.Name
	s.notify("ownership_transferred", s.notifier.SendOwnershipTransferred(prevOwner.Email, toPrev))
	return res, nil
}

// ============================================
// Edit session
// ============================================

func (s *organizationService) BeginEdit(ctx context.Context, actor lifecycle.ActingUser, id string) (*editsession.View, error) {
	c, err := s.controller(ctx, id)
	if err != nil {
		return nil, err
	}
	v, err := c.BeginEdit(actor)
	if err != nil {
		return nil, err
	}
	s.publisher.BroadcastEditSession(id, actor.ID, true)
	return v, nil
}

func (s *organizationService) EditView(ctx context.Context, actor lifecycle.ActingUser, id string) (*editsession.View, error) {
	c, err := s.controller(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.EditView(actor)
}

func (s *organizationService) UpdateField(ctx context.Context, actor lifecycle.ActingUser, id string, field editsession.Field, value string) (*editsession.View, error) {
	c, err := s.controller(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.UpdateField(actor, field, value)
}

func (s *organizationService) CancelEdit(ctx context.Context, actor lifecycle.ActingUser, id string, cont editsession.Continuation) (editsession.Decision, error) {
	c, err := s.controller(ctx, id)
	if err != nil {
		return editsession.Decision{}, err
	}
	d, err := c.CancelEdit(actor, cont)
	if err != nil {
		return d, err
	}
	if !d.Pending() {
		s.publisher.BroadcastEditSession(id, actor.ID, false)
	}
	return d, nil
}

func (s *organizationService) ResolveCancel(ctx context.Context, actor lifecycle.ActingUser, id string, r editsession.Resolution) (editsession.Decision, *lifecycle.Result, error) {
	c, err := s.controller(ctx, id)
	if err != nil {
		return editsession.Decision{}, nil, err
	}
	d, res, err := c.ResolveCancel(ctx, actor, r)
	if err != nil {
		return d, nil, err
	}
	if res != nil {
		s.publisher.BroadcastOrganization(socket.MessageOrganizationUpdated, res.Organization, actor.ID, map[string]interface{}{"message": res.Message})
	}
	s.publisher.BroadcastEditSession(id, actor.ID, false)
	return d, res, nil
}

func (s *organizationService) SaveEdit(ctx context.Context, actor lifecycle.ActingUser, id string) (*lifecycle.Result, error) {
	c, err := s.controller(ctx, id)
	if err != nil {
		return nil, err
	}
	res, err := c.SaveEdit(ctx, actor)
	if err != nil {
		return nil, err
	}
	s.publisher.BroadcastOrganization(socket.MessageOrganizationUpdated, res.Organization, actor.ID, map[string]interface{}{"message": res.Message})
	s.publisher.BroadcastEditSession(id, actor.ID, false)
	return res, nil
}

// notify logs a failed email. The operation itself already succeeded.
func (s *organizationService) notify(kind string, err error) {
	if err != nil {
		s.log.Warn("notification failed", zap.String("kind", kind), zap.Error(err))
	}
}

// ============================================
// No-op collaborators
// ============================================

type nopNotifier struct{}

func (nopNotifier) SendOwnershipTransferred(string, email.OwnershipTransferredData) error { return nil }
func (nopNotifier) SendOrganizationDeactivated(string, email.OrganizationDeactivatedData) error { return nil }
func (nopNotifier) SendOrganizationActivated(string, email.OrganizationActivatedData) error { return nil }
func (nopNotifier) SendSubscriptionExtended(string, email.SubscriptionExtendedData) error { return nil }
func (nopNotifier) SendSubscriptionExpiring(string, email.SubscriptionExpiringData) error { return nil }
func (nopNotifier) SendMemberAdded(string, email.MemberAddedData) error { return nil }

type nopPublisher struct{}

func (nopPublisher) BroadcastOrganization(socket.MessageType, *models.Organization, string, map[string]interface{}) {}
func (nopPublisher) BroadcastEditSession(string, string, bool) {}
