package directory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Marga-Ghale/ora-admin-console/internal/membership"
	"github.com/Marga-Ghale/ora-admin-console/internal/models"
	"github.com/Marga-Ghale/ora-admin-console/internal/subscription"
	"github.com/Marga-Ghale/ora-admin-console/internal/types"
)

// ErrInjected is returned by Memory when a failure was queued without an
// explicit error.
var ErrInjected = errors.New("injected directory failure")

// Memory is an in-process directory used in development and tests. It
// behaves like the real store: it returns fresh copies, recomputes the
// subscription status on read and rejects membership sets that break
// single ownership.
type Memory struct {
	mu       sync.Mutex
	orgs     map[string]*models.Organization
	failures map[string][]error
	calls    map[string]int
	now      func() time.Time
}

func NewMemory(orgs ...*models.Organization) *Memory {
	m := &Memory{
		orgs:     make(map[string]*models.Organization),
		failures: make(map[string][]error),
		calls:    make(map[string]int),
		now:      time.Now,
	}
	for _, o := range orgs {
		m.orgs[o.ID] = o.Clone()
	}
	return m
}

// SetClock overrides the time source.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Put stores or replaces an organization.
func (m *Memory) Put(o *models.Organization) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orgs[o.ID] = o.Clone()
}

// Get returns the stored copy without counting a call or consuming
// failures.
func (m *Memory) Get(id string) (*models.Organization, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orgs[id]
	return o.Clone(), ok
}

// FailNext queues err for the next call of op. A nil err queues ErrInjected.
func (m *Memory) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		err = ErrInjected
	}
	m.failures[op] = append(m.failures[op], err)
}

// Calls reports how many times op was invoked.
func (m *Memory) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *Memory) enter(op string) error {
	m.calls[op]++
	if q := m.failures[op]; len(q) > 0 {
		m.failures[op] = q[1:]
		return Fail(op, q[0])
	}
	return nil
}

func (m *Memory) read(o *models.Organization) *models.Organization {
	out := o.Clone()
	out.Subscription.Status = subscription.StatusAt(out.Subscription.Expiry, m.now())
	return out
}

func (m *Memory) FetchOrganization(_ context.Context, id string) (*models.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpFetch); err != nil {
		return nil, err
	}
	o, ok := m.orgs[id]
	if !ok {
		return nil, NotFound(OpFetch, id)
	}
	return m.read(o), nil
}

func (m *Memory) ListOrganizations(_ context.Context) ([]*models.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpList); err != nil {
		return nil, err
	}
	out := make([]*models.Organization, 0, len(m.orgs))
	for _, o := range m.orgs {
		out = append(out, m.read(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedDate.Before(out[j].CreatedDate) })
	return out, nil
}

func (m *Memory) UpdateOrganization(_ context.Context, id string, patch models.OrganizationPatch) (*models.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpUpdate); err != nil {
		return nil, err
	}
	o, ok := m.orgs[id]
	if !ok {
		return nil, NotFound(OpUpdate, id)
	}
	patch.Apply(o)
	return m.read(o), nil
}

func (m *Memory) SetOrganizationActive(_ context.Context, id string, active bool, deactivation *models.Deactivation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpSetActive); err != nil {
		return err
	}
	o, ok := m.orgs[id]
	if !ok {
		return NotFound(OpSetActive, id)
	}
	if active {
		o.Status = types.OrgActive
		return nil
	}
	o.Status = types.OrgInactive
	if deactivation != nil {
		d := *deactivation
		o.Deactivation = &d
	}
	return nil
}

func (m *Memory) ExtendSubscription(_ context.Context, id string, req models.ExtensionRequest) (*models.Organization, *models.SubscriptionExtension, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpExtend); err != nil {
		return nil, nil, err
	}
	o, ok := m.orgs[id]
	if !ok {
		return nil, nil, NotFound(OpExtend, id)
	}
	sub, ext, err := subscription.Extend(o.Subscription, req, m.now())
	if err != nil {
		return nil, nil, Fail(OpExtend, err)
	}
	o.Subscription = sub
	return m.read(o), &ext, nil
}

func (m *Memory) SaveMemberships(_ context.Context, id string, members []models.Membership) (*models.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpSaveMemberships); err != nil {
		return nil, err
	}
	o, ok := m.orgs[id]
	if !ok {
		return nil, NotFound(OpSaveMemberships, id)
	}
	if _, err := membership.New(members); err != nil {
		return nil, Fail(OpSaveMemberships, err)
	}
	o.Members = mergeMembers(o.Members, members)
	return m.read(o), nil
}

// mergeMembers lays members over the stored list. A stored emailVerified
// never reverts and the stored lastActive is kept.
func mergeMembers(stored, members []models.Membership) []models.Membership {
	byID := make(map[string]models.Membership, len(stored))
	for _, s := range stored {
		byID[s.ID] = s
	}
	out := models.CloneMembers(members)
	for i := range out {
		s, ok := byID[out[i].ID]
		if !ok {
			continue
		}
		out[i].EmailVerified = out[i].EmailVerified || s.EmailVerified
		out[i].LastActive = s.LastActive
	}
	return out
}
