package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Marga-Ghale/ora-admin-console/internal/apperr"
	"github.com/Marga-Ghale/ora-admin-console/internal/models"
	"github.com/Marga-Ghale/ora-admin-console/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func sampleOrg() *models.Organization {
	return &models.Organization{
		ID:     "org-1",
		Name:   "Himal Traders",
		Status: types.OrgActive,
		Subscription: models.Subscription{
			Status: types.SubscriptionActive,
			Expiry: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			Type:   types.Plan6Months,
		},
		CreatedDate: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		Members: []models.Membership{
			{ID: "asha", Name: "Asha", Email: "asha@example.com", Role: types.RoleOwner, IsActive: true},
			{ID: "raj", Name: "Raj", Email: "raj@example.com", Role: types.RoleAdmin, IsActive: true},
		},
	}
}

func newMemory() *Memory {
	m := NewMemory(sampleOrg())
	m.SetClock(func() time.Time { return fixedNow })
	return m
}

// ============================================
// Memory
// ============================================

func TestMemoryFetchRecomputesSubscriptionStatus(t *testing.T) {
	m := newMemory()
	org, err := m.FetchOrganization(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionExpired, org.Subscription.Status)
	// expiry alone never deactivates
	assert.Equal(t, types.OrgActive, org.Status)
}

func TestMemoryReturnsCopies(t *testing.T) {
	m := newMemory()
	org, err := m.FetchOrganization(context.Background(), "org-1")
	require.NoError(t, err)
	org.Members[0].Name = "changed"

	again, _ := m.Get("org-1")
	assert.Equal(t, "Asha", again.Members[0].Name)
}

func TestMemoryNotFound(t *testing.T) {
	m := newMemory()
	_, err := m.FetchOrganization(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apperr.IsPersistence(err))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestMemoryFailNext(t *testing.T) {
	m := newMemory()
	m.FailNext(OpUpdate, nil)

	_, err := m.UpdateOrganization(context.Background(), "org-1", models.OrganizationPatch{Name: "X"})
	require.Error(t, err)
	assert.True(t, apperr.IsPersistence(err))
	assert.ErrorIs(t, err, ErrInjected)

	stored, _ := m.Get("org-1")
	assert.Equal(t, "Himal Traders", stored.Name)

	_, err = m.UpdateOrganization(context.Background(), "org-1", models.OrganizationPatch{Name: "X"})
	require.NoError(t, err)
	assert.Equal(t, 2, m.Calls(OpUpdate))
}

func TestMemorySetActiveKeepsDeactivationHistory(t *testing.T) {
	m := newMemory()
	ctx := context.Background()
	require.NoError(t, m.SetOrganizationActive(ctx, "org-1", false, &models.Deactivation{Reason: "Non-payment", Date: fixedNow}))
	require.NoError(t, m.SetOrganizationActive(ctx, "org-1", true, nil))

	org, _ := m.Get("org-1")
	assert.Equal(t, types.OrgActive, org.Status)
	require.NotNil(t, org.Deactivation)
	assert.Equal(t, "Non-payment", org.Deactivation.Reason)
}

func TestMemoryExtendSubscription(t *testing.T) {
	m := newMemory()
	org, ext, err := m.ExtendSubscription(context.Background(), "org-1", models.ExtensionRequest{Duration: types.Plan6Months, ExtendedBy: "op"})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC), ext.NewEndDate)
	assert.Equal(t, types.SubscriptionActive, org.Subscription.Status)
	assert.Len(t, org.Subscription.History, 1)
}

func TestMemorySaveMembershipsRejectsTwoOwners(t *testing.T) {
	m := newMemory()
	members := sampleOrg().Members
	members[1].Role = types.RoleOwner

	_, err := m.SaveMemberships(context.Background(), "org-1", members)
	assert.True(t, apperr.IsPersistence(err))
	stored, _ := m.Get("org-1")
	assert.Equal(t, types.RoleAdmin, stored.Members[1].Role)
}

func TestMemorySaveMembershipsMergesStoredRows(t *testing.T) {
	m := newMemory()
	stored := sampleOrg()
	stored.Members[1].EmailVerified = true
	stored.Members[1].LastActive = "Today"
	m.Put(stored)

	members := sampleOrg().Members
	members[1].IsActive = false
	members = append(members, models.Membership{ID: "mina", Name: "Mina", Email: "mina@example.com", Role: types.RoleManager, IsActive: true, LastActive: "Never"})

	org, err := m.SaveMemberships(context.Background(), "org-1", members)
	require.NoError(t, err)
	require.Len(t, org.Members, 3)
	assert.True(t, org.Members[1].EmailVerified)
	assert.Equal(t, "Today", org.Members[1].LastActive)
	assert.False(t, org.Members[1].IsActive)
	assert.Equal(t, "Never", org.Members[2].LastActive)
}

func TestMemorySaveMembershipsDropsMissingMembers(t *testing.T) {
	m := newMemory()
	members := sampleOrg().Members[:1]

	org, err := m.SaveMemberships(context.Background(), "org-1", members)
	require.NoError(t, err)
	require.Len(t, org.Members, 1)
	assert.Equal(t, "asha", org.Members[0].ID)
}

// ============================================
// Normalize
// ============================================

func TestNormalizeAlternateNames(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
	}{
		{
			name: "canonical",
			rec: Record{
				"id": "org-9", "name": "Acme", "taxId": "123", "status": "Inactive",
				"location":     map[string]any{"latitude": 27.7, "longitude": 85.3},
				"subscription": map[string]any{"expiry": "2024-09-01T00:00:00Z", "type": "12months"},
				"members": []any{
					map[string]any{"id": "m1", "name": "Asha", "email": "a@x.io", "role": "Owner", "isActive": true},
				},
			},
		},
		{
			name: "legacy",
			rec: Record{
				"_id": "org-9", "organizationName": "Acme", "pan_vat": 123, "is_active": false,
				"lat": "27.7", "lng": "85.3",
				"subscription_end": "2024-09-01", "subscriptionType": "12months",
				"owner_email": "A@X.io",
				"users": []any{
					map[string]any{"userId": "m1", "fullName": "Asha", "email": "a@x.io", "is_active": "true"},
				},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			org, err := Normalize(tt.rec, fixedNow)
			require.NoError(t, err)
			assert.Equal(t, "org-9", org.ID)
			assert.Equal(t, "Acme", org.Name)
			assert.Equal(t, "123", org.TaxID)
			assert.Equal(t, types.OrgInactive, org.Status)
			assert.InDelta(t, 27.7, org.Location.Latitude, 1e-9)
			assert.InDelta(t, 85.3, org.Location.Longitude, 1e-9)
			assert.Equal(t, types.Plan12Months, org.Subscription.Type)
			assert.Equal(t, time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC), org.Subscription.Expiry)
			assert.Equal(t, types.SubscriptionActive, org.Subscription.Status)
			require.Len(t, org.Members, 1)
			assert.Equal(t, types.RoleOwner, org.Members[0].Role)
			assert.True(t, org.Members[0].IsActive)
			assert.Equal(t, "Asha", org.OwnerName())
		})
	}
}

func TestNormalizeRejectsMissingOwner(t *testing.T) {
	_, err := Normalize(Record{
		"id":      "org-9",
		"members": []any{map[string]any{"id": "m1", "role": "Admin"}},
	}, fixedNow)
	assert.True(t, apperr.IsInvariant(err))
}

func TestNormalizeUnknownRole(t *testing.T) {
	_, err := Normalize(Record{
		"id":      "org-9",
		"members": []any{map[string]any{"id": "m1", "role": "Wizard"}},
	}, fixedNow)
	assert.Error(t, err)
}

func TestNormalizeWorkingHours(t *testing.T) {
	org, err := Normalize(Record{
		"id":            "org-9",
		"working_hours": map[string]any{"check_in": "09:00", "checkOut": "17:00", "weekly_off_day": "Saturday"},
		"members":       []any{map[string]any{"id": "m1", "role": "OWNER"}},
	}, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "09:00", org.WorkingHours.CheckIn)
	assert.Equal(t, "17:00", org.WorkingHours.CheckOut)
	assert.Equal(t, "Saturday", org.WorkingHours.WeeklyOffDay)
}

// ============================================
// Remote
// ============================================

func TestRemoteFetchNormalizes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/organizations/org-9", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"_id": "org-9", "orgName": "Acme",
				"memberships": []any{map[string]any{"id": "m1", "role": "owner", "email": "a@x.io"}},
			},
		})
	}))
	defer srv.Close()

	r := NewRemote(srv.URL, "secret", time.Second)
	org, err := r.FetchOrganization(context.Background(), "org-9")
	require.NoError(t, err)
	assert.Equal(t, "Acme", org.Name)
	assert.Equal(t, "a@x.io", org.OwnerEmail())
}

func TestRemoteErrorCarriesServiceMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"message":"Organization is locked"}`))
	}))
	defer srv.Close()

	err := NewRemote(srv.URL, "", time.Second).SetOrganizationActive(context.Background(), "org-9", true, nil)
	var pe *apperr.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "Organization is locked", pe.Message)
	assert.False(t, IsTransient(err))
}

func TestRemoteErrorWithoutMessageUsesFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewRemote(srv.URL, "", time.Second).FetchOrganization(context.Background(), "org-9")
	var pe *apperr.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, apperr.GenericPersistenceMessage, pe.Message)
	assert.True(t, IsTransient(err))
}

func TestRemoteExtendFallsBackToHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"organization": map[string]any{
				"id":      "org-9",
				"members": []any{map[string]any{"id": "m1", "role": "Owner"}},
				"subscription": map[string]any{
					"expiry": "2024-12-01T00:00:00Z",
					"history": []any{map[string]any{
						"duration": "6months", "previousEndDate": "2024-01-01T00:00:00Z",
						"newEndDate": "2024-12-01T00:00:00Z", "extendedBy": "op", "amount": "120.50",
					}},
				},
			},
		})
	}))
	defer srv.Close()

	_, ext, err := NewRemote(srv.URL, "", time.Second).ExtendSubscription(context.Background(), "org-9", models.ExtensionRequest{Duration: types.Plan6Months})
	require.NoError(t, err)
	assert.Equal(t, "op", ext.ExtendedBy)
	assert.Equal(t, "120.5", ext.Amount.String())
}

// ============================================
// Cached
// ============================================

type fakeCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	getErr  error
	deleted []string
}

func newFakeCache() *fakeCache { return &fakeCache{data: map[string][]byte{}} }

func (c *fakeCache) GetCache(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return c.getErr
	}
	b, ok := c.data[key]
	if !ok {
		return errors.New("miss")
	}
	return json.Unmarshal(b, dest)
}

func (c *fakeCache) SetCache(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.data[key] = b
	return nil
}

func (c *fakeCache) InvalidateCache(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	c.deleted = append(c.deleted, key)
	return nil
}

func TestCachedServesRepeatFetchFromCache(t *testing.T) {
	m := newMemory()
	c := NewCached(m, newFakeCache(), time.Minute, nil)
	ctx := context.Background()

	first, err := c.FetchOrganization(ctx, "org-1")
	require.NoError(t, err)
	second, err := c.FetchOrganization(ctx, "org-1")
	require.NoError(t, err)

	assert.Equal(t, 1, m.Calls(OpFetch))
	assert.Equal(t, first.Name, second.Name)
	assert.Equal(t, first.OwnerEmail(), second.OwnerEmail())
}

func TestCachedRecomputesSubscriptionStatusOnHit(t *testing.T) {
	clock := time.Date(2023, 12, 30, 0, 0, 0, 0, time.UTC)
	m := NewMemory(sampleOrg())
	m.SetClock(func() time.Time { return clock })
	c := NewCached(m, newFakeCache(), time.Hour, nil)
	c.SetClock(func() time.Time { return clock })
	ctx := context.Background()

	org, err := c.FetchOrganization(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionActive, org.Subscription.Status)

	clock = clock.AddDate(0, 0, 3)
	org, err = c.FetchOrganization(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, 1, m.Calls(OpFetch))
	assert.Equal(t, types.SubscriptionExpired, org.Subscription.Status)
}

func TestCachedInvalidatesOnWrite(t *testing.T) {
	m := newMemory()
	cache := newFakeCache()
	c := NewCached(m, cache, time.Minute, nil)
	ctx := context.Background()

	_, err := c.FetchOrganization(ctx, "org-1")
	require.NoError(t, err)
	_, err = c.UpdateOrganization(ctx, "org-1", models.OrganizationPatch{Name: "Renamed"})
	require.NoError(t, err)

	org, err := c.FetchOrganization(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", org.Name)
	assert.Equal(t, 2, m.Calls(OpFetch))
	assert.Contains(t, cache.deleted, "org:org-1")
}

func TestCachedFallsThroughOnCacheError(t *testing.T) {
	m := newMemory()
	cache := newFakeCache()
	cache.getErr = errors.New("redis down")
	c := NewCached(m, cache, time.Minute, nil)

	_, err := c.FetchOrganization(context.Background(), "org-1")
	require.NoError(t, err)
}

// ============================================
// Retrying
// ============================================

type tempErr struct{}

func (tempErr) Error() string   { return "temporarily unavailable" }
func (tempErr) Temporary() bool { return true }

func fastRetrying(next Service, max int) *Retrying {
	r := NewRetrying(next, max, nil)
	r.initial = time.Millisecond
	return r
}

func TestRetryingRetriesTransientFailures(t *testing.T) {
	m := newMemory()
	m.FailNext(OpFetch, tempErr{})
	m.FailNext(OpFetch, tempErr{})

	org, err := fastRetrying(m, 3).FetchOrganization(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, "org-1", org.ID)
	assert.Equal(t, 3, m.Calls(OpFetch))
}

func TestRetryingStopsOnPermanentFailure(t *testing.T) {
	m := newMemory()
	m.FailNext(OpSaveMemberships, errors.New("rejected"))

	_, err := fastRetrying(m, 3).SaveMemberships(context.Background(), "org-1", sampleOrg().Members)
	require.Error(t, err)
	assert.True(t, apperr.IsPersistence(err))
	assert.Equal(t, 1, m.Calls(OpSaveMemberships))
}

func TestRetryingGivesUp(t *testing.T) {
	m := newMemory()
	for i := 0; i < 5; i++ {
		m.FailNext(OpUpdate, tempErr{})
	}
	_, err := fastRetrying(m, 2).UpdateOrganization(context.Background(), "org-1", models.OrganizationPatch{})
	require.Error(t, err)
	assert.Equal(t, 3, m.Calls(OpUpdate))
}

func TestRetryingNeverRepeatsExtension(t *testing.T) {
	m := newMemory()
	m.FailNext(OpExtend, tempErr{})

	_, _, err := fastRetrying(m, 3).ExtendSubscription(context.Background(), "org-1", models.ExtensionRequest{Duration: types.Plan6Months})
	require.Error(t, err)
	assert.Equal(t, 1, m.Calls(OpExtend))
}

// ============================================
// SessionRevoking
// ============================================

type fakeSessions struct {
	deleted []string
	fail    map[string]bool
}

func (s *fakeSessions) DeleteSession(_ context.Context, key string) error {
	if s.fail[key] {
		return fmt.Errorf("cannot delete %s", key)
	}
	s.deleted = append(s.deleted, key)
	return nil
}

func TestSessionRevokingOnDeactivate(t *testing.T) {
	m := newMemory()
	sessions := &fakeSessions{fail: map[string]bool{"raj": true}}
	s := NewSessionRevoking(m, sessions, nil)

	err := s.SetOrganizationActive(context.Background(), "org-1", false, &models.Deactivation{Reason: "Fraud", Date: fixedNow})
	require.NoError(t, err)
	assert.Equal(t, []string{"asha"}, sessions.deleted)
}

func TestSessionRevokingSkipsActivate(t *testing.T) {
	m := newMemory()
	sessions := &fakeSessions{}
	s := NewSessionRevoking(m, sessions, nil)

	require.NoError(t, s.SetOrganizationActive(context.Background(), "org-1", true, nil))
	assert.Empty(t, sessions.deleted)
}

func TestSessionRevokingPropagatesDirectoryFailure(t *testing.T) {
	m := newMemory()
	m.FailNext(OpSetActive, nil)
	sessions := &fakeSessions{}
	s := NewSessionRevoking(m, sessions, nil)

	err := s.SetOrganizationActive(context.Background(), "org-1", false, &models.Deactivation{Reason: "Fraud"})
	assert.True(t, apperr.IsPersistence(err))
	assert.Empty(t, sessions.deleted)
}
