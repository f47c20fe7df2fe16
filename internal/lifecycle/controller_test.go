package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/Marga-Ghale/ora-admin-console/internal/apperr"
	"github.com/Marga-Ghale/ora-admin-console/internal/directory"
	"github.com/Marga-Ghale/ora-admin-console/internal/editsession"
	"github.com/Marga-Ghale/ora-admin-console/internal/membership"
	"github.com/Marga-Ghale/ora-admin-console/internal/models"
	"github.com/Marga-Ghale/ora-admin-console/internal/subscription"
	"github.com/Marga-Ghale/ora-admin-console/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	now        = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	superAdmin = ActingUser{ID: "op-1", Role: types.ActorSuperAdmin}
	developer  = ActingUser{ID: "dev-1", Role: types.ActorDeveloper}
	support    = ActingUser{ID: "sup-1", Role: types.ActorSupport}
)

func fixture() *models.Organization {
	return &models.Organization{
		ID:       "org-1",
		Name:     "Himal Traders",
		Address:  "Kathmandu",
		Phone:    "9841000000",
		TaxID:    "601234567",
		Location: models.Location{Latitude: 27.7, Longitude: 85.3},
		Status:   types.OrgActive,
		Subscription: models.Subscription{
			Status: types.SubscriptionActive,
			Expiry: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			Type:   types.Plan6Months,
		},
		CreatedDate: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		Members: []models.Membership{
			{ID: "asha", Name: "Asha", Email: "asha@example.com", Role: types.RoleOwner, EmailVerified: true, IsActive: true},
			{ID: "raj", Name: "Raj", Email: "raj@example.com", Role: types.RoleAdmin, EmailVerified: true, IsActive: true},
		},
	}
}

func setup(t *testing.T) (*Controller, *directory.Memory) {
	t.Helper()
	dir := directory.NewMemory(fixture())
	dir.SetClock(func() time.Time { return now })
	c := New("org-1", dir, Options{
		Catalog: subscription.Catalog{types.Plan6Months: decimal.NewFromInt(120)},
		Now:     func() time.Time { return now },
	})
	_, err := c.Load(context.Background())
	require.NoError(t, err)
	return c, dir
}

// ============================================
// Activation
// ============================================

func TestDeactivateThenActivateKeepsAudit(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()

	res, err := c.Deactivate(ctx, superAdmin, "Non-payment")
	require.NoError(t, err)
	assert.Equal(t, types.OrgInactive, res.Organization.Status)
	assert.NotEmpty(t, res.Message)

	res, err = c.Activate(ctx, superAdmin)
	require.NoError(t, err)
	assert.Equal(t, types.OrgActive, res.Organization.Status)
	require.NotNil(t, res.Organization.Deactivation)
	assert.Equal(t, "Non-payment", res.Organization.Deactivation.Reason)
	assert.Equal(t, now, res.Organization.Deactivation.Date)
}

func TestDeactivateRequiresReason(t *testing.T) {
	c, dir := setup(t)
	_, err := c.Deactivate(context.Background(), superAdmin, "  ")
	assert.True(t, apperr.IsValidation(err))
	assert.Zero(t, dir.Calls(directory.OpSetActive))
}

func TestActivateActiveIsInvariantViolation(t *testing.T) {
	c, dir := setup(t)
	_, err := c.Activate(context.Background(), superAdmin)
	assert.True(t, apperr.IsInvariant(err))
	assert.Zero(t, dir.Calls(directory.OpSetActive))
}

func TestDeactivateFailureRollsBack(t *testing.T) {
	c, dir := setup(t)
	dir.FailNext(directory.OpSetActive, nil)

	_, err := c.Deactivate(context.Background(), superAdmin, "Fraud")
	require.Error(t, err)
	assert.True(t, apperr.IsPersistence(err))

	view, err := c.View(superAdmin)
	require.NoError(t, err)
	assert.Equal(t, types.OrgActive, view.Status)
	assert.Nil(t, view.Deactivation)
}

func TestConfirmationFetchFailureKeepsWorkingCopy(t *testing.T) {
	c, dir := setup(t)
	dir.FailNext(directory.OpFetch, nil)

	res, err := c.Deactivate(context.Background(), superAdmin, "Fraud")
	require.NoError(t, err)
	assert.Equal(t, types.OrgInactive, res.Organization.Status)

	stored, _ := dir.Get("org-1")
	assert.Equal(t, types.OrgInactive, stored.Status)
}

// blockingDirectory holds SetOrganizationActive until released.
type blockingDirectory struct {
	*directory.Memory
	started chan struct{}
	release chan struct{}
}

func (b *blockingDirectory) SetOrganizationActive(ctx context.Context, id string, active bool, d *models.Deactivation) error {
	close(b.started)
	<-b.release
	return b.Memory.SetOrganizationActive(ctx, id, active, d)
}

func TestViewShowsWorkingCopyWhileInFlight(t *testing.T) {
	mem := directory.NewMemory(fixture())
	dir := &blockingDirectory{Memory: mem, started: make(chan struct{}), release: make(chan struct{})}
	c := New("org-1", dir, Options{Now: func() time.Time { return now }})
	_, err := c.Load(context.Background())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := c.Deactivate(context.Background(), superAdmin, "Audit")
		done <- err
	}()

	<-dir.started
	view, err := c.View(support)
	require.NoError(t, err)
	assert.Equal(t, types.OrgInactive, view.Status)

	close(dir.release)
	require.NoError(t, <-done)
}

// ============================================
// Subscription
// ============================================

func TestExtendSubscriptionScenario(t *testing.T) {
	c, _ := setup(t)
	res, err := c.ExtendSubscription(context.Background(), developer, types.Plan6Months)
	require.NoError(t, err)

	sub := res.Organization.Subscription
	assert.Equal(t, time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC), sub.Expiry)
	assert.Equal(t, types.SubscriptionActive, sub.Status)
	require.Len(t, sub.History, 1)

	require.NotNil(t, res.Extension)
	assert.Equal(t, "dev-1", res.Extension.ExtendedBy)
	assert.True(t, res.Extension.Amount.Equal(decimal.NewFromInt(120)))
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), res.Extension.PreviousEndDate)
}

func TestExtendSubscriptionRejectsUnknownDuration(t *testing.T) {
	c, dir := setup(t)
	_, err := c.ExtendSubscription(context.Background(), superAdmin, "3months")
	assert.True(t, apperr.IsValidation(err))
	assert.Zero(t, dir.Calls(directory.OpExtend))
}

func TestExtendSubscriptionFailureKeepsHistory(t *testing.T) {
	c, dir := setup(t)
	dir.FailNext(directory.OpExtend, nil)

	_, err := c.ExtendSubscription(context.Background(), superAdmin, types.Plan12Months)
	require.Error(t, err)

	view, _ := c.View(superAdmin)
	assert.Empty(t, view.Subscription.History)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), view.Subscription.Expiry)
}

// ============================================
// Membership
// ============================================

func TestRevokeAndGrantAccess(t *testing.T) {
	c, dir := setup(t)
	ctx := context.Background()

	res, err := c.RevokeAccess(ctx, developer, "raj")
	require.NoError(t, err)
	raj := res.Organization.Members[1]
	assert.False(t, raj.IsActive)

	res, err = c.RevokeAccess(ctx, developer, "raj")
	require.NoError(t, err)
	assert.False(t, res.Organization.Members[1].IsActive)
	assert.Equal(t, 1, dir.Calls(directory.OpSaveMemberships))

	res, err = c.GrantAccess(ctx, developer, "raj")
	require.NoError(t, err)
	assert.True(t, res.Organization.Members[1].IsActive)
	assert.Equal(t, 2, dir.Calls(directory.OpSaveMemberships))
}

func TestRevokeOwnerRejected(t *testing.T) {
	c, dir := setup(t)
	_, err := c.RevokeAccess(context.Background(), superAdmin, "asha")
	assert.True(t, apperr.IsInvariant(err))
	assert.Zero(t, dir.Calls(directory.OpSaveMemberships))

	view, _ := c.View(superAdmin)
	assert.True(t, view.Members[0].IsActive)
}

func TestRevokeFailureRollsBack(t *testing.T) {
	c, dir := setup(t)
	dir.FailNext(directory.OpSaveMemberships, nil)

	_, err := c.RevokeAccess(context.Background(), superAdmin, "raj")
	assert.True(t, apperr.IsPersistence(err))
	view, _ := c.View(superAdmin)
	assert.True(t, view.Members[1].IsActive)
}

func TestAddMember(t *testing.T) {
	c, _ := setup(t)
	res, err := c.AddMember(context.Background(), developer, membership.NewMember{Name: "Kiran", Email: "kiran@example.com", Role: types.RoleManager})
	require.NoError(t, err)
	assert.Len(t, res.Organization.Members, 3)
	assert.Equal(t, "Kiran added as Manager", res.Message)
}

func TestAddMemberDuplicateEmail(t *testing.T) {
	c, dir := setup(t)
	_, err := c.AddMember(context.Background(), developer, membership.NewMember{Name: "Raj Two", Email: "RAJ@example.com", Role: types.RoleManager})
	assert.True(t, apperr.IsConflict(err))
	assert.Zero(t, dir.Calls(directory.OpSaveMemberships))
}

func TestAddMemberKeepsServerVerification(t *testing.T) {
	org := fixture()
	org.Members[1].EmailVerified = false
	org.Members[1].LastActive = "Never"
	dir := directory.NewMemory(org)
	dir.SetClock(func() time.Time { return now })
	c := New("org-1", dir, Options{Now: func() time.Time { return now }})
	_, err := c.Load(context.Background())
	require.NoError(t, err)

	// raj verifies after the console loaded
	verified := fixture()
	verified.Members[1].LastActive = "Just now"
	dir.Put(verified)

	_, err = c.AddMember(context.Background(), developer, membership.NewMember{Name: "Mina", Email: "mina@example.com", Role: types.RoleSalesRep})
	require.NoError(t, err)

	stored, _ := dir.Get("org-1")
	require.Len(t, stored.Members, 3)
	assert.True(t, stored.Members[1].EmailVerified)
	assert.Equal(t, "Just now", stored.Members[1].LastActive)
}

// ============================================
// Ownership transfer
// ============================================

func TestTransferToExistingScenario(t *testing.T) {
	c, _ := setup(t)
	res, err := c.BeginOwnershipTransfer(context.Background(), superAdmin, TransferRequest{
		Mode:     membership.TransferToExisting,
		TargetID: "raj",
	})
	require.NoError(t, err)

	org := res.Organization
	assert.Len(t, org.Members, 2)
	assert.Equal(t, types.RoleAdmin, org.Members[0].Role)
	assert.Equal(t, types.RoleOwner, org.Members[1].Role)
	assert.Equal(t, "Raj", org.OwnerName())
	assert.Equal(t, "raj@example.com", org.OwnerEmail())
	assert.Equal(t, "Asha", res.Previous.OwnerName())
}

func TestTransferToNewOwner(t *testing.T) {
	c, _ := setup(t)
	res, err := c.BeginOwnershipTransfer(context.Background(), superAdmin, TransferRequest{
		Mode: membership.TransferToNew,
		Profile: membership.OwnerProfile{
			Name: "Sita Sharma", Email: "sita@example.com", Phone: "9841234567", TaxID: "AB12345",
			CitizenshipID: "27-01-75", Address: "Lalitpur", Latitude: "27.67", Longitude: "85.32",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "sita@example.com", res.Organization.OwnerEmail())
	assert.Len(t, res.Organization.Members, 3)
}

func TestTransferNewOwnerEmailConflict(t *testing.T) {
	c, dir := setup(t)
	_, err := c.BeginOwnershipTransfer(context.Background(), superAdmin, TransferRequest{
		Mode: membership.TransferToNew,
		Profile: membership.OwnerProfile{
			Name: "Asha Again", Email: "ASHA@example.com", Phone: "9841234567", TaxID: "AB12345",
			CitizenshipID: "27-01-75", Address: "Lalitpur", Latitude: "27.67", Longitude: "85.32",
		},
	})
	assert.True(t, apperr.IsConflict(err))
	assert.Zero(t, dir.Calls(directory.OpSaveMemberships))
}

func TestTransferRefusedWhileEditing(t *testing.T) {
	c, _ := setup(t)
	_, err := c.BeginEdit(superAdmin)
	require.NoError(t, err)

	_, err = c.BeginOwnershipTransfer(context.Background(), superAdmin, TransferRequest{Mode: membership.TransferToExisting, TargetID: "raj"})
	assert.ErrorIs(t, err, apperr.ErrFlowBusy)
}

func TestTransferFailureKeepsOwner(t *testing.T) {
	c, dir := setup(t)
	dir.FailNext(directory.OpSaveMemberships, nil)

	_, err := c.BeginOwnershipTransfer(context.Background(), superAdmin, TransferRequest{Mode: membership.TransferToExisting, TargetID: "raj"})
	require.Error(t, err)
	view, _ := c.View(superAdmin)
	assert.Equal(t, "Asha", view.OwnerName())
}

// ============================================
// Edit session
// ============================================

func TestSecondEditRejected(t *testing.T) {
	c, _ := setup(t)
	_, err := c.BeginEdit(developer)
	require.NoError(t, err)
	_, err = c.BeginEdit(developer)
	assert.ErrorIs(t, err, apperr.ErrSessionOpen)
}

func TestEditAndSave(t *testing.T) {
	c, dir := setup(t)
	_, err := c.BeginEdit(developer)
	require.NoError(t, err)

	v, err := c.UpdateField(developer, editsession.FieldName, "Himal Exports")
	require.NoError(t, err)
	assert.True(t, v.Dirty)

	res, err := c.SaveEdit(context.Background(), developer)
	require.NoError(t, err)
	assert.Equal(t, "Himal Exports", res.Organization.Name)

	ev, err := c.EditView(developer)
	require.NoError(t, err)
	assert.Nil(t, ev)
	assert.Equal(t, 1, dir.Calls(directory.OpUpdate))

	// a new session may open once the previous one closed
	_, err = c.BeginEdit(developer)
	assert.NoError(t, err)
}

func TestUpdateFieldInvalidReturnsViewAndError(t *testing.T) {
	c, _ := setup(t)
	_, err := c.BeginEdit(developer)
	require.NoError(t, err)

	v, err := c.UpdateField(developer, editsession.FieldPhone, "12")
	assert.True(t, apperr.IsValidation(err))
	require.NotNil(t, v)
	assert.Contains(t, v.Errors, "phone")
	assert.Equal(t, "12", v.Inputs[editsession.FieldPhone])
}

func TestSaveEditFailureKeepsDraft(t *testing.T) {
	c, dir := setup(t)
	_, err := c.BeginEdit(developer)
	require.NoError(t, err)
	_, err = c.UpdateField(developer, editsession.FieldAddress, "Pokhara")
	require.NoError(t, err)
	dir.FailNext(directory.OpUpdate, nil)

	_, err = c.SaveEdit(context.Background(), developer)
	assert.True(t, apperr.IsPersistence(err))

	ev, err := c.EditView(developer)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, editsession.StateEditing, ev.State)
	assert.True(t, ev.Dirty)
	assert.Equal(t, "Pokhara", ev.Draft.Address)

	view, _ := c.View(developer)
	assert.Equal(t, "Kathmandu", view.Address)

	d, err := c.CancelEdit(developer, editsession.ContinueClose)
	require.NoError(t, err)
	assert.True(t, d.Pending())
}

func TestCancelEditResolveSaveAndContinue(t *testing.T) {
	c, _ := setup(t)
	_, err := c.BeginEdit(developer)
	require.NoError(t, err)
	_, err = c.UpdateField(developer, editsession.FieldAddress, "Pokhara")
	require.NoError(t, err)

	d, err := c.CancelEdit(developer, editsession.ContinueClose)
	require.NoError(t, err)
	require.True(t, d.Pending())

	d, res, err := c.ResolveCancel(context.Background(), developer, editsession.ResolutionSaveAndContinue)
	require.NoError(t, err)
	assert.Equal(t, editsession.ContinueClose, d.Continuation)
	require.NotNil(t, res)
	assert.Equal(t, "Pokhara", res.Organization.Address)

	ev, _ := c.EditView(developer)
	assert.Nil(t, ev)
}

func TestCancelEditResolveDiscard(t *testing.T) {
	c, dir := setup(t)
	_, err := c.BeginEdit(developer)
	require.NoError(t, err)
	_, err = c.UpdateField(developer, editsession.FieldAddress, "Pokhara")
	require.NoError(t, err)
	_, err = c.CancelEdit(developer, editsession.ContinueCancel)
	require.NoError(t, err)

	d, res, err := c.ResolveCancel(context.Background(), developer, editsession.ResolutionDiscard)
	require.NoError(t, err)
	assert.Equal(t, editsession.ResolutionDiscard, d.Resolution)
	assert.Nil(t, res)
	assert.Zero(t, dir.Calls(directory.OpUpdate))

	view, _ := c.View(developer)
	assert.Equal(t, "Kathmandu", view.Address)
}

func TestRefreshDuringEditKeepsDraft(t *testing.T) {
	c, dir := setup(t)
	_, err := c.BeginEdit(developer)
	require.NoError(t, err)
	_, err = c.UpdateField(developer, editsession.FieldAddress, "Pokhara")
	require.NoError(t, err)

	changed := fixture()
	changed.Name = "Renamed Elsewhere"
	dir.Put(changed)
	_, err = c.Refresh(context.Background())
	require.NoError(t, err)

	ev, _ := c.EditView(developer)
	require.NotNil(t, ev)
	assert.Equal(t, "Pokhara", ev.Draft.Address)
	view, _ := c.View(developer)
	assert.Equal(t, "Renamed Elsewhere", view.Name)
}

// ============================================
// Authorization
// ============================================

func TestOperationsAreAuthorized(t *testing.T) {
	c, dir := setup(t)
	ctx := context.Background()

	_, err := c.Deactivate(ctx, support, "x")
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = c.Deactivate(ctx, developer, "x")
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = c.BeginOwnershipTransfer(ctx, developer, TransferRequest{Mode: membership.TransferToExisting, TargetID: "raj"})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = c.BeginEdit(support)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	assert.Zero(t, dir.Calls(directory.OpSetActive))
	assert.Zero(t, dir.Calls(directory.OpSaveMemberships))
}

func TestAuthorizeMatrix(t *testing.T) {
	tests := []struct {
		role   types.ActorRole
		action Action
		want   bool
	}{
		{types.ActorSuperAdmin, ActionTransfer, true},
		{types.ActorSuperAdmin, ActionDeactivate, true},
		{types.ActorDeveloper, ActionExtend, true},
		{types.ActorDeveloper, ActionEdit, true},
		{types.ActorDeveloper, ActionActivate, false},
		{types.ActorDeveloper, ActionTransfer, false},
		{types.ActorSupport, ActionView, true},
		{types.ActorSupport, ActionGrant, false},
		{"guest", ActionView, false},
	}
	for _, tt := range tests {
		got := Can(ActingUser{ID: "u", Role: tt.role}, tt.action)
		assert.Equal(t, tt.want, got, "%s %s", tt.role, tt.action)
	}
	assert.False(t, Can(ActingUser{Role: types.ActorSuperAdmin}, ActionView))
}
