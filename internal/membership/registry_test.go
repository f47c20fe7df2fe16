package membership

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/Marga-Ghale/ora-admin-console/internal/apperr"
	"github.com/Marga-Ghale/ora-admin-console/internal/models"
	"github.com/Marga-Ghale/ora-admin-console/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedMembers() []models.Membership {
	return []models.Membership{
		{ID: "asha", Name: "Asha", Email: "asha@example.com", Role: types.RoleOwner, EmailVerified: true, IsActive: true, LastActive: "2 hours ago"},
		{ID: "raj", Name: "Raj", Email: "raj@example.com", Role: types.RoleAdmin, EmailVerified: true, IsActive: true, LastActive: "Yesterday"},
		{ID: "mina", Name: "Mina", Email: "mina@example.com", Role: types.RoleSalesRep, IsActive: false, LastActive: "Never"},
	}
}

func mustRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := New(seedMembers())
	require.NoError(t, err)
	return r
}

func TestNewRequiresExactlyOneOwner(t *testing.T) {
	ms := seedMembers()
	ms[0].Role = types.RoleAdmin
	_, err := New(ms)
	assert.True(t, apperr.IsInvariant(err))

	ms = seedMembers()
	ms[1].Role = types.RoleOwner
	_, err = New(ms)
	assert.True(t, apperr.IsInvariant(err))
}

func TestRevokeOwnerIsRejected(t *testing.T) {
	r := mustRegistry(t)
	next, err := r.Revoke("asha")
	require.Error(t, err)
	assert.Nil(t, next)
	assert.True(t, apperr.IsInvariant(err))

	owner, _ := r.Owner()
	assert.True(t, owner.IsActive)
}

func TestRevokeAndGrantAreIdempotent(t *testing.T) {
	r := mustRegistry(t)

	once, err := r.Revoke("raj")
	require.NoError(t, err)
	twice, err := once.Revoke("raj")
	require.NoError(t, err)
	assert.Equal(t, once.Members(), twice.Members())

	g1, err := twice.Grant("raj")
	require.NoError(t, err)
	g2, err := g1.Grant("raj")
	require.NoError(t, err)
	assert.Equal(t, g1.Members(), g2.Members())

	m, _ := g2.Find("raj")
	assert.True(t, m.IsActive)
}

func TestOperationsDoNotMutateReceiver(t *testing.T) {
	r := mustRegistry(t)
	before := r.Members()

	_, err := r.Revoke("raj")
	require.NoError(t, err)
	_, _, err = r.Add(NewMember{Name: "Kiran", Email: "kiran@example.com", Role: types.RoleManager})
	require.NoError(t, err)
	_, err = r.TransferToExistingMember("raj")
	require.NoError(t, err)

	assert.Equal(t, before, r.Members())
}

func TestGrantUnverifiedMember(t *testing.T) {
	r := mustRegistry(t)
	next, err := r.Grant("mina")
	require.NoError(t, err)
	m, _ := next.Find("mina")
	assert.True(t, m.IsActive)
	assert.False(t, m.EmailVerified)
}

func TestAddMember(t *testing.T) {
	r := mustRegistry(t)
	next, m, err := r.Add(NewMember{Name: "Kiran", Email: "kiran@example.com", Role: types.RoleManager})
	require.NoError(t, err)

	assert.NotEmpty(t, m.ID)
	assert.Equal(t, LastActiveNever, m.LastActive)
	assert.True(t, m.IsActive)
	assert.Equal(t, 4, next.Len())
	assert.Equal(t, 3, r.Len())
}

func TestAddRejectsDuplicateEmailIgnoringCase(t *testing.T) {
	r := mustRegistry(t)
	_, _, err := r.Add(NewMember{Name: "Raj Two", Email: "RAJ@Example.com", Role: types.RoleManager})
	assert.True(t, apperr.IsConflict(err))
}

func TestAddRejectsOwnerRole(t *testing.T) {
	r := mustRegistry(t)
	_, _, err := r.Add(NewMember{Name: "Kiran", Email: "kiran@example.com", Role: types.RoleOwner})
	var fe apperr.FieldErrors
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe, "role")
}

func TestTransferToExisting(t *testing.T) {
	r := mustRegistry(t)
	next, err := r.TransferToExistingMember("raj")
	require.NoError(t, err)

	raj, _ := next.Find("raj")
	asha, _ := next.Find("asha")
	assert.Equal(t, types.RoleOwner, raj.Role)
	assert.Equal(t, types.RoleAdmin, asha.Role)
	assert.Equal(t, r.Len(), next.Len())
	assert.Equal(t, 1, next.OwnerCount())

	// everything but the role is untouched
	before, _ := r.Find("raj")
	before.Role = types.RoleOwner
	assert.Equal(t, before, raj)
}

func TestTransferToCurrentOwnerIsRejected(t *testing.T) {
	r := mustRegistry(t)
	_, err := r.TransferToExistingMember("asha")
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "already owner", ve.Message)
}

func TestTransferToRevokedMemberIsRejected(t *testing.T) {
	r := mustRegistry(t)
	_, err := r.TransferToExistingMember("mina")
	assert.True(t, apperr.IsValidation(err))
}

func validProfile() OwnerProfile {
	return OwnerProfile{
		Name:          "Sita Sharma",
		Email:         "sita@example.com",
		Phone:         "984-123-4567",
		TaxID:         "ab12345",
		CitizenshipID: "27-01-75",
		Address:       "Lalitpur",
		Latitude:      "27.67",
		Longitude:     "85.32",
	}
}

func TestTransferToNewOwner(t *testing.T) {
	r := mustRegistry(t)
	next, owner, err := r.TransferToNewOwner(validProfile())
	require.NoError(t, err)

	assert.Equal(t, types.RoleOwner, owner.Role)
	assert.False(t, owner.EmailVerified)
	assert.True(t, owner.IsActive)
	assert.Equal(t, "AB12345", owner.TaxID)
	assert.Equal(t, "9841234567", owner.Phone)
	require.NotNil(t, owner.Location)
	assert.InDelta(t, 27.67, owner.Location.Latitude, 1e-9)

	asha, _ := next.Find("asha")
	assert.Equal(t, types.RoleAdmin, asha.Role)
	assert.Equal(t, 1, next.OwnerCount())
	assert.Equal(t, r.Len()+1, next.Len())
}

func TestTransferToNewOwnerAggregatesFieldErrors(t *testing.T) {
	r := mustRegistry(t)
	p := validProfile()
	p.Phone = "123"
	p.Latitude = "abc"
	p.Name = ""

	_, _, err := r.TransferToNewOwner(p)
	var fe apperr.FieldErrors
	require.ErrorAs(t, err, &fe)
	assert.Len(t, fe, 3)
	assert.Contains(t, fe, "phone")
	assert.Contains(t, fe, "latitude")
	assert.Contains(t, fe, "name")
	assert.Equal(t, 1, r.OwnerCount())
}

func TestTransferToNewOwnerRejectsEmailCollision(t *testing.T) {
	r := mustRegistry(t)
	p := validProfile()
	p.Email = "Asha@EXAMPLE.com"
	_, _, err := r.TransferToNewOwner(p)
	assert.True(t, apperr.IsConflict(err))
}

// Any sequence of operations keeps exactly one owner.
func TestSingleOwnerInvariantUnderRandomOperations(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	r := mustRegistry(t)

	for step := 0; step < 500; step++ {
		members := r.Members()
		target := members[rng.Intn(len(members))].ID

		var next *Registry
		var err error
		switch rng.Intn(5) {
		case 0:
			next, _, err = r.Add(NewMember{
				Name:  "Member",
				Email: fmt.Sprintf("m%d@example.com", step),
				Role:  []types.Role{types.RoleAdmin, types.RoleManager, types.RoleSalesRep}[rng.Intn(3)],
			})
		case 1:
			next, err = r.Revoke(target)
		case 2:
			next, err = r.Grant(target)
		case 3:
			next, err = r.TransferToExistingMember(target)
		case 4:
			p := validProfile()
			p.Email = fmt.Sprintf("owner%d@example.com", step)
			next, _, err = r.TransferToNewOwner(p)
		}
		if err == nil {
			r = next
		}
		require.Equal(t, 1, r.OwnerCount(), "step %d", step)

		owner, ok := r.Owner()
		require.True(t, ok)
		require.True(t, owner.IsActive, "step %d: owner lost access", step)
	}
}
