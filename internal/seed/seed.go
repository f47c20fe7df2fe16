// internal/seed/seed.go
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/Marga-Ghale/ora-admin-console/internal/models"
	"github.com/Marga-Ghale/ora-admin-console/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store is the part of the organization repository the seeder needs.
type Store interface {
	ListOrganizations(ctx context.Context) ([]*models.Organization, error)
	Create(ctx context.Context, org *models.Organization) error
}

func member(name, email string, role types.Role, verified, active bool, lastActive string) models.Membership {
	return models.Membership{
		ID:            uuid.NewString(),
		Name:          name,
		Email:         email,
		Role:          role,
		EmailVerified: verified,
		IsActive:      active,
		LastActive:    lastActive,
	}
}

// Organizations builds the development data set relative to now.
func Organizations(now time.Time) []*models.Organization {
	day := 24 * time.Hour
	hours := models.WorkingHours{
		CheckIn:         "09:00",
		CheckOut:        "17:00",
		HalfDayCheckOut: "13:00",
		WeeklyOffDay:    "Saturday",
		Timezone:        "Asia/Kathmandu",
	}

	// ============================================
	// 1. HIMAL TRADERS - healthy, fully staffed
	// ============================================
	himal := &models.Organization{
		ID:            uuid.NewString(),
		Name:          "Himal Traders",
		Address:       "New Baneshwor, Kathmandu",
		Phone:         "9841000000",
		TaxID:         "601234567",
		Location:      models.Location{Latitude: 27.6915, Longitude: 85.3420},
		Status:        types.OrgActive,
		EmailVerified: true,
		Subscription: models.Subscription{
			Expiry: now.Add(120 * day),
			Type:   types.Plan12Months,
		},
		WorkingHours: hours,
		CreatedDate:  now.AddDate(-1, 0, 0),
		Members: []models.Membership{
			member("Asha Gurung", "asha@himaltraders.com.np", types.RoleOwner, true, true, "2 hours ago"),
			member("Raj Shrestha", "raj@himaltraders.com.np", types.RoleAdmin, true, true, "Yesterday"),
			member("Sita Rai", "sita@himaltraders.com.np", types.RoleManager, true, true, "3 days ago"),
			member("Bikash Tamang", "bikash@himaltraders.com.np", types.RoleSalesRep, false, false, "Never"),
		},
	}

	// ============================================
	// 2. POKHARA FOODS - expiring within the reminder window
	// ============================================
	pokhara := &models.Organization{
		ID:            uuid.NewString(),
		Name:          "Pokhara Foods",
		Address:       "Lakeside, Pokhara",
		Phone:         "9856000000",
		TaxID:         "302145678",
		Location:      models.Location{Latitude: 28.2096, Longitude: 83.9856},
		Status:        types.OrgActive,
		EmailVerified: true,
		Subscription: models.Subscription{
			Expiry: now.Add(5 * day),
			Type:   types.Plan6Months,
		},
		WorkingHours: hours,
		CreatedDate:  now.AddDate(0, -6, 0),
		Members: []models.Membership{
			member("Maya Thapa", "maya@pokharafoods.com.np", types.RoleOwner, true, true, "Today"),
			member("Nabin KC", "nabin@pokharafoods.com.np", types.RoleSalesRep, true, true, "Today"),
		},
	}

	// ============================================
	// 3. TERAI AGRO - lapsed and deactivated
	// ============================================
	deactivated := now.Add(-10 * day)
	terai := &models.Organization{
		ID:       uuid.NewString(),
		Name:     "Terai Agro",
		Address:  "Traffic Chowk, Butwal",
		Phone:    "9847000000",
		TaxID:    "405678123",
		Location: models.Location{Latitude: 27.7006, Longitude: 83.4484},
		Status:   types.OrgInactive,
		Deactivation: &models.Deactivation{
			Reason: "Subscription not renewed",
			Date:   deactivated,
		},
		Subscription: models.Subscription{
			Expiry: now.Add(-20 * day),
			Type:   types.Plan6Months,
		},
		WorkingHours: hours,
		CreatedDate:  now.AddDate(-2, 0, 0),
		Members: []models.Membership{
			member("Hari Chaudhary", "hari@teraiagro.com.np", types.RoleOwner, true, true, "Last month"),
		},
	}

	return []*models.Organization{himal, pokhara, terai}
}

// SeedData loads the development organizations into an empty store.
func SeedData(ctx context.Context, store Store, log *zap.Logger) error {
	existing, err := store.ListOrganizations(ctx)
	if err != nil {
		return fmt.Errorf("list organizations: %w", err)
	}
	if len(existing) > 0 {
		log.Info("data already exists, skipping seed", zap.Int("organizations", len(existing)))
		return nil
	}

	for _, org := range Organizations(time.Now().UTC()) {
		if err := store.Create(ctx, org); err != nil {
			return fmt.Errorf("create %s: %w", org.Name, err)
		}
		log.Info("seeded organization",
			zap.String("id", org.ID),
			zap.String("name", org.Name),
			zap.Int("members", len(org.Members)))
	}
	return nil
}
