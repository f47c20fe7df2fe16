package service

import (
	"errors"
	"time"

	"github.com/Marga-Ghale/ora-admin-console/internal/directory"
	"github.com/Marga-Ghale/ora-admin-console/internal/subscription"
	"go.uber.org/zap"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrUnauthorized = errors.New("unauthorized")
)

// ============================================
// Services Container
// ============================================

type Services struct {
	Auth         AuthService
	Organization OrganizationService
	Subscription SubscriptionService
}

// ServiceDeps contains all dependencies needed to create services
type ServiceDeps struct {
	JWTSecret string
	Directory directory.Service
	// Expiring is optional; without it reminders scan the full list.
	Expiring     ExpiringLister
	Catalog      subscription.Catalog
	ReminderDays int
	Notifier     Notifier
	Publisher    Publisher
	Logger       *zap.Logger
	Now          func() time.Time
}

func NewServices(deps *ServiceDeps) *Services {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if deps.Publisher == nil {
		deps.Publisher = nopPublisher{}
	}

	orgService := NewOrganizationService(deps.Directory, deps.Catalog, deps.Notifier, deps.Publisher, deps.Logger, deps.Now)

	return &Services{
		Auth:         NewAuthService(deps.JWTSecret),
		Organization: orgService,
		Subscription: NewSubscriptionService(
			deps.Directory,
			deps.Expiring,
			orgService,
			deps.Notifier,
			deps.ReminderDays,
			deps.Logger,
			deps.Now,
		),
	}
}
