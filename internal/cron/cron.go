package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/Marga-Ghale/ora-admin-console/internal/service"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const jobTimeout = 5 * time.Minute

// Scheduler handles scheduled tasks
type Scheduler struct {
	cron     *cron.Cron
	services *service.Services
	log      *zap.Logger

	scanSpec    string
	refreshSpec string
}

// NewScheduler creates a scheduler. scanSpec drives the subscription scan;
// an empty spec falls back to daily at 6 AM.
func NewScheduler(services *service.Services, scanSpec string, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	if scanSpec == "" {
		scanSpec = "0 6 * * *"
	}
	return &Scheduler{
		cron:        cron.New(),
		services:    services,
		log:         log.Named("cron"),
		scanSpec:    scanSpec,
		refreshSpec: "@every 15m",
	}
}

// Start registers the jobs and starts the scheduler. It fails on an
// invalid cron spec.
func (s *Scheduler) Start() error {
	// Expiry reminders, plus a refresh of every open organization
	if _, err := s.cron.AddFunc(s.scanSpec, func() {
		s.log.Info("running subscription scan")
		s.scanSubscriptions()
	}); err != nil {
		return fmt.Errorf("subscription scan schedule %q: %w", s.scanSpec, err)
	}

	// Keep open organizations current between scans
	if _, err := s.cron.AddFunc(s.refreshSpec, func() {
		s.refreshOrganizations()
	}); err != nil {
		return fmt.Errorf("refresh schedule %q: %w", s.refreshSpec, err)
	}

	s.cron.Start()
	s.log.Info("scheduler started", zap.String("subscription_scan", s.scanSpec))
	return nil
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) scanSubscriptions() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if _, err := s.services.Subscription.Scan(ctx); err != nil {
		s.log.Error("subscription scan failed", zap.Error(err))
	}
}

func (s *Scheduler) refreshOrganizations() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if n := s.services.Organization.RefreshLoaded(ctx); n > 0 {
		s.log.Info("organizations changed on refresh", zap.Int("changed", n))
	}
}

// ManualTrigger runs a job immediately.
func (s *Scheduler) ManualTrigger(checkType string) error {
	switch checkType {
	case "subscriptions":
		s.scanSubscriptions()
	case "refresh":
		s.refreshOrganizations()
	case "all":
		s.scanSubscriptions()
		s.refreshOrganizations()
	default:
		return fmt.Errorf("unknown job %q", checkType)
	}
	return nil
}
