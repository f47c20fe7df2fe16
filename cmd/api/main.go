// main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Marga-Ghale/ora-admin-console/internal/api/handlers"
	"github.com/Marga-Ghale/ora-admin-console/internal/api/middleware"
	"github.com/Marga-Ghale/ora-admin-console/internal/config"
	"github.com/Marga-Ghale/ora-admin-console/internal/cron"
	"github.com/Marga-Ghale/ora-admin-console/internal/db"
	"github.com/Marga-Ghale/ora-admin-console/internal/directory"
	"github.com/Marga-Ghale/ora-admin-console/internal/email"
	"github.com/Marga-Ghale/ora-admin-console/internal/lifecycle"
	"github.com/Marga-Ghale/ora-admin-console/internal/logger"
	"github.com/Marga-Ghale/ora-admin-console/internal/models"
	"github.com/Marga-Ghale/ora-admin-console/internal/repository"
	"github.com/Marga-Ghale/ora-admin-console/internal/seed"
	"github.com/Marga-Ghale/ora-admin-console/internal/service"
	"github.com/Marga-Ghale/ora-admin-console/internal/socket"
	"github.com/Marga-Ghale/ora-admin-console/internal/subscription"
	"github.com/Marga-Ghale/ora-admin-console/internal/types"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// ============================================
	// Load environment variables
	// ============================================
	envErr := godotenv.Load()

	// ============================================
	// Load configuration
	// ============================================
	cfg := config.Load()

	log := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		ServiceName: "ora-admin-console",
		Development: !cfg.IsProduction(),
	})
	defer func() { _ = log.Sync() }()

	if envErr != nil {
		log.Info("no .env file found, using environment variables")
	}

	// ============================================
	// Set Gin mode
	// ============================================
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	// ============================================
	// Initialize Redis (optional)
	// ============================================
	var redisDB *db.RedisDB
	if cfg.RedisURL != "" {
		var err error
		redisDB, err = db.NewRedisDB(ctx, cfg.RedisURL, log)
		if err != nil {
			log.Warn("failed to connect to Redis, continuing without cache", zap.Error(err))
			redisDB = nil
		} else {
			defer redisDB.Close()
			log.Info("redis cache enabled")
		}
	}

	// ============================================
	// Initialize Directory
	// ============================================
	var (
		pg       *db.PostgresDB
		dir      directory.Service
		expiring service.ExpiringLister
	)
	if cfg.DirectoryURL != "" {
		dir = directory.NewRemote(cfg.DirectoryURL, cfg.DirectoryToken, cfg.DirectoryTimeout)
		log.Info("using remote directory", zap.String("url", cfg.DirectoryURL))
	} else {
		// Run Database Migrations FIRST
		log.Info("running database migrations")
		if err := db.RunMigrations(cfg.DatabaseURL, "./internal/db/migrations", log); err != nil {
			log.Fatal("migration failed", zap.Error(err))
		}

		var err error
		pg, err = db.NewPostgresDB(ctx, cfg.DatabaseURL, db.PoolConfig{}, log)
		if err != nil {
			log.Fatal("failed to connect to PostgreSQL", zap.Error(err))
		}
		defer pg.Close()

		repos := repository.NewRepositories(pg.Pool)
		dir = repos.OrganizationRepo
		expiring = repos.OrganizationRepo

		// Seed Data (for development)
		if !cfg.IsProduction() {
			if err := seed.SeedData(ctx, repos.OrganizationRepo, log.Named("seed")); err != nil {
				log.Error("seeding failed", zap.Error(err))
			}
		}
	}

	dir = directory.NewRetrying(dir, cfg.DirectoryRetryMax, log)
	if redisDB != nil {
		dir = directory.NewSessionRevoking(dir, redisDB, log)
		dir = directory.NewCached(dir, redisDB, cfg.CacheTTL, log)
	}

	// ============================================
	// Initialize Email Service
	// ============================================
	emailSvc := email.NewService(&email.Config{
		Host:        cfg.SMTPHost,
		Port:        cfg.SMTPPort,
		User:        cfg.SMTPUser,
		Password:    cfg.SMTPPassword,
		From:        cfg.SMTPFrom,
		FromName:    cfg.SMTPFromName,
		UseTLS:      cfg.SMTPUseTLS,
		FrontendURL: cfg.FrontendURL,
	}, log)
	emailQueue := emailSvc.StartQueue(2)
	defer emailQueue.Stop()
	if !emailSvc.Enabled() {
		log.Warn("email not configured (SMTP_HOST not set)")
	}

	// ============================================
	// Initialize WebSocket Hub
	// ============================================
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	hub := socket.NewHub(log)
	go hub.Run(hubCtx)
	broadcaster := socket.NewBroadcaster(hub)

	// ============================================
	// Initialize All Services
	// ============================================
	services := service.NewServices(&service.ServiceDeps{
		JWTSecret: cfg.JWTSecret,
		Directory: dir,
		Expiring:  expiring,
		Catalog: subscription.Catalog{
			types.Plan6Months:  cfg.PlanPrice6Months,
			types.Plan12Months: cfg.PlanPrice12Months,
		},
		ReminderDays: cfg.ExpiryReminderDays,
		Notifier:     emailSvc,
		Publisher:    broadcaster,
		Logger:       log,
	})

	// The socket handler authenticates with the same operator tokens
	var allowedOrigins []string
	if cfg.IsProduction() {
		allowedOrigins = []string{cfg.FrontendURL}
	}
	wsHandler := socket.NewHandler(hub, func(token string) (string, error) {
		actor, err := services.Auth.Authenticate(token)
		return actor.ID, err
	}, allowedOrigins)

	if !cfg.IsProduction() {
		logDevTokens(services.Auth, log)
	}

	// ============================================
	// Initialize Cron Scheduler
	// ============================================
	scheduler := cron.NewScheduler(services, cfg.SubscriptionScan, log)
	if err := scheduler.Start(); err != nil {
		log.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer scheduler.Stop()

	// ============================================
	// Create Gin Router
	// ============================================
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log))

	// Configure CORS
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.FrontendURL, "http://localhost:3000", "http://localhost:5173"},
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		pingCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		resp := models.HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now(),
			Services: map[string]string{
				"database":  getDatabaseStatus(pingCtx, pg),
				"cache":     getCacheStatus(pingCtx, redisDB),
				"email":     getEmailStatus(emailSvc),
				"directory": getDirectoryStatus(cfg),
			},
		}
		if resp.Services["database"] == "unreachable" {
			status = http.StatusServiceUnavailable
			resp.Status = "degraded"
		}
		c.JSON(status, resp)
	})

	// API routes
	api := r.Group("/api")
	{
		// WebSocket authenticates itself
		api.GET("/ws", wsHandler.HandleWebSocket)

		protected := api.Group("")
		protected.Use(middleware.AuthMiddleware(services.Auth, log))
		handlers.NewHandlers(services).RegisterRoutes(protected)
	}

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server
	go func() {
		log.Info("server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited")
}

// logDevTokens prints one token per operator role for local testing.
func logDevTokens(auth service.AuthService, log *zap.Logger) {
	for _, role := range []types.ActorRole{types.ActorSuperAdmin, types.ActorDeveloper, types.ActorSupport} {
		token, err := auth.IssueToken(lifecycle.ActingUser{ID: "dev-" + string(role), Role: role}, 24*time.Hour)
		if err != nil {
			log.Warn("failed to issue dev token", zap.String("role", string(role)), zap.Error(err))
			continue
		}
		log.Info("dev token", zap.String("role", string(role)), zap.String("token", token))
	}
}

func getDatabaseStatus(ctx context.Context, pg *db.PostgresDB) string {
	if pg == nil {
		return "not used"
	}
	if err := pg.Ping(ctx); err != nil {
		return "unreachable"
	}
	return "connected"
}

func getCacheStatus(ctx context.Context, redisDB *db.RedisDB) string {
	if redisDB == nil {
		return "disabled"
	}
	if err := redisDB.Ping(ctx); err != nil {
		return "unreachable"
	}
	return "connected"
}

func getEmailStatus(emailSvc *email.Service) string {
	if emailSvc.Enabled() {
		return "configured"
	}
	return "disabled"
}

func getDirectoryStatus(cfg *config.Config) string {
	if cfg.DirectoryURL != "" {
		return "remote"
	}
	return "postgres"
}
