package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/vaccination-api/internal/compliance"
	"github.com/jwalitptl/vaccination-api/internal/config"
	auditHandler "github.com/jwalitptl/vaccination-api/internal/handler/audit"
	"github.com/jwalitptl/vaccination-api/internal/handler/health"
	locationHandler "github.com/jwalitptl/vaccination-api/internal/handler/location"
	promhandler "github.com/jwalitptl/vaccination-api/internal/handler/prometheus"
	reportHandler "github.com/jwalitptl/vaccination-api/internal/handler/report"
	scheduleHandler "github.com/jwalitptl/vaccination-api/internal/handler/schedule"
	vaccinationHandler "github.com/jwalitptl/vaccination-api/internal/handler/vaccination"
	validationHandler "github.com/jwalitptl/vaccination-api/internal/handler/validation"
	"github.com/jwalitptl/vaccination-api/internal/middleware"
	"github.com/jwalitptl/vaccination-api/internal/repository/postgres"
	"github.com/jwalitptl/vaccination-api/internal/router"
	auditService "github.com/jwalitptl/vaccination-api/internal/service/audit"
	locationService "github.com/jwalitptl/vaccination-api/internal/service/location"
	reportService "github.com/jwalitptl/vaccination-api/internal/service/report"
	scheduleService "github.com/jwalitptl/vaccination-api/internal/service/schedule"
	vaccinationService "github.com/jwalitptl/vaccination-api/internal/service/vaccination"
	validationService "github.com/jwalitptl/vaccination-api/internal/service/validation"
	"github.com/jwalitptl/vaccination-api/pkg/auth"
	"github.com/jwalitptl/vaccination-api/pkg/logger"
	"github.com/jwalitptl/vaccination-api/pkg/metrics"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level: logger.ParseLevel(cfg.Log.Level),
		JSON:  cfg.Log.JSON,
	})
	log.Logger = *appLogger.Zerolog()

	schema, err := compliance.ParseSchemaVersion(cfg.Compliance.SchemaVersion)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid compliance schema version")
	}

	// Initialize database
	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(context.Background(), db); err != nil {
			log.Fatal().Err(err).Msg("failed to apply schema")
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(cfg.Monitoring.Namespace, registry)

	// Initialize repositories
	baseRepo := postgres.NewBaseRepository(db)
	vaccinationRepo := postgres.NewVaccinationRepository(db)
	ruleRepo := postgres.NewScheduleRuleRepository(db)
	auditRepo := postgres.NewAuditRepository(baseRepo)

	// Initialize services
	validator := compliance.NewValidator(compliance.NewEvaluator(cfg.Compliance.DueSoonDays, cfg.Compliance.LocalOrigins))
	auditSvc := auditService.NewService(auditRepo, appLogger, cfg.Outbox.Enabled)
	scheduleSvc := scheduleService.NewService(ruleRepo, auditSvc, cfg.Compliance.RuleCacheTTL)
	vaccinationSvc := vaccinationService.NewService(vaccinationRepo, scheduleSvc, validator, auditSvc, m, appLogger,
		vaccinationService.Config{Parallelism: cfg.Compliance.Parallelism, SchemaVersion: schema})
	reportSvc := reportService.NewService(vaccinationRepo, scheduleSvc)
	locationSvc := locationService.NewService(vaccinationRepo, cfg.Compliance.LocationCacheTTL, cfg.Compliance.LocationPageSize, appLogger)
	validationSvc := validationService.NewService(vaccinationRepo, scheduleSvc, validator, auditSvc, nil, m, appLogger,
		validationService.Config{
			PageSize:      cfg.Compliance.Revalidation.PageSize,
			Timeout:       cfg.Compliance.Revalidation.Timeout,
			SchemaVersion: schema,
		})

	// Initialize middleware
	var tokens auth.TokenValidator
	if cfg.JWT.Secret != "" {
		tokens = auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer)
	}
	authMiddleware := middleware.NewAuthMiddleware(tokens, cfg.JWT.Required)

	var metricsHandler *promhandler.Handler
	if cfg.Monitoring.PrometheusEnabled {
		metricsHandler = promhandler.New(registry, m)
	}

	// Setup router
	r := router.NewRouter(
		authMiddleware,
		health.NewHandler(vaccinationRepo),
		metricsHandler,
		router.RouterConfig{
			Mode:             cfg.Server.Mode,
			RateLimitEnabled: cfg.RateLimit.Enabled,
			RateLimit: middleware.RateLimiterConfig{
				RPS:   cfg.RateLimit.RequestsPerSecond,
				Burst: cfg.RateLimit.Burst,
			},
			MetricsPath: cfg.Monitoring.MetricsPath,
		},
		vaccinationHandler.NewHandler(vaccinationSvc),
		scheduleHandler.NewHandler(scheduleSvc),
		reportHandler.NewHandler(reportSvc),
		locationHandler.NewHandler(locationSvc),
		validationHandler.NewHandler(validationSvc),
		auditHandler.NewHandler(auditSvc),
	)
	r.Setup()

	// Create server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}
