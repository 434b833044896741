package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/vaccination-api/internal/compliance"
	"github.com/jwalitptl/vaccination-api/internal/config"
	"github.com/jwalitptl/vaccination-api/internal/email"
	"github.com/jwalitptl/vaccination-api/internal/repository/postgres"
	"github.com/jwalitptl/vaccination-api/internal/service/audit"
	"github.com/jwalitptl/vaccination-api/internal/service/schedule"
	"github.com/jwalitptl/vaccination-api/internal/service/validation"
	"github.com/jwalitptl/vaccination-api/internal/worker"
	"github.com/jwalitptl/vaccination-api/pkg/logger"
	"github.com/jwalitptl/vaccination-api/pkg/messaging/redis"
	"github.com/jwalitptl/vaccination-api/pkg/metrics"
	outbox "github.com/jwalitptl/vaccination-api/pkg/worker"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func setupHealthCheck(port int, db pinger, gatherer prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Health check server failed")
			os.Exit(1)
		}
	}()
	return srv
}

func main() {
	// Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level: logger.ParseLevel(cfg.Log.Level),
		JSON:  cfg.Log.JSON,
	})
	log.Logger = *appLogger.Zerolog()

	schema, err := compliance.ParseSchemaVersion(cfg.Compliance.SchemaVersion)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid compliance schema version")
	}

	// Initialize database
	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(cfg.Monitoring.Namespace, registry)

	// Initialize repositories
	baseRepo := postgres.NewBaseRepository(db)
	vaccinationRepo := postgres.NewVaccinationRepository(db)
	auditRepo := postgres.NewAuditRepository(baseRepo)
	outboxRepo := postgres.NewOutboxRepository(baseRepo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	run := func(start func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start(ctx)
		}()
	}

	if cfg.Outbox.Enabled {
		broker, err := redis.NewRedisBroker(cfg.Redis.ToBrokerConfig(), appLogger.Zerolog(), m)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create Redis broker")
		}
		defer broker.Close()

		processor := outbox.NewOutboxProcessor(outboxRepo, broker, cfg.Outbox.ToWorkerConfig(), appLogger, m)
		run(processor.Start)
	}

	run(worker.NewAuditCleanupWorker(auditRepo, outboxRepo, appLogger, cfg.Audit.RetentionDays, cfg.Audit.CleanupInterval).Start)

	if cfg.Compliance.Revalidation.Enabled {
		var notifier email.Service
		if cfg.Notification.Enabled {
			notifier = email.NewSMTPService(cfg.Notification)
		}

		auditSvc := audit.NewService(auditRepo, appLogger, cfg.Outbox.Enabled)
		scheduleSvc := schedule.NewService(postgres.NewScheduleRuleRepository(db), auditSvc, cfg.Compliance.RuleCacheTTL)
		validator := compliance.NewValidator(compliance.NewEvaluator(cfg.Compliance.DueSoonDays, cfg.Compliance.LocalOrigins))
		validationSvc := validation.NewService(vaccinationRepo, scheduleSvc, validator, auditSvc, notifier, m, appLogger,
			validation.Config{
				PageSize:      cfg.Compliance.Revalidation.PageSize,
				Timeout:       cfg.Compliance.Revalidation.Timeout,
				SchemaVersion: schema,
			})
		run(worker.NewRevalidationWorker(validationSvc, cfg.Compliance.Revalidation.Interval, appLogger).Start)
	}

	// Setup health check endpoints
	healthSrv := setupHealthCheck(cfg.Server.HealthPort, vaccinationRepo, registry)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("Shutting down...")
	cancel()
	wg.Wait()

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer stop()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Health server forced to shutdown")
	}
}
