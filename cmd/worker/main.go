package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/medassist/booking-api/internal/config"
	"github.com/medassist/booking-api/internal/email"
	"github.com/medassist/booking-api/internal/handler/health"
	"github.com/medassist/booking-api/internal/observability"
	"github.com/medassist/booking-api/internal/repository/postgres"
	notificationService "github.com/medassist/booking-api/internal/service/notification"
	"github.com/medassist/booking-api/internal/service/reminder"
	internalworker "github.com/medassist/booking-api/internal/worker"
	"github.com/medassist/booking-api/pkg/clock"
	"github.com/medassist/booking-api/pkg/logger"
	"github.com/medassist/booking-api/pkg/messaging"
	"github.com/medassist/booking-api/pkg/messaging/redis"
	"github.com/medassist/booking-api/pkg/metrics"
	"github.com/medassist/booking-api/pkg/worker"
)

var version = "dev"

// opsServer exposes health and metrics for the worker process.
func opsServer(port int, db health.Pinger, registry *prometheus.Registry) *http.Server {
	engine := gin.New()
	engine.Use(gin.Recovery())
	health.NewHandler(db).RegisterRoutes(engine.Group(""))
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func main() {
	// Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		Console:    cfg.Log.Pretty,
	}).WithFields(map[string]interface{}{"service": "worker"})
	log.Logger = *appLogger.Zerolog()
	zerolog.SetGlobalLevel(logger.ParseLevel(cfg.Log.Level))
	gin.SetMode(gin.ReleaseMode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTEL, "worker", version)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up tracing")
	}

	// Initialize database
	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	var broker messaging.Broker
	if cfg.Redis.Enabled {
		broker, err = redis.NewRedisBroker(cfg.Redis.ToBrokerConfig(), appLogger.Zerolog())
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create Redis broker")
		}
		defer broker.Close()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(registry, "medassist")

	// Initialize repositories
	base := postgres.NewBaseRepository(db)
	appointmentRepo := postgres.NewAppointmentRepository(base)
	reminderRepo := postgres.NewReminderRepository(base)
	outboxRepo := postgres.NewOutboxRepository(base)
	userRepo := postgres.NewUserRepository(base)
	notificationRepo := postgres.NewNotificationRepository(base)

	clk := clock.New()

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	}, appLogger)
	notifier := notificationService.NewService(userRepo, notificationRepo, mailer, broker, clk, appLogger, m)

	scheduler := reminder.NewScheduler(appointmentRepo, reminderRepo, base, notifier, reminder.Config{
		Window:                cfg.Reminders.Window,
		PostConfirmationDelay: cfg.Reminders.PostConfirmationDelay,
		PostConfirmationSpan:  cfg.Reminders.PostConfirmationSpan,
		BatchSize:             cfg.Reminders.BatchSize,
		MaxAttempts:           cfg.Reminders.MaxAttempts,
		RetryBackoff:          cfg.Reminders.RetryBackoff,
		Location:              cfg.Location(),
	}, clk, appLogger, m)

	var jobs []internalworker.Job
	if cfg.Reminders.SweepEnabled {
		jobs = append(jobs, internalworker.Job{
			Name:       "reminder_sweep",
			Interval:   cfg.Reminders.Interval,
			Run:        scheduler.Sweep,
			RunOnStart: true,
		})
	}
	if cfg.Reminders.QueueEnabled {
		jobs = append(jobs, internalworker.Job{
			Name:     "reminder_queue",
			Interval: cfg.Reminders.Interval,
			Run: func(ctx context.Context) error {
				_, err := scheduler.ProcessDue(ctx)
				return err
			},
			RunOnStart: true,
		})
	}
	if cfg.Outbox.Enabled && broker != nil {
		processor := worker.NewOutboxProcessor(outboxRepo, base, broker, cfg.Outbox.ToWorkerConfig(), clk, appLogger, m)
		cleanup := worker.NewOutboxCleanupWorker(outboxRepo, cfg.Outbox.Retention, cfg.Outbox.CleanupInterval, clk, appLogger)
		jobs = append(jobs,
			internalworker.Job{Name: "outbox_relay", Interval: processor.Interval(), Run: processor.ProcessEvents},
			internalworker.Job{Name: "outbox_cleanup", Interval: cleanup.Interval(), Run: cleanup.Cleanup},
		)
	} else if cfg.Outbox.Enabled {
		log.Warn().Msg("Outbox relay disabled because redis is disabled")
	}

	srv := opsServer(cfg.Server.WorkerMetricsPort, db, registry)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Ops server failed")
			cancel()
		}
	}()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("Shutting down...")
		cancel()
	}()

	log.Info().Int("jobs", len(jobs)).Str("version", version).Msg("Worker started")
	internalworker.NewRunner(appLogger, jobs...).Start(ctx)

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Ops server forced to shutdown")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to flush traces")
	}
	log.Info().Msg("Worker exited")
}
