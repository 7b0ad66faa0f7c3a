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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/medassist/booking-api/internal/config"
	"github.com/medassist/booking-api/internal/email"
	"github.com/medassist/booking-api/internal/handler/appointment"
	"github.com/medassist/booking-api/internal/handler/availability"
	"github.com/medassist/booking-api/internal/handler/health"
	promhandler "github.com/medassist/booking-api/internal/handler/prometheus"
	"github.com/medassist/booking-api/internal/middleware"
	"github.com/medassist/booking-api/internal/observability"
	"github.com/medassist/booking-api/internal/repository/postgres"
	"github.com/medassist/booking-api/internal/router"
	availabilityService "github.com/medassist/booking-api/internal/service/availability"
	bookingService "github.com/medassist/booking-api/internal/service/booking"
	notificationService "github.com/medassist/booking-api/internal/service/notification"
	"github.com/medassist/booking-api/pkg/auth"
	"github.com/medassist/booking-api/pkg/clock"
	"github.com/medassist/booking-api/pkg/logger"
	"github.com/medassist/booking-api/pkg/messaging"
	"github.com/medassist/booking-api/pkg/messaging/redis"
	"github.com/medassist/booking-api/pkg/metrics"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		Console:    cfg.Log.Pretty,
	}).WithFields(map[string]interface{}{"service": "api"})
	log.Logger = *appLogger.Zerolog()
	zerolog.SetGlobalLevel(logger.ParseLevel(cfg.Log.Level))

	ctx := context.Background()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTEL, "api", version)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up tracing")
	}

	// Initialize database
	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Fatal().Err(err).Msg("failed to apply database schema")
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(registry, "medassist")

	// Initialize repositories
	base := postgres.NewBaseRepository(db)
	availabilityRepo := postgres.NewAvailabilityRepository(base)
	appointmentRepo := postgres.NewAppointmentRepository(base)
	reminderRepo := postgres.NewReminderRepository(base)
	outboxRepo := postgres.NewOutboxRepository(base)
	userRepo := postgres.NewUserRepository(base)
	notificationRepo := postgres.NewNotificationRepository(base)

	var broker messaging.Broker
	if cfg.Redis.Enabled {
		broker, err = redis.NewRedisBroker(cfg.Redis.ToBrokerConfig(), appLogger.Zerolog())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer broker.Close()
	}

	clk := clock.New()
	loc := cfg.Location()

	// Initialize services
	mailer := email.NewService(email.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	}, appLogger)
	notifier := notificationService.NewService(userRepo, notificationRepo, mailer, broker, clk, appLogger, m)

	availabilitySvc := availabilityService.NewService(availabilityRepo, userRepo, base, availabilityService.Config{
		CacheTTL:        cfg.Cache.AvailabilityTTL,
		CleanupInterval: cfg.Cache.CleanupInterval,
		Location:        loc,
	}, clk, appLogger, m)

	bookingSvc := bookingService.NewService(
		availabilityRepo,
		appointmentRepo,
		reminderRepo,
		outboxRepo,
		base,
		notifier,
		availabilitySvc,
		bookingService.Config{
			Location:              loc,
			PostConfirmationDelay: cfg.Reminders.PostConfirmationDelay,
		},
		clk,
		appLogger,
		m,
	)

	// Initialize middleware and handlers
	tokens := auth.NewJWTService(auth.Config{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})
	authMiddleware := middleware.NewAuthMiddleware(tokens)

	routerConfig := router.RouterConfig{
		GinMode:        cfg.Server.GinMode,
		ServiceName:    cfg.OTEL.ServiceName,
		Tracing:        cfg.OTEL.Enabled,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Timeout:        middleware.TimeoutConfig{Duration: cfg.Server.RequestTimeout},
	}
	if cfg.RateLimit.Enabled {
		routerConfig.RateLimit = &middleware.RateLimiterConfig{
			Rate:      rate.Limit(cfg.RateLimit.RequestsPerSecond),
			Burst:     cfg.RateLimit.Burst,
			ClientTTL: cfg.RateLimit.ClientTTL,
		}
	}

	r := router.NewRouter(
		authMiddleware,
		appointment.NewHandler(bookingSvc),
		availability.NewHandler(availabilitySvc),
		health.NewHandler(db),
		promhandler.New(registry, "medassist"),
		routerConfig,
	)

	srv := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        r.Engine(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Str("version", version).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to flush traces")
	}

	log.Info().Msg("server exited properly")
}
