package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/meditrack/meditrack/internal/config"
	"github.com/meditrack/meditrack/internal/domain/audit"
	"github.com/meditrack/meditrack/internal/domain/conflict"
	"github.com/meditrack/meditrack/internal/domain/emergency"
	"github.com/meditrack/meditrack/internal/domain/guard"
	"github.com/meditrack/meditrack/internal/domain/interaction"
	"github.com/meditrack/meditrack/internal/domain/medication"
	"github.com/meditrack/meditrack/internal/domain/timing"
	"github.com/meditrack/meditrack/internal/platform/auth"
	"github.com/meditrack/meditrack/internal/platform/db"
	"github.com/meditrack/meditrack/internal/platform/messaging"
	"github.com/meditrack/meditrack/internal/platform/middleware"
	"github.com/meditrack/meditrack/internal/platform/notification"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "meditrack-server",
		Short: "Medication safety and scheduling conflict engine",
	}

	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the safety engine API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()

	// Repositories: Postgres when configured, in-memory otherwise.
	var (
		pool      *pgxpool.Pool
		medRepo   medication.MedicationRepository
		doseRepo  medication.DoseLogRepository
		auditRepo audit.EntryRepository
		contacts  emergency.ContactRepository
		events    emergency.EventRepository
	)
	if cfg.DatabaseURL != "" {
		pool, err = db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		logger.Info().Msg("connected to database")

		medRepo = medication.NewMedicationRepoPG(pool)
		doseRepo = medication.NewDoseLogRepoPG(pool)
		auditRepo = audit.NewEntryRepoPG(pool)
		contacts = emergency.NewContactRepoPG(pool)
		events = emergency.NewEventRepoPG(pool)
	} else {
		logger.Warn().Msg("DATABASE_URL not set; running with in-memory repositories")
		medRepo = medication.NewMemoryRepo()
		doseRepo = medication.NewMemoryDoseLogRepo()
		auditRepo = audit.NewMemoryRepo()
		contacts = emergency.NewMemoryContactRepo()
		events = emergency.NewMemoryEventRepo()
	}

	recorder := audit.NewTrailRecorder(auditRepo, logger)

	// Interaction result cache: Redis when configured, bounded
	// in-process store otherwise.
	cacheTTL := time.Duration(cfg.CacheTTLHours) * time.Hour
	var resultStore interaction.ResultStore
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer client.Close()
		resultStore = interaction.NewRedisStore(client, cacheTTL, logger)
		logger.Info().Msg("connected to redis")
	} else {
		resultStore = interaction.NewMemoryStore(cacheTTL, cfg.CacheMaxEntries)
	}

	// Event publisher: RabbitMQ when configured.
	var publisher messaging.Publisher = messaging.NopPublisher{}
	if cfg.RabbitMQURL != "" {
		amqpPub, err := messaging.NewAMQPPublisher(cfg.RabbitMQURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to rabbitmq")
		}
		defer amqpPub.Close()
		publisher = amqpPub
		logger.Info().Msg("connected to rabbitmq")
	}

	// Engine components
	minGap := time.Duration(cfg.MinGapHours * float64(time.Hour))
	validator := timing.NewValidator(minGap)
	gateway := interaction.NewStaticGateway()
	checker := interaction.NewChecker(gateway, resultStore, validator, recorder, logger)

	logSender := notification.NewLogSender(logger)
	router := notification.NewRouter(logSender, logSender)
	emergencySvc := emergency.NewService(contacts, events, router, publisher, recorder, logger).
		WithNotifyTimeout(time.Duration(cfg.NotifyTimeoutSeconds) * time.Second)

	medSvc := medication.NewService(medRepo, doseRepo)
	doseGuard := guard.New(medRepo, doseRepo, checker, emergencySvc, recorder, logger)
	resolver := conflict.NewResolver(medSvc, checker, validator, conflict.NewMemoryEditStore(), recorder, emergencySvc, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(auth.Middleware(cfg.AuthSecret))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool))
	}

	apiV1 := e.Group("/api/v1")
	medication.NewHandler(medSvc).RegisterRoutes(apiV1)
	interaction.NewHandler(checker, medRepo).RegisterRoutes(apiV1)
	emergency.NewHandler(emergencySvc, contacts, events).RegisterRoutes(apiV1)
	conflict.NewHandler(resolver).RegisterRoutes(apiV1)
	guard.NewHandler(doseGuard).RegisterRoutes(apiV1)
	audit.NewHandler(auditRepo).RegisterRoutes(apiV1)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
