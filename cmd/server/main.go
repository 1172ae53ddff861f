package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/benvon/gtd/internal/config"
	"github.com/benvon/gtd/internal/database"
	"github.com/benvon/gtd/internal/events"
	"github.com/benvon/gtd/internal/handlers"
	"github.com/benvon/gtd/internal/health"
	"github.com/benvon/gtd/internal/logger"
	"github.com/benvon/gtd/internal/services/calendar"
	"github.com/benvon/gtd/internal/services/inbox"
	"github.com/benvon/gtd/internal/services/mail"
	"github.com/benvon/gtd/internal/services/token"
	"github.com/benvon/gtd/internal/telemetry"
	"github.com/benvon/gtd/internal/workers"
)

const (
	imapTimeout  = 30 * time.Second
	dedupTTL     = 30 * 24 * time.Hour
	dedupPrefix  = "gtd:seen:"
	shutdownWait = 30 * time.Second
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.NewProductionLogger(serviceName, debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		_ = logger.Sync(zapLogger)
	}()

	zapLogger.Info("starting_server",
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.Strings("frontend_origins", cfg.FrontendOrigins()),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
		zap.Bool("async_jobs", cfg.AsyncJobsEnabled()),
		zap.Bool("calendar_configured", cfg.CalendarConfigured()),
		zap.Bool("auth_enabled", cfg.APITokenSecret != ""),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracing := false
	if cfg.OTELEnabled {
		if cfg.OTELEndpoint == "" {
			zapLogger.Warn("otel_enabled_but_endpoint_not_configured")
		} else if tp, err := telemetry.InitTracer(ctx, telemetry.Config{
			ServiceName:    serviceName,
			ServiceVersion: handlers.Version,
			Endpoint:       cfg.OTELEndpoint,
			Insecure:       cfg.OTELInsecure,
			SampleRatio:    cfg.OTELSampleRatio,
		}); err != nil {
			zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		} else {
			tracing = true
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
					zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
				}
			}()
		}
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
		}
	}()
	if err := db.Migrate(ctx); err != nil {
		zapLogger.Fatal("failed_to_migrate_database", zap.Error(err))
	}
	zapLogger.Info("connected_to_database")

	redisClient := connectRedis(ctx, cfg.RedisURL, zapLogger)
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
			}
		}()
	}

	// Changes always reach local SSE subscribers. With a broker they go through the
	// fanout exchange so changes made by the worker reach this process too.
	broadcaster := events.NewBroadcaster(zapLogger)
	defer broadcaster.Close()
	var publisher events.Publisher = broadcaster
	var brokerCheck handlers.CheckFunc
	if cfg.AsyncJobsEnabled() {
		rp, err := events.NewRabbitMQPublisher(cfg.RabbitMQURL, zapLogger)
		if err != nil {
			zapLogger.Warn("change_broker_unavailable_using_local_events", zap.Error(err))
		} else {
			defer func() {
				if err := rp.Close(); err != nil {
					zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
				}
			}()
			publisher = rp
			brokerCheck = rp.HealthCheck
			go func() {
				if err := rp.Relay(ctx, broadcaster); err != nil {
					zapLogger.Error("change_relay_stopped", zap.Error(err))
				}
			}()
			zapLogger.Info("connected_to_rabbitmq")
		}
	}

	var verifier *token.Manager
	if cfg.APITokenSecret != "" {
		if verifier, err = token.NewManager(cfg.APITokenSecret); err != nil {
			zapLogger.Fatal("invalid_api_token_secret", zap.Error(err))
		}
	}

	repos := database.NewRepositories(db)
	processor := inbox.NewProcessor(db, repos.Tasks, repos.Projects, repos.Emails, publisher, zapLogger)
	mailer := mail.NewService(repos.EmailAccounts, repos.Emails, mail.NewSMTPSender(zapLogger), publisher, zapLogger)
	syncOpts := []workers.EmailSyncerOption{workers.WithFetchLimit(cfg.EmailFetchLimit)}
	if redisClient != nil {
		syncOpts = append(syncOpts, workers.WithDeduper(workers.NewRedisDeduper(redisClient, dedupPrefix, dedupTTL)))
	}
	syncer := workers.NewEmailSyncer(repos.EmailAccounts, repos.Emails, mail.NewIMAPFetcher(imapTimeout, zapLogger), publisher, zapLogger, syncOpts...)
	calendarSvc := calendar.NewService(calendar.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		CalendarID:   cfg.CalendarID,
	}, repos.CalendarTokens, zapLogger)
	scorer := health.NewService(repos.Tasks, repos.Projects, repos.Emails, repos.WeeklyReviews, zapLogger)

	checks := map[string]handlers.CheckFunc{
		"database": db.HealthCheck,
		"queue":    brokerCheck,
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	calendarHandler := handlers.NewCalendarHandler(calendarSvc, cfg.CalendarLookaheadDays, cfg.FrontendURL, zapLogger)
	router, err := newRouter(routerDeps{
		Config:   cfg,
		Logger:   zapLogger,
		Redis:    redisClient,
		Verifier: verifier,
		Tracing:  tracing,
		Health:   handlers.NewHealthChecker(checks),
		OpenAPI:  handlers.NewOpenAPIHandler(filepath.Join("api", "openapi", "openapi.yaml")),
		Calendar: calendarHandler,
		Resources: []resource{
			{"tasks", handlers.NewTaskHandler(repos.Tasks, processor, publisher, zapLogger)},
			{"projects", handlers.NewProjectHandler(repos.Projects, publisher, zapLogger)},
			{"contexts", handlers.NewContextHandler(repos.Contexts, publisher, zapLogger)},
			{"emails", handlers.NewEmailHandler(repos.Emails, processor, mailer, syncer, publisher, zapLogger)},
			{"email-accounts", handlers.NewEmailAccountHandler(repos.EmailAccounts, publisher, zapLogger)},
			{"calendar", calendarHandler},
			{"weekly-reviews", handlers.NewWeeklyReviewHandler(repos.WeeklyReviews, publisher, zapLogger)},
			{"dashboard", handlers.NewDashboardHandler(scorer, zapLogger)},
			{"events", handlers.NewEventStreamHandler(broadcaster, zapLogger)},
		},
	})
	if err != nil {
		zapLogger.Fatal("failed_to_build_router", zap.Error(err))
	}

	srv := &http.Server{
		Addr:           ":" + cfg.ServerPort,
		Handler:        router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   requestTimeout + 5*time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		zapLogger.Info("server_starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zapLogger.Info("server_shutting_down")

	// Open event streams never finish on their own
	broadcaster.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("server_forced_to_shutdown", zap.Error(err))
	}
	zapLogger.Info("server_exited")
}

// connectRedis returns nil when Redis is unreachable; rate limiting then falls back
// to process memory and sync dedup to the database alone.
func connectRedis(ctx context.Context, url string, logger *zap.Logger) *redis.Client {
	if url == "" {
		return nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		logger.Warn("invalid_redis_url", zap.Error(err))
		return nil
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis_unavailable", zap.Error(err))
		_ = client.Close()
		return nil
	}
	logger.Info("connected_to_redis")
	return client
}
