package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/benvon/gtd/internal/config"
	"github.com/benvon/gtd/internal/database"
	"github.com/benvon/gtd/internal/events"
	"github.com/benvon/gtd/internal/logger"
	"github.com/benvon/gtd/internal/queue"
	"github.com/benvon/gtd/internal/scheduler"
	"github.com/benvon/gtd/internal/services/mail"
	"github.com/benvon/gtd/internal/telemetry"
	"github.com/benvon/gtd/internal/workers"
)

const (
	workerService = "gtd-worker"
	imapTimeout = 30 * time.Second
	dedupTTL    = 30 * 24 * time.Hour
	dedupPrefix = "gtd:seen:"
	// Sync jobs older than this are dropped; the next scheduled run replaces them
	jobTTL = 15 * time.Minute
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	debugMode := cfg.WorkerDebugMode || *debugFlag

	zapLogger, err := logger.NewProductionLogger(workerService, debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		_ = logger.Sync(zapLogger)
	}()

	zapLogger.Info("starting_worker",
		zap.Bool("debug_mode", debugMode),
		zap.String("email_sync_schedule", cfg.EmailSyncSchedule),
		zap.Int("email_fetch_limit", cfg.EmailFetchLimit),
		zap.Bool("async_jobs", cfg.AsyncJobsEnabled()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.OTELEnabled && cfg.OTELEndpoint != "" {
		tp, err := telemetry.InitTracer(ctx, telemetry.Config{
			ServiceName: workerService,
			Endpoint:    cfg.OTELEndpoint,
			Insecure:    cfg.OTELInsecure,
			SampleRatio: cfg.OTELSampleRatio,
		})
		if err != nil {
			zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		} else {
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

	repos := database.NewRepositories(db)

	var publisher events.Publisher = events.Nop{}
	var jobQueue *queue.RabbitMQQueue
	if cfg.AsyncJobsEnabled() {
		rp, err := events.NewRabbitMQPublisher(cfg.RabbitMQURL, zapLogger)
		if err != nil {
			zapLogger.Fatal("failed_to_connect_change_publisher", zap.Error(err))
		}
		defer func() {
			if err := rp.Close(); err != nil {
				zapLogger.Warn("failed_to_close_change_publisher", zap.Error(err))
			}
		}()
		publisher = rp

		if jobQueue, err = queue.NewRabbitMQQueue(cfg.RabbitMQURL, zapLogger); err != nil {
			zapLogger.Fatal("failed_to_connect_to_rabbitmq", zap.Error(err))
		}
		defer func() {
			if err := jobQueue.Close(); err != nil {
				zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
			}
		}()
		zapLogger.Info("connected_to_rabbitmq", zap.Int("prefetch", cfg.RabbitMQPrefetch))
	}

	opts := []workers.EmailSyncerOption{workers.WithFetchLimit(cfg.EmailFetchLimit)}
	if jobQueue != nil {
		opts = append(opts, workers.WithJobQueue(jobQueue))
	}
	if client := connectRedis(ctx, cfg.RedisURL, zapLogger); client != nil {
		defer func() {
			if err := client.Close(); err != nil {
				zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
			}
		}()
		opts = append(opts, workers.WithDeduper(workers.NewRedisDeduper(client, dedupPrefix, dedupTTL)))
	}

	syncer := workers.NewEmailSyncer(
		repos.EmailAccounts,
		repos.Emails,
		mail.NewIMAPFetcher(imapTimeout, zapLogger),
		publisher,
		zapLogger,
		opts...,
	)

	sched := scheduler.New(zapLogger)
	if err := sched.AddFunc("email_sync", cfg.EmailSyncSchedule, syncJob(syncer, jobQueue, zapLogger)); err != nil {
		zapLogger.Fatal("failed_to_schedule_email_sync", zap.Error(err))
	}
	sched.Start(ctx)

	if jobQueue != nil {
		if err := consume(ctx, jobQueue, syncer, cfg.RabbitMQPrefetch, zapLogger); err != nil {
			zapLogger.Fatal("failed_to_start_consuming_messages", zap.Error(err))
		}
	}

	zapLogger.Info("worker_started")
	<-ctx.Done()
	zapLogger.Info("shutdown_signal_received")

	sched.Stop()
	zapLogger.Info("worker_stopped")
}

// syncJob enqueues one job per account when a broker is available, otherwise syncs inline
func syncJob(syncer *workers.EmailSyncer, q *queue.RabbitMQQueue, logger *zap.Logger) scheduler.JobFunc {
	return func(ctx context.Context) error {
		if q != nil {
			queued, err := syncer.EnqueueAll(ctx, q, jobTTL)
			logger.Info("email_sync_jobs_enqueued", zap.Int("count", queued))
			return err
		}
		results, err := syncer.SyncAll(ctx)
		stored := 0
		for _, res := range results {
			stored += res.Stored
		}
		logger.Info("email_sync_completed", zap.Int("accounts", len(results)), zap.Int("stored", stored))
		return err
	}
}

func consume(ctx context.Context, q *queue.RabbitMQQueue, syncer *workers.EmailSyncer, prefetch int, logger *zap.Logger) error {
	msgChan, errChan, err := q.Consume(ctx, prefetch)
	if err != nil {
		return err
	}

	go func() {
		for msg := range msgChan {
			job := msg.Job()
			if err := syncer.ProcessJob(ctx, msg); err != nil {
				logger.Error("failed_to_process_job",
					zap.Error(err),
					zap.String("job_id", job.ID.String()),
					zap.String("job_type", string(job.Type)),
				)
			}
		}
		logger.Info("message_channel_closed")
	}()

	go func() {
		for err := range errChan {
			logger.Error("queue_error", zap.Error(err))
		}
	}()

	return nil
}

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
		logger.Warn("redis_unavailable_dedup_disabled", zap.Error(err))
		_ = client.Close()
		return nil
	}
	return client
}
