package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/mwork/credits-api/internal/config"
	"github.com/mwork/credits-api/internal/domain/credit"
	"github.com/mwork/credits-api/internal/pkg/database"
	"github.com/mwork/credits-api/internal/pkg/logger"
	"github.com/mwork/credits-api/internal/pkg/storage"
)

const idleLogEvery = 1 * time.Minute

func main() {
	cfg := config.Load()
	logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env})

	log.Info().Msg("Starting statement-worker")

	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is required for statement-worker")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.NewPostgres(ctx, cfg.DatabaseURL, database.DefaultPool)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	rdb, err := database.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(rdb)

	storageCfg := cfg.Storage()
	if !storageCfg.Enabled() {
		log.Fatal().Msg("R2 credentials and bucket are required for statement-worker")
	}
	store, err := storage.NewS3Storage(ctx, storageCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage client")
	}

	repo := credit.NewRepository(db)
	svc := credit.NewService(repo, nil, nil)
	exporter := credit.NewExporter(svc, repo, store)

	// Redis pub/sub wake-up is optional; polling still runs
	wake := make(chan struct{}, 1)
	if rdb != nil {
		go subscribeWakeups(ctx, rdb, wake)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigChan
		log.Info().Msg("Shutdown signal received")
		cancel()
	}()

	run(ctx, exporter, wake, cfg.StatementPollInterval, cfg.StatementBatchSize)
	log.Info().Msg("statement-worker stopped")
}

// run exports pending statements on every tick or wake-up until ctx ends
func run(ctx context.Context, exporter *credit.Exporter, wake <-chan struct{}, interval time.Duration, batch int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	lastIdleLog := time.Time{}

	for {
		select {
		case <-ctx.Done():
			return
		case <-wake:
			// immediate pass
		case <-ticker.C:
		}

		start := time.Now()
		n, err := drain(ctx, exporter, batch)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Int("exported", n).Msg("Statement export pass failed")
			continue
		}
		if n == 0 {
			if lastIdleLog.IsZero() || time.Since(lastIdleLog) >= idleLogEvery {
				log.Info().Msg("Idle: no accounts with unexported events")
				lastIdleLog = time.Now()
			}
			continue
		}

		log.Info().
			Int("exported", n).
			Dur("took", time.Since(start)).
			Msg("Statement export pass done")
	}
}

// drain repeats export batches while they come back full
func drain(ctx context.Context, exporter *credit.Exporter, batch int) (int, error) {
	total := 0
	for {
		n, err := exporter.ExportPending(ctx, batch)
		total += n
		if err != nil || n < batch {
			return total, err
		}
	}
}

func subscribeWakeups(ctx context.Context, rdb *redis.Client, wake chan<- struct{}) {
	sub := rdb.Subscribe(ctx, credit.EventsChannel)
	defer func() { _ = sub.Close() }()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			// non-blocking wake-up
			select {
			case wake <- struct{}{}:
			default:
			}
		}
	}
}
