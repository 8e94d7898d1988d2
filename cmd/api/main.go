package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/mwork/credits-api/internal/config"
	"github.com/mwork/credits-api/internal/domain/credit"
	"github.com/mwork/credits-api/internal/middleware"
	"github.com/mwork/credits-api/internal/pkg/database"
	"github.com/mwork/credits-api/internal/pkg/jwt"
	"github.com/mwork/credits-api/internal/pkg/logger"
	pkgresponse "github.com/mwork/credits-api/internal/pkg/response"
)

const version = "1.0.0"

func main() {
	cfg := config.Load()
	logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env})

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting credits API")

	ctx := context.Background()

	var db *sqlx.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = database.NewPostgres(ctx, cfg.DatabaseURL, database.DefaultPool)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer database.ClosePostgres(db)
	} else {
		log.Warn().Msg("DATABASE_URL not configured, events are kept in memory")
	}

	rdb, err := database.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(rdb)

	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)
	creditService := newCreditService(db, rdb, cfg.BalanceCacheTTL)

	r := newRouter(cfg, jwtService, creditService)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
		return
	}

	log.Info().Msg("Server exited properly")
}

// newCreditService picks the repository and, when Redis is up, the balance
// cache and change notifier.
func newCreditService(db *sqlx.DB, rdb *redis.Client, cacheTTL time.Duration) credit.Service {
	var repo credit.Repository
	if db != nil {
		repo = credit.NewRepository(db)
	} else {
		repo = credit.NewMemoryRepository()
	}

	// Interface values stay nil unless Redis is configured.
	var cache credit.BalanceCache
	var notifier credit.Notifier
	if rdb != nil {
		redisCache := credit.NewRedisCache(rdb, cacheTTL)
		cache = redisCache
		notifier = redisCache
	}

	return credit.NewService(repo, cache, notifier)
}

func newRouter(cfg *config.Config, jwtService *jwt.Service, creditService credit.Service) chi.Router {
	authMiddleware := middleware.Auth(jwtService)
	creditHandler := credit.NewHandler(creditService)

	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pkgresponse.OK(w, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			pkgresponse.OK(w, map[string]string{"message": "pong"})
		})

		r.Mount("/accounts", creditHandler.Routes(authMiddleware))
	})

	return r
}
