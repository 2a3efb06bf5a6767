package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"gorm.io/gorm"

	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/auth"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/client"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/config"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/database"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/handler"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/logger"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/middleware"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/repository"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/server"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/service"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/storage"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/validation"
	ws "github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/websocket"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Server.Env, cfg.Server.LogLevel)

	db, err := database.Connect(cfg.Database, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.WithError(err).Warn("Redis not available, async generation and rate limits are degraded")
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(worker.RedisOpt(cfg.Redis))
	defer asynqClient.Close()
	inspector := asynq.NewInspector(worker.RedisOpt(cfg.Redis))
	defer inspector.Close()

	// Initialize WebSocket hub
	hub := ws.NewHub(log)
	go hub.Run()
	defer hub.Stop()

	sunoClient := client.NewSunoClient(&cfg.Suno, log)

	files, err := newStorage(cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize storage")
	}

	// Initialize services
	records := repository.NewRecordRepository(db)
	users := repository.NewUserRepository(db)

	generationService := service.NewGenerationService(records, users, sunoClient, files,
		service.RetryPolicyFromConfig(cfg.Suno), log)
	generationService.SetQueue(
		service.NewAsynqQueue(asynqClient, inspector, cfg.Worker.QueueCapacity),
		service.SyncPolicyFromConfig(cfg.Suno),
	)
	generationService.SetNotifier(hub)
	userService := service.NewUserService(users)

	// Initialize handlers
	validate := validation.New()
	authenticator := newAuthenticator(cfg, log)
	defer authenticator.Close()

	deps := server.Deps{
		Config:      cfg,
		Log:         log,
		Music:       handler.NewMusicHandler(generationService, validate),
		Users:       handler.NewUserHandler(userService, generationService, validate),
		Storage:     handler.NewStorageHandler(files),
		Auth:        handler.NewAuthHandler(authenticator),
		RateLimiter: middleware.NewRateLimiter(redisClient),
		Hub:         hub,
		Health:      healthCheck(cfg, db, redisClient, sunoClient),
	}

	switch {
	case cfg.Auth.Disabled:
		log.Warn("Authentication disabled, /api is open")
	case cfg.Gateway.Enabled:
		// Behind Traefik: auth is handled by ForwardAuth, read X-User-* headers
		log.Info("Gateway mode enabled, using header-based auth")
		deps.APIAuth = middleware.GatewayAuthMiddleware()
	default:
		deps.APIAuth = middleware.Authenticate(authenticator)
	}

	app := server.NewApp(deps)

	// Start Asynq worker server
	workerServer := worker.NewServer(cfg, log)
	mux := worker.NewServeMux(
		worker.NewGenerationWorker(generationService, log),
		worker.NewSyncWorker(generationService, redislock.New(redisClient), log),
	)
	if err := workerServer.Start(mux); err != nil {
		log.WithError(err).Error("Asynq worker server not started")
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.WithError(err).Error("Server shutdown error")
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.WithField("addr", addr).Info("Server starting")
	if err := app.Listen(addr); err != nil {
		log.WithError(err).Error("Server error")
	}

	workerServer.Shutdown()
}

func newStorage(cfg *config.Config) (storage.Storage, error) {
	policy := storage.NewPolicy(cfg.Storage)

	if cfg.Storage.Backend == "r2" {
		r2Client, err := client.NewR2Client(&cfg.R2)
		if err != nil {
			return nil, err
		}
		return storage.NewObjectStorage(r2Client, cfg.Storage.KeyPrefix, policy).
			WithPublicURL(r2Client.PublicURL()), nil
	}

	return storage.NewLocalStorage(afero.NewOsFs(), cfg.Storage.Location, cfg.Storage.TempDir, policy)
}

// newAuthenticator prefers Zitadel JWKS and falls back to legacy HMAC tokens
func newAuthenticator(cfg *config.Config, log *logrus.Logger) *auth.Authenticator {
	var verifier auth.TokenVerifier
	if auth.Issuer(&cfg.Zitadel) != "" {
		jwksVerifier, err := auth.NewJWKSVerifier(&cfg.Zitadel)
		if err != nil {
			log.WithError(err).Warn("JWKS verifier not initialized")
		} else {
			verifier = jwksVerifier
		}
	}
	return auth.NewAuthenticator(verifier, cfg.JWT.Secret)
}

func healthCheck(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, suno *client.SunoClient) func() fiber.Map {
	return func() fiber.Map {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		dbOK := false
		if sqlDB, err := db.DB(); err == nil {
			dbOK = sqlDB.PingContext(ctx) == nil
		}

		return fiber.Map{
			"database": dbOK,
			"redis":    redisClient.Ping(ctx).Err() == nil,
			"suno":     suno.IsConfigured(),
			"storage":  cfg.Storage.Backend,
			"auth":     !cfg.Auth.Disabled,
		}
	}
}
