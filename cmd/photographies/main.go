package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vbonduro/photographies/internal/code"
	"github.com/vbonduro/photographies/internal/config"
	"github.com/vbonduro/photographies/internal/db"
	"github.com/vbonduro/photographies/internal/logging"
	"github.com/vbonduro/photographies/internal/mediastore"
	"github.com/vbonduro/photographies/internal/mediastore/cloudinary"
	"github.com/vbonduro/photographies/internal/mediastore/local"
	"github.com/vbonduro/photographies/internal/ratelimit"
	"github.com/vbonduro/photographies/internal/service"
	"github.com/vbonduro/photographies/internal/store"
	"github.com/vbonduro/photographies/internal/web"
)

// uploadFolder is the subfolder, below the configured media root, that
// photographies are stored in.
const uploadFolder = "photographies"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer cleanup()

	if err := run(cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		cleanup()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	media, err := newMediaStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize media store: %w", err)
	}

	opts := service.Options{
		Folder:        uploadFolder,
		CodeLength:    cfg.CodeLength,
		CodeMaxLength: cfg.CodeMaxLength,
		MaxAttempts:   cfg.CodeMaxAttempts,
		Banned:        code.DefaultBanned(cfg.BannedCodes...),
	}

	var svc *service.PhotographyService
	switch cfg.DBDriver {
	case config.DBDriverPostgres:
		pool, err := db.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer pool.Close()
		logger.Info("using postgres record store")
		svc = service.NewPhotographyService(store.NewPostgresPhotographyStore(pool), media, code.RandomGenerator{}, logger, opts)
	default:
		database, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer func() {
			if err := database.Close(); err != nil {
				logger.Error("failed to close database", "error", err)
			}
		}()
		logger.Info("using sqlite record store", "path", cfg.DatabaseURL)
		svc = service.NewPhotographyService(store.NewPhotographyStore(database), media, code.RandomGenerator{}, logger, opts)
	}

	limiter := ratelimit.New(ratelimit.Config{
		Limit:         cfg.RateLimitLimit,
		Window:        cfg.RateLimitTTL,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
	})
	switch l := limiter.(type) {
	case nil:
		logger.Info("rate limiting disabled")
	case *ratelimit.RedisLimiter:
		logger.Info("using redis rate limiter", "addr", cfg.RedisAddr, "limit", cfg.RateLimitLimit, "window", cfg.RateLimitTTL)
		defer func() {
			if err := l.Close(); err != nil {
				logger.Error("failed to close redis client", "error", err)
			}
		}()
	default:
		logger.Info("using in-memory rate limiter", "limit", cfg.RateLimitLimit, "window", cfg.RateLimitTTL)
	}

	server := web.NewServer(svc, media, logger, web.Options{
		MaxUploadSizeMB: cfg.UploadMaxSizeMB,
		Limiter:         limiter,
	})
	return server.ListenAndServe(ctx, cfg.ListenAddr())
}

func newMediaStore(cfg *config.Config, logger *slog.Logger) (mediastore.MediaStore, error) {
	switch cfg.MediaBackend {
	case config.MediaBackendLocal:
		logger.Info("using local media store", "path", cfg.MediaLocalPath)
		ms, err := local.NewLocalMediaStore(cfg.MediaLocalPath, cfg.MediaPublicURL)
		if err != nil {
			return nil, err
		}
		return ms, nil
	default:
		logger.Info("using cloudinary media store", "cloud", cfg.CloudinaryName, "folder", cfg.CloudinaryFolder)
		ms, err := cloudinary.New(cloudinary.Config{
			CloudName: cfg.CloudinaryName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryFolder,
		})
		if err != nil {
			return nil, err
		}
		return ms, nil
	}
}
