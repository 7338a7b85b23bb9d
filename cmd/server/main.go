package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/backoffice/server/internal/config"
	"github.com/backoffice/server/internal/database"
	"github.com/backoffice/server/internal/handlers"
	"github.com/backoffice/server/internal/middleware"
	"github.com/backoffice/server/internal/models"
	"github.com/backoffice/server/internal/notify"
	"github.com/backoffice/server/internal/services"
	"github.com/backoffice/server/internal/storage"
	"github.com/backoffice/server/internal/store"
	"github.com/backoffice/server/internal/twofactor"
	"github.com/backoffice/server/pkg/logger"
	"github.com/backoffice/server/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	logger.Init()

	cfg := config.Load()
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	cipher, err := utils.NewCipher(cfg.EncryptionSecret)
	if err != nil {
		log.Fatalf("encryption setup failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cache, closeCache := nonceCache(ctx, cfg.Redis)
	defer closeCache()

	sender := notify.NewDispatcher(codeRouter(cfg), 256, 4, 15*time.Second)

	var uploader storage.Uploader
	if cfg.MinIO.Endpoint != "" {
		minioClient, err := storage.NewMinIOClient(cfg.MinIO)
		if err != nil {
			log.Fatalf("minio initialization failed: %v", err)
		}
		if err := minioClient.EnsureBucket(ctx); err != nil {
			log.Fatalf("failed ensuring minio bucket: %v", err)
		}
		uploader = minioClient
	}

	bus := twofactor.NewBus()
	auditService := services.NewAuditService(db, uploader)
	auditService.Subscribe(bus)

	users := store.NewUsers(db)
	twoFactorService, err := twofactor.NewService(
		twofactor.Config{
			Issuer:      cfg.TwoFactor.Issuer,
			NonceTTL:    cfg.TwoFactor.NonceTTL,
			CodeTTL:     cfg.TwoFactor.CodeTTL,
			MaxAttempts: cfg.TwoFactor.MaxAttempts,
			MaxResends:  cfg.TwoFactor.MaxResends,
			TOTP: twofactor.TOTP{
				Period:    twofactor.DefaultPeriod,
				Digits:    cfg.TwoFactor.TOTPDigits,
				Algorithm: twofactor.Algorithm(cfg.TwoFactor.TOTPAlgorithm),
				Window:    cfg.TwoFactor.TOTPWindow,
			},
		},
		store.New(db),
		users,
		cache,
		sender,
		twofactor.WithPublisher(bus),
		twofactor.WithSecretCipher(cipher),
	)
	if err != nil {
		log.Fatalf("two-factor setup failed: %v", err)
	}
	twoFactorService.StartSweeper(ctx, cfg.TwoFactor.CleanupInterval)
	auditService.StartExporter(ctx, cfg.Audit.ExportInterval)

	authHandler := handlers.NewAuthHandler(users, twoFactorService, cfg.TwoFactor.DeviceCookie)
	twoFactorHandler := handlers.NewTwoFactorHandler(twoFactorService, users, cfg.TwoFactor.DeviceCookie)
	twoFactorHandler.SecureCookie = true
	auditHandler := handlers.NewAuditHandler(auditService)
	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New()
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS(cfg.Server.CORSOrigins))
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())
	app.Use(middleware.RequestInfo())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	if cfg.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		twofactor.MustRegisterMetrics(registry)
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	api := app.Group("/api")
	handlers.RegisterRoutes(api, authMiddleware, authHandler, twoFactorHandler, auditHandler)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":    cfg.Server.Port,
		"address": listenAddr,
		"metrics": cfg.Metrics.Enabled,
		"export":  uploader != nil,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			cancel()
			sender.Close()
			auditService.Flush()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}

// nonceCache prefers Redis so nonces survive across instances and falls
// back to process memory when no URL is configured.
func nonceCache(ctx context.Context, cfg config.RedisConfig) (twofactor.NonceCache, func()) {
	if cfg.URL == "" {
		logger.Warn("nonce_cache_in_memory", map[string]interface{}{
			"reason": "REDIS_URL not set",
		})
		return twofactor.NewMemoryNonceCache(nil), func() {}
	}

	client, err := twofactor.ConnectRedis(ctx, cfg.URL, 5, 2*time.Second)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	return twofactor.NewRedisNonceCache(client), func() { _ = client.Close() }
}

// codeRouter sends email codes through Postmark when a server token is
// configured. SMS has no provider wired and is logged.
func codeRouter(cfg *config.Config) *notify.Router {
	router := notify.NewRouter().Handle(models.FactorSMS, notify.LogSender{})

	if cfg.Mail.PostmarkServerToken == "" {
		logger.Warn("email_delivery_log_only", map[string]interface{}{
			"reason": "POSTMARK_SERVER_TOKEN not set",
		})
		return router.Handle(models.FactorEmail, notify.LogSender{})
	}

	postmarkSender, err := notify.NewPostmarkSender(notify.PostmarkConfig{
		ServerToken:  cfg.Mail.PostmarkServerToken,
		AccountToken: cfg.Mail.PostmarkAccountToken,
		From:         cfg.Mail.From,
		Issuer:       cfg.TwoFactor.Issuer,
	})
	if err != nil {
		log.Fatalf("postmark initialization failed: %v", err)
	}
	return router.Handle(models.FactorEmail, postmarkSender)
}
