// Точка входа Vault Module — сервиса верифицируемого хранения данных.
// Загружает конфигурацию, применяет миграции и подключается к PostgreSQL,
// создаёт Redis rate limiter'ы, storage- и ledger-клиенты, сервисный слой
// и API handlers, запускает фоновую сверку якорей и topologymetrics,
// HTTP-сервер с JWT middleware и graceful shutdown.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/arturkryukov/datavault/internal/api/handlers"
	"github.com/arturkryukov/datavault/internal/api/middleware"
	"github.com/arturkryukov/datavault/internal/config"
	"github.com/arturkryukov/datavault/internal/database"
	"github.com/arturkryukov/datavault/internal/ledger"
	"github.com/arturkryukov/datavault/internal/ratelimit"
	"github.com/arturkryukov/datavault/internal/render"
	"github.com/arturkryukov/datavault/internal/repository"
	"github.com/arturkryukov/datavault/internal/server"
	"github.com/arturkryukov/datavault/internal/service"
	"github.com/arturkryukov/datavault/internal/storage"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Vault Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode).
	// Health-check PostgreSQL идёт через существующий пул соединений,
	// что позволяет обнаружить его исчерпание.
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Redis — rate limiting (fail-open при недоступности)
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()

	ingestLimiter := ratelimit.NewRedisLimiter(redisClient, cfg.IngestPerHour, time.Hour, logger)
	retrieveLimiter := ratelimit.NewRedisLimiter(redisClient, cfg.RetrievePerHour, time.Hour, logger)

	// 6. Legacy S3 fetcher (опционально — только на период миграции данных)
	var legacy storage.LegacyFetcher
	if cfg.S3Bucket != "" {
		s3Store, s3Err := storage.NewS3Store(ctx, cfg.S3Bucket, cfg.S3Region, logger)
		if s3Err != nil {
			logger.Error("Ошибка создания S3-клиента", slog.String("error", s3Err.Error()))
			os.Exit(1)
		}
		legacy = s3Store
		logger.Info("Legacy S3 fetcher включён",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
	}

	// 7. Storage-клиент (pinning + read gateway)
	blobStore, err := storage.New(
		cfg.StorageURL,
		cfg.StorageGatewayURL,
		cfg.StorageToken,
		cfg.StorageCACertPath,
		cfg.StorageTimeout,
		legacy,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка создания storage-клиента", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 8. Ledger-клиент (consensus gateway)
	ledgerClient := ledger.New(ledger.Config{
		BaseURL:        cfg.LedgerURL,
		OperatorID:     cfg.LedgerOperatorID,
		OperatorKey:    cfg.LedgerOperatorKey,
		RequestTimeout: cfg.LedgerTimeout,
		ConfirmTimeout: cfg.LedgerConfirmTimeout,
		PollInterval:   cfg.LedgerPollInterval,
	}, logger)

	// 9. Repositories
	fileRepo := repository.NewFileRepository(pool)
	profileRepo := repository.NewProfileRepository(pool)
	grantRepo := repository.NewGrantRepository(pool)
	certRepo := repository.NewCertificateRepository(pool)
	accessLogRepo := repository.NewAccessLogRepository(pool)

	// 10. Services
	cacheSvc := service.NewCacheService(cfg.CacheSize, cfg.CacheTTL)

	ingestSvc := service.NewIngestService(
		fileRepo, profileRepo,
		blobStore, ledgerClient, ingestLimiter,
		cfg.LedgerTopicID, cfg.MaxFileSize,
		logger,
	)
	retrieveSvc := service.NewRetrieveService(
		fileRepo, profileRepo, grantRepo, accessLogRepo,
		blobStore, cacheSvc, retrieveLimiter,
		logger,
	)
	certifySvc := service.NewCertifyService(
		fileRepo, profileRepo, certRepo,
		ledgerClient, cacheSvc,
		cfg.LedgerCollectionID,
		logger,
	)
	evidenceSvc := service.NewEvidenceService(
		fileRepo, profileRepo, grantRepo, certRepo, accessLogRepo,
		cfg.EvidenceLogLimit,
		logger,
	)
	grantSvc := service.NewGrantService(
		fileRepo, profileRepo, grantRepo,
		ledgerClient,
		cfg.LedgerTopicID,
		logger,
	)

	// 11. Фоновая сверка якорей ledger
	reconciler := service.NewReconciler(
		fileRepo, ledgerClient, cacheSvc,
		cfg.LedgerTopicID,
		cfg.ReconcileInterval, cfg.ReconcileMinAge,
		logger,
	)
	reconcileCtx, stopReconcile := context.WithCancel(ctx)
	go reconciler.Run(reconcileCtx)

	// 12. topologymetrics — мониторинг зависимостей
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"vault-module",
		cfg.DephealthGroup,
		pgDB,
		service.DephealthEndpoints{
			PGConnURL:  fmt.Sprintf("postgres://%s:%d/%s", cfg.DBHost, cfg.DBPort, cfg.DBName),
			StorageURL: cfg.StorageGatewayURL,
			LedgerURL:  cfg.LedgerURL,
			JWKSURL:    cfg.JWKSURL,
		},
		cfg.DephealthCheckInterval,
		cfg.DephealthIsEntry,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 13. JWT middleware + readiness checkers
	jwtAuth, err := middleware.NewJWTAuth(
		cfg.JWKSURL,
		cfg.IDPCACertPath,
		cfg.JWTIssuer,
		cfg.JWKSClientTimeout,
		cfg.JWKSRefreshInterval,
		cfg.JWTLeeway,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer jwtAuth.Close()
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.JWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
	)

	pgChecker := database.NewReadinessChecker(pool)
	idpChecker, err := middleware.NewIDPReadinessChecker(cfg.JWKSURL, cfg.IDPCACertPath, cfg.JWKSClientTimeout)
	if err != nil {
		logger.Error("Ошибка создания IdP readiness checker", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 14. Рендерер сертификатов
	certRenderer, err := render.NewCertificateRenderer(cfg.LedgerExplorerURL)
	if err != nil {
		logger.Error("Ошибка инициализации рендерера сертификатов", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 15. Handlers
	healthHandler := handlers.NewHealthHandler(pgChecker, idpChecker)
	apiHandler := handlers.NewAPIHandler(
		healthHandler,
		handlers.NewIngestHandler(ingestSvc),
		handlers.NewRetrieveHandler(retrieveSvc),
		handlers.NewCertifyHandler(certifySvc),
		handlers.NewEvidenceHandler(evidenceSvc, certRenderer),
		handlers.NewFilesHandler(evidenceSvc),
		handlers.NewGrantsHandler(grantSvc),
		logger,
	)

	// 16. Создание и запуск HTTP-сервера.
	// Health и metrics доступны без аутентификации.
	srv := server.New(cfg, logger, apiHandler,
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
		middleware.CORS(),
		server.JWTAuthWithExclusions(jwtAuth.Middleware(), "/health/", "/metrics"),
	)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 17. Graceful shutdown фоновых задач
	logger.Info("Останавливаем фоновые задачи...")

	stopReconcile()
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("Vault Module остановлен")
}
