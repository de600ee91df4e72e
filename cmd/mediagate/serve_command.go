package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/bigkaa/mediagate/internal/api/handlers"
	"github.com/bigkaa/mediagate/internal/api/middleware"
	"github.com/bigkaa/mediagate/internal/config"
	"github.com/bigkaa/mediagate/internal/database"
	"github.com/bigkaa/mediagate/internal/repository"
	"github.com/bigkaa/mediagate/internal/scanclient"
	"github.com/bigkaa/mediagate/internal/server"
	"github.com/bigkaa/mediagate/internal/service"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Запустить HTTP API медиа-шлюза",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("загрузка конфигурации: %w", err)
			}
			if err := cfg.RequireScanner(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
}

// runServe собирает зависимости и запускает HTTP-сервер до отмены ctx.
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. Логгер
	logger := config.SetupLogger(cfg)
	logger.Info("mediagate запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("MG_DEPHEALTH_GROUP") == "" {
		logger.Warn("MG_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 2. Клиент сканера
	scanner, err := newScanClient(cfg, logger)
	if err != nil {
		return err
	}
	logger.Info("Клиент сканера создан", slog.String("url", cfg.ScannerURL))

	// 3. Журнал проверок (опционально): миграции, пул, репозиторий
	var (
		auditRepo repository.ScanAuditRepository
		pgChecker *database.ReadinessChecker
		dhOpts    = service.DephealthOptions{
			ServiceID:     "mediagate",
			Group:         cfg.DephealthGroup,
			ScannerURL:    cfg.ScannerURL,
			HomeserverURL: cfg.HomeserverURL,
			CheckInterval: cfg.DephealthCheckInterval,
			IsEntry:       cfg.DephealthIsEntry,
		}
	)
	if cfg.AuditEnabled() {
		logger.Info("Применение миграций БД...")
		if err := database.Migrate(cfg.DatabaseDSN, logger); err != nil {
			return fmt.Errorf("миграции БД: %w", err)
		}

		pool, err := database.Connect(ctx, cfg.DatabaseDSN, logger)
		if err != nil {
			return err
		}
		defer pool.Close()

		// Адаптер pgxpool → *sql.DB для topologymetrics
		pgDB := stdlib.OpenDBFromPool(pool)
		defer pgDB.Close()

		auditRepo = repository.NewScanAuditRepository(pool)
		pgChecker = database.NewReadinessChecker(pool)
		dhOpts.DB = pgDB
		dhOpts.PGConnURL = cfg.DatabaseDSN
	} else {
		logger.Info("MG_DB_DSN не задан, журнал проверок выключен")
	}

	// 4. Сервис медиа
	mediaSvc := service.NewMediaService(scanner, auditRepo, cfg.RenderWaitTimeout, logger)

	// 5. topologymetrics — мониторинг сканера, homeserver и PostgreSQL
	var scannerChecker handlers.ReadinessChecker
	dephealthSvc, err := service.NewDephealthService(dhOpts, logger)
	if err != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
	} else if err := dephealthSvc.Start(ctx); err != nil {
		logger.Warn("Ошибка запуска topologymetrics",
			slog.String("error", err.Error()),
		)
	} else {
		defer dephealthSvc.Stop()
		scannerChecker = dephealthSvc.Checker("content-scanner")
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 6. Health и API handlers
	healthHandler := handlers.NewHealthHandler(scannerChecker)
	if pgChecker != nil {
		healthHandler.WithChecker("postgresql", pgChecker)
	}
	apiHandler := handlers.NewAPIHandler(mediaSvc, logger)

	// 7. JWT middleware (если задан MG_JWKS_URL)
	var auth func(http.Handler) http.Handler
	if cfg.AuthEnabled() {
		jwtAuth, err := middleware.NewJWTAuth(middleware.JWTAuthConfig{
			JWKSURL:         cfg.JWKSURL,
			ClientTimeout:   cfg.JWKSClientTimeout,
			RefreshInterval: cfg.JWKSRefreshInterval,
			JWTLeeway:       cfg.JWTLeeway,
		}, logger)
		if err != nil {
			return fmt.Errorf("JWT middleware: %w", err)
		}
		auth = jwtAuth.Middleware()
		logger.Info("JWT middleware инициализирован", slog.String("jwks_url", cfg.JWKSURL))
	} else {
		logger.Warn("MG_JWKS_URL не задан, /api/v1 доступен без аутентификации")
	}

	// 8. HTTP-сервер: метрики → логирование → маршруты
	srv := server.New(cfg, logger, apiHandler, healthHandler, auth,
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
	)
	if err := srv.Run(ctx); err != nil {
		return err
	}

	logger.Info("mediagate остановлен")
	return nil
}

// newScanClient создаёт клиент сканера из конфигурации.
func newScanClient(cfg *config.Config, logger *slog.Logger) (*scanclient.Client, error) {
	opts := scanclient.Options{
		CACertPath: cfg.ScannerCACertPath,
		Timeout:    cfg.ScannerTimeout,
		CacheSize:  cfg.ScanCacheSize,
		CacheTTL:   cfg.ScanCacheTTL,
	}
	if cfg.ScannerAccessToken != "" {
		opts.TokenProvider = scanclient.StaticToken(cfg.ScannerAccessToken)
	}

	client, err := scanclient.New(cfg.ScannerURL, opts, logger)
	if err != nil {
		return nil, fmt.Errorf("клиент сканера: %w", err)
	}
	return client, nil
}
