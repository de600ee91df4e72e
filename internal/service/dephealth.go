// dephealth.go — мониторинг зависимостей mediagate через topologymetrics SDK.
//
// Зависимости:
//   - content-scanner — HTTP checker к /_matrix/media_proxy/unstable/public_key (critical)
//   - homeserver — HTTP checker к /_matrix/client/versions (не critical, если задан)
//   - postgresql — SQL checker через pgxpool (если включён журнал проверок)
//
// Метрики app_dependency_* доступны на /metrics.
package service

import (
	"context"
	"database/sql"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // регистрация HTTP checker factory
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	scannerHealthPath    = "/_matrix/media_proxy/unstable/public_key"
	homeserverHealthPath = "/_matrix/client/versions"
)

// DephealthOptions — параметры мониторинга зависимостей.
type DephealthOptions struct {
	// ServiceID — имя вершины графа текущего приложения
	ServiceID string
	// Group — имя группы в метриках (MG_DEPHEALTH_GROUP)
	Group string
	// ScannerURL — базовый URL сканера (обязателен)
	ScannerURL string
	// HomeserverURL — базовый URL homeserver (пустая строка — не мониторится)
	HomeserverURL string
	// DB — *sql.DB из pgxpool (stdlib.OpenDBFromPool); nil — без PostgreSQL
	DB *sql.DB
	// PGConnURL — DSN PostgreSQL для лейблов метрик
	PGConnURL string
	// CheckInterval — интервал проверки (MG_DEPHEALTH_CHECK_INTERVAL)
	CheckInterval time.Duration
	// IsEntry — лейбл isentry=yes для всех зависимостей (DEPHEALTH_ISENTRY)
	IsEntry bool
}

// DephealthService — сервис мониторинга зависимостей через topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
// Метрики регистрируются в глобальном Prometheus registry.
func NewDephealthService(opts DephealthOptions, logger *slog.Logger) (*DephealthService, error) {
	return newDephealthService(opts, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным Prometheus registerer.
// Используется в тестах для изоляции метрик.
func NewDephealthServiceWithRegisterer(
	opts DephealthOptions,
	logger *slog.Logger,
	registerer prometheus.Registerer,
) (*DephealthService, error) {
	return newDephealthService(opts, logger, dephealth.WithRegisterer(registerer))
}

func newDephealthService(opts DephealthOptions, logger *slog.Logger, extraOpts ...dephealth.Option) (*DephealthService, error) {
	dhOpts := []dephealth.Option{
		dephealth.WithLogger(logger),
		dephealth.HTTP("content-scanner", httpDepOptions(opts, opts.ScannerURL, scannerHealthPath, true)...),
	}

	if opts.HomeserverURL != "" {
		dhOpts = append(dhOpts,
			dephealth.HTTP("homeserver", httpDepOptions(opts, opts.HomeserverURL, homeserverHealthPath, false)...),
		)
	}

	if opts.DB != nil {
		pgDepOpts := []dephealth.DependencyOption{
			dephealth.FromURL(opts.PGConnURL),
			dephealth.CheckInterval(opts.CheckInterval),
			dephealth.Critical(false),
		}
		if opts.IsEntry {
			pgDepOpts = append(pgDepOpts, dephealth.WithLabel("isentry", "yes"))
		}
		dhOpts = append(dhOpts,
			dephealth.AddDependency("postgresql", dephealth.TypePostgres,
				pgcheck.New(pgcheck.WithDB(opts.DB)), pgDepOpts...),
		)
	}

	dhOpts = append(dhOpts, extraOpts...)

	dh, err := dephealth.New(opts.ServiceID, opts.Group, dhOpts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// httpDepOptions собирает опции HTTP-зависимости.
func httpDepOptions(opts DephealthOptions, rawURL, healthPath string, critical bool) []dephealth.DependencyOption {
	depOpts := []dephealth.DependencyOption{
		dephealth.FromURL(rawURL),
		dephealth.WithHTTPHealthPath(healthPath),
		dephealth.CheckInterval(opts.CheckInterval),
		dephealth.Critical(critical),
	}
	if opts.IsEntry {
		depOpts = append(depOpts, dephealth.WithLabel("isentry", "yes"))
	}
	if parsed, err := url.Parse(rawURL); err == nil && parsed.Scheme == "https" {
		depOpts = append(depOpts, dephealth.WithHTTPTLSSkipVerify(false))
	}
	return depOpts
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
// Ключ — имя зависимости, значение — true если ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}

// DependencyChecker — проверка готовности по состоянию зависимости dephealth.
// Реализует интерфейс handlers.ReadinessChecker.
type DependencyChecker struct {
	name   string
	health func() map[string]bool
}

// Checker возвращает проверку готовности зависимости name.
func (ds *DephealthService) Checker(name string) *DependencyChecker {
	return &DependencyChecker{name: name, health: ds.Health}
}

// CheckReady возвращает ok, fail или degraded (результата проверки ещё нет).
func (c *DependencyChecker) CheckReady() (status string, message string) {
	healthy, found := findHealthByPrefix(c.health(), c.name)
	switch {
	case !found:
		return "degraded", "проверка ещё не выполнялась"
	case !healthy:
		return "fail", c.name + " недоступен"
	default:
		return "ok", c.name + " доступен"
	}
}

// findHealthByPrefix ищет состояние по имени зависимости.
// Ключи Health() имеют формат "dependency:host:port".
func findHealthByPrefix(health map[string]bool, name string) (healthy, found bool) {
	for key, val := range health {
		if key == name || strings.HasPrefix(key, name+":") {
			return val, true
		}
	}
	return false, false
}
