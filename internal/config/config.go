// Пакет config — загрузка и валидация конфигурации mediagate
// из переменных окружения (префикс MG_) и файла флагов функций.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bigkaa/mediagate/internal/features"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации mediagate.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера (по умолчанию 8040)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- HTTP Server Timeouts ---

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	// Таймаут graceful shutdown (по умолчанию 5s)
	ShutdownTimeout time.Duration

	// --- Content Scanner ---

	// Базовый URL сервиса проверки контента (Matrix Content Scanner)
	ScannerURL string
	// Путь к CA-сертификату сканера (пустая строка — системный пул)
	ScannerCACertPath string
	// Таймаут запросов к сканеру. Единственное место, где ограничивается
	// длительность проверки.
	ScannerTimeout time.Duration
	// Bearer-токен для сканера (опционально)
	ScannerAccessToken string
	// Максимальное количество вердиктов в кэше
	ScanCacheSize int
	// Время жизни вердикта в кэше
	ScanCacheTTL time.Duration

	// --- Homeserver ---

	// Базовый URL homeserver (client-server API)
	HomeserverURL string
	// Access token пользователя homeserver
	HomeserverAccessToken string
	// Таймаут запросов к homeserver
	HomeserverTimeout time.Duration

	// --- Render ---

	// Сколько HTTP-запрос /media/render ждёт вердикт, прежде чем вернуть
	// состояние scanning
	RenderWaitTimeout time.Duration

	// --- Флаги функций ---

	// Путь к TOML-файлу с флагами (пустая строка — значения по умолчанию)
	FeaturesFile string
	// Загруженные флаги
	Features features.Flags

	// --- PostgreSQL (журнал проверок, опционально) ---

	// DSN PostgreSQL; пустая строка — журнал выключен
	DatabaseDSN string

	// --- JWT (опционально) ---

	// URL JWKS endpoint; пустая строка — аутентификация выключена
	JWKSURL string
	// Интервал обновления JWKS
	JWKSRefreshInterval time.Duration
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration

	// --- topologymetrics ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration
	DephealthIsEntry       bool
}

// Load загружает конфигурацию из переменных окружения.
// Возвращает ошибку, если значения некорректны. Наличие URL сканера и
// homeserver проверяется отдельно (RequireScanner, RequireHomeserver),
// так как CLI-команды используют только часть зависимостей.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	cfg.Port, err = getEnvInt("MG_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("MG_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("MG_PORT: порт %d вне диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("MG_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("MG_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("MG_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("MG_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	if cfg.HTTPReadTimeout, err = getEnvDuration("MG_HTTP_READ_TIMEOUT", 30*time.Second); err != nil {
		return nil, fmt.Errorf("MG_HTTP_READ_TIMEOUT: %w", err)
	}
	// Запись включает streaming download — таймаут больше, чем у чтения
	if cfg.HTTPWriteTimeout, err = getEnvDuration("MG_HTTP_WRITE_TIMEOUT", 5*time.Minute); err != nil {
		return nil, fmt.Errorf("MG_HTTP_WRITE_TIMEOUT: %w", err)
	}
	if cfg.HTTPIdleTimeout, err = getEnvDuration("MG_HTTP_IDLE_TIMEOUT", 120*time.Second); err != nil {
		return nil, fmt.Errorf("MG_HTTP_IDLE_TIMEOUT: %w", err)
	}
	if cfg.ShutdownTimeout, err = getEnvDuration("MG_SHUTDOWN_TIMEOUT", 5*time.Second); err != nil {
		return nil, fmt.Errorf("MG_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- Content Scanner ---

	cfg.ScannerURL = strings.TrimRight(os.Getenv("MG_SCANNER_URL"), "/")
	if cfg.ScannerURL != "" {
		if err := validateHTTPURL(cfg.ScannerURL); err != nil {
			return nil, fmt.Errorf("MG_SCANNER_URL: %w", err)
		}
	}
	cfg.ScannerCACertPath = os.Getenv("MG_SCANNER_CA_CERT_PATH")
	cfg.ScannerAccessToken = os.Getenv("MG_SCANNER_ACCESS_TOKEN")

	if cfg.ScannerTimeout, err = getEnvPositiveDuration("MG_SCANNER_TIMEOUT", 30*time.Second); err != nil {
		return nil, fmt.Errorf("MG_SCANNER_TIMEOUT: %w", err)
	}
	if cfg.ScanCacheSize, err = getEnvInt("MG_SCAN_CACHE_SIZE", 1000); err != nil {
		return nil, fmt.Errorf("MG_SCAN_CACHE_SIZE: %w", err)
	}
	if cfg.ScanCacheSize < 1 {
		return nil, fmt.Errorf("MG_SCAN_CACHE_SIZE: значение должно быть > 0")
	}
	if cfg.ScanCacheTTL, err = getEnvPositiveDuration("MG_SCAN_CACHE_TTL", 10*time.Minute); err != nil {
		return nil, fmt.Errorf("MG_SCAN_CACHE_TTL: %w", err)
	}

	// --- Homeserver ---

	cfg.HomeserverURL = strings.TrimRight(os.Getenv("MG_HOMESERVER_URL"), "/")
	if cfg.HomeserverURL != "" {
		if err := validateHTTPURL(cfg.HomeserverURL); err != nil {
			return nil, fmt.Errorf("MG_HOMESERVER_URL: %w", err)
		}
	}
	cfg.HomeserverAccessToken = os.Getenv("MG_HOMESERVER_ACCESS_TOKEN")
	if cfg.HomeserverTimeout, err = getEnvPositiveDuration("MG_HOMESERVER_TIMEOUT", 15*time.Second); err != nil {
		return nil, fmt.Errorf("MG_HOMESERVER_TIMEOUT: %w", err)
	}

	// --- Render ---

	if cfg.RenderWaitTimeout, err = getEnvPositiveDuration("MG_RENDER_WAIT_TIMEOUT", 10*time.Second); err != nil {
		return nil, fmt.Errorf("MG_RENDER_WAIT_TIMEOUT: %w", err)
	}

	// --- Флаги функций ---

	cfg.FeaturesFile = os.Getenv("MG_FEATURES_FILE")
	cfg.Features = features.Default()
	if cfg.FeaturesFile != "" {
		cfg.Features, err = features.LoadFile(cfg.FeaturesFile)
		if err != nil {
			return nil, fmt.Errorf("MG_FEATURES_FILE: %w", err)
		}
	}

	// --- PostgreSQL ---

	cfg.DatabaseDSN = os.Getenv("MG_DB_DSN")

	// --- JWT ---

	cfg.JWKSURL = os.Getenv("MG_JWKS_URL")
	if cfg.JWKSRefreshInterval, err = getEnvPositiveDuration("MG_JWKS_REFRESH_INTERVAL", 15*time.Minute); err != nil {
		return nil, fmt.Errorf("MG_JWKS_REFRESH_INTERVAL: %w", err)
	}
	if cfg.JWKSClientTimeout, err = getEnvPositiveDuration("MG_JWKS_CLIENT_TIMEOUT", 10*time.Second); err != nil {
		return nil, fmt.Errorf("MG_JWKS_CLIENT_TIMEOUT: %w", err)
	}
	if cfg.JWTLeeway, err = getEnvDuration("MG_JWT_LEEWAY", 5*time.Second); err != nil {
		return nil, fmt.Errorf("MG_JWT_LEEWAY: %w", err)
	}

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("MG_DEPHEALTH_GROUP", "tchap")
	if cfg.DephealthCheckInterval, err = getEnvPositiveDuration("MG_DEPHEALTH_CHECK_INTERVAL", 15*time.Second); err != nil {
		return nil, fmt.Errorf("MG_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	if cfg.DephealthIsEntry, err = getEnvBool("DEPHEALTH_ISENTRY", false); err != nil {
		return nil, fmt.Errorf("DEPHEALTH_ISENTRY: %w", err)
	}

	return cfg, nil
}

// RequireScanner проверяет, что задан URL сканера.
func (c *Config) RequireScanner() error {
	if c.ScannerURL == "" {
		return fmt.Errorf("MG_SCANNER_URL: обязательная переменная окружения не задана")
	}
	return nil
}

// RequireHomeserver проверяет, что заданы URL и токен homeserver.
func (c *Config) RequireHomeserver() error {
	if c.HomeserverURL == "" {
		return fmt.Errorf("MG_HOMESERVER_URL: обязательная переменная окружения не задана")
	}
	if c.HomeserverAccessToken == "" {
		return fmt.Errorf("MG_HOMESERVER_ACCESS_TOKEN: обязательная переменная окружения не задана")
	}
	return nil
}

// AuditEnabled — true, если настроен PostgreSQL для журнала проверок.
func (c *Config) AuditEnabled() bool {
	return c.DatabaseDSN != ""
}

// AuthEnabled — true, если настроен JWKS для проверки JWT.
func (c *Config) AuthEnabled() bool {
	return c.JWKSURL != ""
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// getEnvPositiveDuration — как getEnvDuration, но значение должно быть > 0.
func getEnvPositiveDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	d, err := getEnvDuration(key, defaultVal)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("значение должно быть > 0")
	}
	return d, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q (допустимые: true, false, 1, 0)", val)
	}
	return b, nil
}

// validateHTTPURL проверяет, что строка — абсолютный http(s) URL.
func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("некорректный URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("некорректная схема URL %q, допустимые: http, https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("в URL %q отсутствует host", raw)
	}
	return nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
