package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// allMGEnvVars — все переменные окружения, читаемые Load.
var allMGEnvVars = []string{
	"MG_PORT", "MG_LOG_LEVEL", "MG_LOG_FORMAT",
	"MG_HTTP_READ_TIMEOUT", "MG_HTTP_WRITE_TIMEOUT", "MG_HTTP_IDLE_TIMEOUT", "MG_SHUTDOWN_TIMEOUT",
	"MG_SCANNER_URL", "MG_SCANNER_CA_CERT_PATH", "MG_SCANNER_TIMEOUT", "MG_SCANNER_ACCESS_TOKEN",
	"MG_SCAN_CACHE_SIZE", "MG_SCAN_CACHE_TTL",
	"MG_HOMESERVER_URL", "MG_HOMESERVER_ACCESS_TOKEN", "MG_HOMESERVER_TIMEOUT",
	"MG_RENDER_WAIT_TIMEOUT", "MG_FEATURES_FILE", "MG_DB_DSN",
	"MG_JWKS_URL", "MG_JWKS_REFRESH_INTERVAL", "MG_JWKS_CLIENT_TIMEOUT", "MG_JWT_LEEWAY",
	"MG_DEPHEALTH_GROUP", "MG_DEPHEALTH_CHECK_INTERVAL", "DEPHEALTH_ISENTRY",
}

// setEnvVars очищает все MG_* переменные и устанавливает переданные.
// Исходные значения восстанавливаются автоматически (t.Setenv).
func setEnvVars(t *testing.T, vars map[string]string) {
	t.Helper()
	for _, k := range allMGEnvVars {
		t.Setenv(k, "")
	}
	for k, v := range vars {
		t.Setenv(k, v)
	}
}

// TestLoad_Defaults проверяет значения по умолчанию.
func TestLoad_Defaults(t *testing.T) {
	setEnvVars(t, nil)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() неожиданная ошибка: %v", err)
	}

	if cfg.Port != 8040 {
		t.Errorf("Port = %d, ожидалось 8040", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, ожидалось info", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, ожидалось json", cfg.LogFormat)
	}
	if cfg.ScannerTimeout != 30*time.Second {
		t.Errorf("ScannerTimeout = %v, ожидалось 30s", cfg.ScannerTimeout)
	}
	if cfg.ScanCacheSize != 1000 || cfg.ScanCacheTTL != 10*time.Minute {
		t.Errorf("кэш = %d/%v, ожидалось 1000/10m", cfg.ScanCacheSize, cfg.ScanCacheTTL)
	}
	if cfg.RenderWaitTimeout != 10*time.Second {
		t.Errorf("RenderWaitTimeout = %v, ожидалось 10s", cfg.RenderWaitTimeout)
	}
	if !cfg.Features.IsSpaceDisplayEnabled || cfg.Features.ShowEmailPhoneDiscoverySettings {
		t.Errorf("Features = %+v, ожидались значения по умолчанию", cfg.Features)
	}
	if cfg.AuditEnabled() || cfg.AuthEnabled() {
		t.Error("журнал и аутентификация по умолчанию должны быть выключены")
	}
	if err := cfg.RequireScanner(); err == nil {
		t.Error("RequireScanner: ожидалась ошибка без MG_SCANNER_URL")
	}
	if err := cfg.RequireHomeserver(); err == nil {
		t.Error("RequireHomeserver: ожидалась ошибка без MG_HOMESERVER_URL")
	}
}

// TestLoad_Custom проверяет чтение заданных значений.
func TestLoad_Custom(t *testing.T) {
	featuresPath := filepath.Join(t.TempDir(), "features.toml")
	if err := os.WriteFile(featuresPath, []byte("is_space_display_enabled = false\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	setEnvVars(t, map[string]string{
		"MG_PORT":                    "9000",
		"MG_LOG_LEVEL":               "debug",
		"MG_LOG_FORMAT":              "text",
		"MG_SCANNER_URL":             "https://scanner.example.org/",
		"MG_SCANNER_TIMEOUT":         "5s",
		"MG_HOMESERVER_URL":          "https://matrix.example.org",
		"MG_HOMESERVER_ACCESS_TOKEN": "syt_token",
		"MG_FEATURES_FILE":           featuresPath,
		"MG_DB_DSN":                  "postgres://u:p@localhost:5432/mg",
		"MG_JWKS_URL":                "https://idp.example.org/jwks",
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() неожиданная ошибка: %v", err)
	}

	if cfg.Port != 9000 {
		t.Errorf("Port = %d, ожидалось 9000", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelDebug || cfg.LogFormat != "text" {
		t.Errorf("логирование = %v/%q", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.ScannerURL != "https://scanner.example.org" {
		t.Errorf("ScannerURL = %q, ожидался URL без trailing slash", cfg.ScannerURL)
	}
	if cfg.ScannerTimeout != 5*time.Second {
		t.Errorf("ScannerTimeout = %v", cfg.ScannerTimeout)
	}
	if cfg.Features.IsSpaceDisplayEnabled {
		t.Error("Features.IsSpaceDisplayEnabled: ожидалось false из файла")
	}
	if err := cfg.RequireScanner(); err != nil {
		t.Errorf("RequireScanner: %v", err)
	}
	if err := cfg.RequireHomeserver(); err != nil {
		t.Errorf("RequireHomeserver: %v", err)
	}
	if !cfg.AuditEnabled() || !cfg.AuthEnabled() {
		t.Error("журнал и аутентификация должны быть включены")
	}
}

// TestLoad_Invalid проверяет ошибки валидации.
func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
	}{
		{"нечисловой порт", map[string]string{"MG_PORT": "abc"}},
		{"порт вне диапазона", map[string]string{"MG_PORT": "70000"}},
		{"неверный уровень", map[string]string{"MG_LOG_LEVEL": "verbose"}},
		{"неверный формат", map[string]string{"MG_LOG_FORMAT": "xml"}},
		{"неверная схема сканера", map[string]string{"MG_SCANNER_URL": "ftp://scanner"}},
		{"нулевой таймаут сканера", map[string]string{"MG_SCANNER_TIMEOUT": "0s"}},
		{"неверная длительность", map[string]string{"MG_SCAN_CACHE_TTL": "10"}},
		{"нулевой размер кэша", map[string]string{"MG_SCAN_CACHE_SIZE": "0"}},
		{"несуществующий файл флагов", map[string]string{"MG_FEATURES_FILE": "/nonexistent/features.toml"}},
		{"неверный DEPHEALTH_ISENTRY", map[string]string{"DEPHEALTH_ISENTRY": "maybe"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnvVars(t, tt.vars)
			if _, err := Load(); err == nil {
				t.Error("ожидалась ошибка")
			}
		})
	}
}
