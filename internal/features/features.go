// Пакет features — флаги функций развёртывания Tchap.
//
// Flags — неизменяемая структура, создаётся один раз при старте процесса
// (значения по умолчанию или TOML-файл) и передаётся потребителям явно
// либо через context.Context. Глобального изменяемого состояния нет.
package features

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Flags — набор флагов функций.
type Flags struct {
	// IsSpaceDisplayEnabled управляет показом настроек и элементов пространств (spaces).
	// Более тонкая настройка, чем отключение создания пространств.
	IsSpaceDisplayEnabled bool `toml:"is_space_display_enabled" json:"is_space_display_enabled"`
	// AutoAcceptTermsAndConditions — условия использования принимаются автоматически.
	AutoAcceptTermsAndConditions bool `toml:"auto_accept_terms_and_conditions" json:"auto_accept_terms_and_conditions"`
	// ShowEmailPhoneDiscoverySettings — показывать ли настройки Email, телефона и Discovery.
	ShowEmailPhoneDiscoverySettings bool `toml:"show_email_phone_discovery_settings" json:"show_email_phone_discovery_settings"`
	// ActivateClearCacheAndReloadAtVersion4 — разрешает одноразовую очистку кэша
	// при переходе на версию 4.
	ActivateClearCacheAndReloadAtVersion4 bool `toml:"activate_clear_cache_and_reload_at_version4" json:"activate_clear_cache_and_reload_at_version4"`
}

// Default возвращает флаги развёртывания Tchap по умолчанию.
func Default() Flags {
	return Flags{
		IsSpaceDisplayEnabled:                 true,
		AutoAcceptTermsAndConditions:          true,
		ShowEmailPhoneDiscoverySettings:       false,
		ActivateClearCacheAndReloadAtVersion4: true,
	}
}

// LoadFile читает флаги из TOML-файла. Отсутствующие ключи сохраняют
// значения по умолчанию, неизвестные ключи — ошибка.
func LoadFile(path string) (Flags, error) {
	file, err := os.Open(path)
	if err != nil {
		return Flags{}, fmt.Errorf("открытие файла флагов: %w", err)
	}
	defer file.Close()

	flags := Default()
	if err := toml.NewDecoder(file).DisallowUnknownFields().Decode(&flags); err != nil {
		return Flags{}, fmt.Errorf("разбор файла флагов %s: %w", path, err)
	}
	return flags, nil
}

// ShouldClearCache сообщает, нужно ли выполнить одноразовую очистку кэша
// при обновлении с версии previous на current. Очистка выполняется только
// при включённом флаге и переходе с мажорной версии < 4 на >= 4.
// Пустая или нераспознанная версия очистку не запускает.
func (f Flags) ShouldClearCache(previous, current string) bool {
	if !f.ActivateClearCacheAndReloadAtVersion4 {
		return false
	}
	prevMajor, ok := majorVersion(previous)
	if !ok {
		return false
	}
	curMajor, ok := majorVersion(current)
	if !ok {
		return false
	}
	return prevMajor < 4 && curMajor >= 4
}

// majorVersion извлекает мажорную версию из строк вида v4.1.0, 3.2, 4.
func majorVersion(v string) (int, bool) {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if v == "" {
		return 0, false
	}
	head, _, _ := strings.Cut(v, ".")
	n, err := strconv.Atoi(head)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// contextKey — тип ключа контекста (избегаем коллизий).
type contextKey struct{}

// WithFlags помещает флаги в контекст.
func WithFlags(ctx context.Context, f Flags) context.Context {
	return context.WithValue(ctx, contextKey{}, f)
}

// FromContext извлекает флаги из контекста. Если флагов нет — Default().
func FromContext(ctx context.Context) Flags {
	if f, ok := ctx.Value(contextKey{}).(Flags); ok {
		return f
	}
	return Default()
}
