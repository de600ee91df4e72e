package features

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

// TestDefault проверяет значения флагов по умолчанию.
func TestDefault(t *testing.T) {
	f := Default()
	if !f.IsSpaceDisplayEnabled {
		t.Error("IsSpaceDisplayEnabled: ожидалось true")
	}
	if !f.AutoAcceptTermsAndConditions {
		t.Error("AutoAcceptTermsAndConditions: ожидалось true")
	}
	if f.ShowEmailPhoneDiscoverySettings {
		t.Error("ShowEmailPhoneDiscoverySettings: ожидалось false")
	}
	if !f.ActivateClearCacheAndReloadAtVersion4 {
		t.Error("ActivateClearCacheAndReloadAtVersion4: ожидалось true")
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "features.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("запись файла: %v", err)
	}
	return path
}

// TestLoadFile_PartialOverride проверяет, что отсутствующие ключи сохраняют значения по умолчанию.
func TestLoadFile_PartialOverride(t *testing.T) {
	path := writeFile(t, "is_space_display_enabled = false\nshow_email_phone_discovery_settings = true\n")

	f, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if f.IsSpaceDisplayEnabled {
		t.Error("IsSpaceDisplayEnabled: ожидалось false из файла")
	}
	if !f.ShowEmailPhoneDiscoverySettings {
		t.Error("ShowEmailPhoneDiscoverySettings: ожидалось true из файла")
	}
	if !f.AutoAcceptTermsAndConditions || !f.ActivateClearCacheAndReloadAtVersion4 {
		t.Errorf("незаданные ключи должны сохранить значения по умолчанию: %+v", f)
	}
}

// TestLoadFile_UnknownKey проверяет отказ на неизвестном ключе.
func TestLoadFile_UnknownKey(t *testing.T) {
	path := writeFile(t, "enable_everything = true\n")
	if _, err := LoadFile(path); err == nil {
		t.Fatal("ожидалась ошибка для неизвестного ключа")
	}
}

// TestLoadFile_Missing проверяет ошибку для несуществующего файла.
func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("ожидалась ошибка для несуществующего файла")
	}
}

// TestShouldClearCache проверяет условие одноразовой очистки кэша.
func TestShouldClearCache(t *testing.T) {
	tests := []struct {
		name     string
		enabled  bool
		previous string
		current  string
		want     bool
	}{
		{"обновление 3 → 4", true, "3.9.1", "4.0.0", true},
		{"обновление с префиксом v", true, "v2.1", "v4.2.0", true},
		{"флаг выключен", false, "3.0.0", "4.0.0", false},
		{"уже на 4", true, "4.0.0", "4.1.0", false},
		{"первый запуск", true, "", "4.0.0", false},
		{"dev-сборка", true, "3.0.0", "dev", false},
		{"остаёмся на 3", true, "3.0.0", "3.5.0", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Default()
			f.ActivateClearCacheAndReloadAtVersion4 = tt.enabled
			if got := f.ShouldClearCache(tt.previous, tt.current); got != tt.want {
				t.Errorf("ShouldClearCache(%q, %q) = %v, ожидалось %v", tt.previous, tt.current, got, tt.want)
			}
		})
	}
}

// TestContext проверяет передачу флагов через контекст.
func TestContext(t *testing.T) {
	if got := FromContext(context.Background()); got != Default() {
		t.Errorf("FromContext без флагов = %+v, ожидалось Default()", got)
	}

	custom := Default()
	custom.IsSpaceDisplayEnabled = false
	ctx := WithFlags(context.Background(), custom)
	if got := FromContext(ctx); got != custom {
		t.Errorf("FromContext = %+v, ожидалось %+v", got, custom)
	}
}
