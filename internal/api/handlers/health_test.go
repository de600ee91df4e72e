package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// mockChecker — мок ReadinessChecker.
type mockChecker struct {
	status  string
	message string
}

func (m *mockChecker) CheckReady() (status, message string) {
	return m.status, m.message
}

// TestHealthLive проверяет liveness probe.
func TestHealthLive(t *testing.T) {
	h := NewHealthHandler(nil)
	rec := httptest.NewRecorder()
	h.HealthLive(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d", rec.Code)
	}
	var resp healthLiveResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" || resp.Service != "mediagate" {
		t.Errorf("ответ = %+v", resp)
	}
}

// TestHealthReady проверяет итоговый статус по набору зависимостей.
func TestHealthReady(t *testing.T) {
	tests := []struct {
		name       string
		scanner    ReadinessChecker
		pg         ReadinessChecker
		wantStatus string
		wantCode   int
	}{
		{"сканер ok", &mockChecker{status: "ok"}, nil, "ok", http.StatusOK},
		{"сканер не инициализирован", nil, nil, "fail", http.StatusServiceUnavailable},
		{"сканер ещё не проверен", &mockChecker{status: "degraded"}, nil, "degraded", http.StatusOK},
		{"postgresql fail", &mockChecker{status: "ok"}, &mockChecker{status: "fail", message: "нет соединения"}, "fail", http.StatusServiceUnavailable},
		{"оба ok", &mockChecker{status: "ok"}, &mockChecker{status: "ok"}, "ok", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.scanner)
			if tt.pg != nil {
				h.WithChecker("postgresql", tt.pg)
			}
			rec := httptest.NewRecorder()
			h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("код = %d, ожидался %d", rec.Code, tt.wantCode)
			}
			var resp healthReadyResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %s, ожидался %s", resp.Status, tt.wantStatus)
			}
			if _, ok := resp.Checks["content_scanner"]; !ok {
				t.Error("нет проверки content_scanner")
			}
			if _, ok := resp.Checks["postgresql"]; ok != (tt.pg != nil) {
				t.Errorf("наличие проверки postgresql = %v", ok)
			}
		})
	}
}

// TestOverallStatus проверяет свёртку статусов.
func TestOverallStatus(t *testing.T) {
	tests := []struct {
		in   []string
		want string
	}{
		{nil, "ok"},
		{[]string{"ok", "ok"}, "ok"},
		{[]string{"ok", "degraded"}, "degraded"},
		{[]string{"degraded", "fail"}, "fail"},
	}
	for _, tt := range tests {
		if got := overallStatus(tt.in...); got != tt.want {
			t.Errorf("overallStatus(%v) = %s, ожидался %s", tt.in, got, tt.want)
		}
	}
}
