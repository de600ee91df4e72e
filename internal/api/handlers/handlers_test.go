package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/mediagate/internal/api/middleware"
	"github.com/bigkaa/mediagate/internal/domain/model"
	"github.com/bigkaa/mediagate/internal/features"
	"github.com/bigkaa/mediagate/internal/repository"
	"github.com/bigkaa/mediagate/internal/scanclient"
	"github.com/bigkaa/mediagate/internal/service"
)

// testLogger — логгер для тестов (без вывода).
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newMockScanner имитирует Matrix Content Scanner.
// Вердикт определяется префиксом mediaId: clean*, virus*, broken*, missing*.
func newMockScanner(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/_matrix/media_proxy/unstable/")
		op, target, _ := strings.Cut(rest, "/")
		_, mediaID, _ := strings.Cut(target, "/")

		switch {
		case strings.HasPrefix(mediaID, "virus"):
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"reason":"MCS_MEDIA_NOT_CLEAN","info":"***VIRUS DETECTED***"}`))
			return
		case strings.HasPrefix(mediaID, "broken"):
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"reason":"MCS_MEDIA_REQUEST_FAILED","info":"upstream failed"}`))
			return
		case strings.HasPrefix(mediaID, "missing"):
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"reason":"M_NOT_FOUND","info":"media not found"}`))
			return
		}

		switch op {
		case "scan":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"clean":true}`))
		case "download":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("PNG-" + mediaID))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// stubAuditRepo — заглушка журнала проверок.
type stubAuditRepo struct {
	records []*model.AuditRecord
}

func (s *stubAuditRepo) Record(context.Context, *model.AuditRecord) error { return nil }

func (s *stubAuditRepo) ListByMXC(_ context.Context, mxc string, _ int) ([]*model.AuditRecord, error) {
	var out []*model.AuditRecord
	for _, rec := range s.records {
		if rec.MXC == mxc {
			out = append(out, rec)
		}
	}
	return out, nil
}

// newTestRouter собирает маршруты API поверх mock-сканера.
func newTestRouter(t *testing.T, audit repository.ScanAuditRepository) (http.Handler, string) {
	t.Helper()
	srv := newMockScanner(t)
	return newRouterWithScanner(t, srv.URL, audit), srv.URL
}

// newRouterWithScanner собирает маршруты API поверх сканера scannerURL.
func newRouterWithScanner(t *testing.T, scannerURL string, audit repository.ScanAuditRepository) http.Handler {
	t.Helper()
	client, err := scanclient.New(scannerURL, scanclient.Options{Timeout: 5 * time.Second}, testLogger())
	if err != nil {
		t.Fatalf("scanclient.New: %v", err)
	}
	svc := service.NewMediaService(client, audit, 2*time.Second, testLogger())
	h := NewAPIHandler(svc, testLogger())

	r := chi.NewRouter()
	r.Use(middleware.Features(features.Default()))
	r.Post("/api/v1/media/render", h.RenderMedia)
	r.Post("/api/v1/media/urls", h.MediaURLs)
	r.Post("/api/v1/media/download", h.DownloadContent)
	r.Get("/api/v1/media/{server}/{mediaId}/download", h.DownloadMXC)
	r.Get("/api/v1/media/{server}/{mediaId}/scan", h.ScanMXC)
	r.Get("/api/v1/media/{server}/{mediaId}/audit", h.AuditMXC)
	r.Get("/api/v1/features", h.GetFeatures)
	r.Get("/api/v1/features/clear-cache", h.GetClearCache)
	return r
}

// do выполняет запрос к обработчику.
func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, reader))
	return rec
}

// errorCode извлекает code из тела ошибки.
func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("тело ошибки не JSON: %s", rec.Body.String())
	}
	return body.Error.Code
}

// TestRenderMedia проверяет решение об отображении через HTTP.
func TestRenderMedia(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantState  string
		wantBody   string
		wantKind   string
	}{
		{
			name:       "безопасное изображение с миниатюрой",
			body:       `{"msgtype":"m.image","url":"mxc://example.org/clean-img","info":{"thumbnail_url":"mxc://example.org/clean-thumb"}}`,
			wantStatus: http.StatusOK,
			wantState:  "safe",
			wantBody:   "original",
			wantKind:   "image",
		},
		{
			name:       "небезопасная миниатюра",
			body:       `{"msgtype":"m.video","url":"mxc://example.org/clean-video","info":{"thumbnail_url":"mxc://example.org/virus-thumb"}}`,
			wantStatus: http.StatusOK,
			wantState:  "unsafe",
			wantBody:   "placeholder",
			wantKind:   "video",
		},
		{
			name:       "аудио без миниатюры",
			body:       `{"msgtype":"m.audio","url":"mxc://example.org/clean-voice"}`,
			wantStatus: http.StatusOK,
			wantState:  "safe",
			wantBody:   "original",
			wantKind:   "audio",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, http.MethodPost, "/api/v1/media/render", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("статус = %d, тело: %s", rec.Code, rec.Body.String())
			}
			var view struct {
				State string `json:"state"`
				Body  string `json:"body"`
				Kind  string `json:"kind"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
				t.Fatalf("декодирование: %v", err)
			}
			if view.State != tt.wantState || view.Body != tt.wantBody || view.Kind != tt.wantKind {
				t.Errorf("view = %+v", view)
			}
		})
	}
}

// TestRenderMedia_Invalid проверяет 400 для некорректного содержимого.
func TestRenderMedia_Invalid(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	for _, body := range []string{`not json`, `{"msgtype":"m.image","url":"https://example.org/x"}`, `{}`} {
		rec := do(h, http.MethodPost, "/api/v1/media/render", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("тело %q: статус = %d, ожидался 400", body, rec.Code)
		}
		if code := errorCode(t, rec); code != "VALIDATION_ERROR" {
			t.Errorf("тело %q: code = %s", body, code)
		}
	}
}

// TestMediaURLs проверяет построение URL и null для отсутствующей миниатюры.
func TestMediaURLs(t *testing.T) {
	h, scannerURL := newTestRouter(t, nil)

	rec := do(h, http.MethodPost, "/api/v1/media/urls",
		`{"content":{"url":"mxc://example.org/clean-1"},"width":320,"height":240,"method":"crop","square":64}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, тело: %s", rec.Code, rec.Body.String())
	}

	var urls map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &urls); err != nil {
		t.Fatal(err)
	}
	if got := urls["source"]; got != scannerURL+"/_matrix/media_proxy/unstable/download/example.org/clean-1" {
		t.Errorf("source = %v", got)
	}
	if urls["thumbnail"] != nil || urls["thumbnail_sized"] != nil {
		t.Errorf("ожидались null миниатюры: %v / %v", urls["thumbnail"], urls["thumbnail_sized"])
	}
	if urls["has_thumbnail"] != false {
		t.Errorf("has_thumbnail = %v", urls["has_thumbnail"])
	}
	tos, _ := urls["thumbnail_of_source"].(string)
	if !strings.Contains(tos, "/thumbnail/example.org/clean-1?") || !strings.Contains(tos, "method=crop") {
		t.Errorf("thumbnail_of_source = %q", tos)
	}
	if sq, _ := urls["square"].(string); !strings.Contains(sq, "width=64") {
		t.Errorf("square = %q", sq)
	}
}

// TestMediaURLs_Validation проверяет отклонение некорректных параметров.
func TestMediaURLs_Validation(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	bodies := []string{
		`{"content":{"url":"mxc://example.org/a"},"method":"stretch"}`,
		`{"content":{"url":"mxc://example.org/a"},"width":-1}`,
		`{"content":{"url":""}}`,
	}
	for _, body := range bodies {
		if rec := do(h, http.MethodPost, "/api/v1/media/urls", body); rec.Code != http.StatusBadRequest {
			t.Errorf("тело %q: статус = %d, ожидался 400", body, rec.Code)
		}
	}
}

// TestDownload проверяет проксирование скачивания и отображение ошибок.
func TestDownload(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		wantStatus int
		wantCode   string
		wantBody   string
	}{
		{"MXC безопасно", http.MethodGet, "/api/v1/media/example.org/clean-1/download", "", http.StatusOK, "", "PNG-clean-1"},
		{"содержимое события", http.MethodPost, "/api/v1/media/download", `{"url":"mxc://example.org/clean-2"}`, http.StatusOK, "", "PNG-clean-2"},
		{"небезопасно", http.MethodGet, "/api/v1/media/example.org/virus-1/download", "", http.StatusForbidden, "MEDIA_NOT_CLEAN", ""},
		{"сканер недоступен", http.MethodGet, "/api/v1/media/example.org/broken-1/download", "", http.StatusBadGateway, "SCANNER_UNAVAILABLE", ""},
		{"медиа не найдено", http.MethodGet, "/api/v1/media/example.org/missing-1/download", "", http.StatusNotFound, "NOT_FOUND", ""},
		{"нет источника", http.MethodPost, "/api/v1/media/download", `{"body":"x"}`, http.StatusBadRequest, "VALIDATION_ERROR", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, tt.method, tt.target, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("статус = %d, ожидался %d, тело: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantCode != "" {
				if code := errorCode(t, rec); code != tt.wantCode {
					t.Errorf("code = %s, ожидался %s", code, tt.wantCode)
				}
				return
			}
			if rec.Body.String() != tt.wantBody {
				t.Errorf("тело = %q, ожидалось %q", rec.Body.String(), tt.wantBody)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
				t.Errorf("Content-Type = %q", ct)
			}
		})
	}
}

// TestScanMXC проверяет вердикты и ошибку сканера.
func TestScanMXC(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	tests := []struct {
		mediaID    string
		wantStatus int
		wantClean  bool
	}{
		{"clean-1", http.StatusOK, true},
		{"virus-1", http.StatusOK, false},
		{"broken-1", http.StatusBadGateway, false},
		{"missing-1", http.StatusNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.mediaID, func(t *testing.T) {
			rec := do(h, http.MethodGet, "/api/v1/media/example.org/"+tt.mediaID+"/scan", "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("статус = %d, тело: %s", rec.Code, rec.Body.String())
			}
			if rec.Code != http.StatusOK {
				return
			}
			var resp scanResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Clean != tt.wantClean || resp.MXC != "mxc://example.org/"+tt.mediaID {
				t.Errorf("ответ = %+v", resp)
			}
		})
	}
}

// TestScanMXC_Fresh проверяет кэш вердиктов и его сброс параметром fresh.
func TestScanMXC_Fresh(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"clean":true}`))
	}))
	defer srv.Close()
	h := newRouterWithScanner(t, srv.URL, nil)

	const target = "/api/v1/media/example.org/clean-1/scan"
	for range 2 {
		if rec := do(h, http.MethodGet, target, ""); rec.Code != http.StatusOK {
			t.Fatalf("статус = %d", rec.Code)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("повторная проверка: сканер вызван %d раз, ожидался 1", got)
	}

	if rec := do(h, http.MethodGet, target+"?fresh=true", ""); rec.Code != http.StatusOK {
		t.Fatalf("fresh: статус = %d", rec.Code)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("fresh=true: сканер вызван %d раз, ожидалось 2", got)
	}

	if rec := do(h, http.MethodGet, target+"?fresh=maybe", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("fresh=maybe: статус = %d, ожидался 400", rec.Code)
	}
}

// TestAuditMXC проверяет журнал проверок: выключен, включён, некорректный limit.
func TestAuditMXC(t *testing.T) {
	t.Run("журнал выключен", func(t *testing.T) {
		h, _ := newTestRouter(t, nil)
		rec := do(h, http.MethodGet, "/api/v1/media/example.org/clean-1/audit", "")
		if rec.Code != http.StatusNotFound || errorCode(t, rec) != "AUDIT_DISABLED" {
			t.Errorf("статус = %d, тело: %s", rec.Code, rec.Body.String())
		}
	})

	repo := &stubAuditRepo{records: []*model.AuditRecord{
		{ID: "1", MXC: "mxc://example.org/clean-1", Target: model.TargetSource, Clean: true},
		{ID: "2", MXC: "mxc://example.org/other", Target: model.TargetSource, Clean: true},
	}}
	h, _ := newTestRouter(t, repo)

	t.Run("записи ресурса", func(t *testing.T) {
		rec := do(h, http.MethodGet, "/api/v1/media/example.org/clean-1/audit?limit=10", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("статус = %d, тело: %s", rec.Code, rec.Body.String())
		}
		var resp auditResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if len(resp.Records) != 1 || resp.Records[0].ID != "1" {
			t.Errorf("записи = %+v", resp.Records)
		}
	})

	t.Run("пустой журнал — пустой массив", func(t *testing.T) {
		rec := do(h, http.MethodGet, "/api/v1/media/example.org/unknown/audit", "")
		if !strings.Contains(rec.Body.String(), `"records":[]`) {
			t.Errorf("тело = %s", rec.Body.String())
		}
	})

	for _, limit := range []string{"0", "abc", "501"} {
		rec := do(h, http.MethodGet, "/api/v1/media/example.org/clean-1/audit?limit="+limit, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: статус = %d, ожидался 400", limit, rec.Code)
		}
	}
}

// TestFeatures проверяет выдачу флагов и решение об очистке кэша.
func TestFeatures(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	rec := do(h, http.MethodGet, "/api/v1/features", "")
	var flags features.Flags
	if err := json.Unmarshal(rec.Body.Bytes(), &flags); err != nil {
		t.Fatal(err)
	}
	if flags != features.Default() {
		t.Errorf("флаги = %+v", flags)
	}

	tests := []struct {
		query string
		want  bool
	}{
		{"previous=3.9.1&current=4.0.0", true},
		{"previous=4.0.0&current=4.1.0", false},
		{"current=4.0.0", false},
	}
	for _, tt := range tests {
		rec := do(h, http.MethodGet, "/api/v1/features/clear-cache?"+tt.query, "")
		var resp clearCacheResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if resp.ClearCache != tt.want {
			t.Errorf("%s: clear_cache = %v, ожидалось %v", tt.query, resp.ClearCache, tt.want)
		}
	}
}
