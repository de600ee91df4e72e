// Пакет scanclient — HTTP-клиент сервиса проверки контента (Matrix Content Scanner).
// Все операции с медиа (проверка, скачивание, построение URL) идут через
// прокси сканера: /_matrix/media_proxy/unstable/{scan,download,thumbnail}.
// Поддерживает TLS с кастомным CA, кэш вердиктов (LRU с TTL) и схлопывание
// одновременных проверок одного и того же ресурса.
package scanclient

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"

	"github.com/bigkaa/mediagate/internal/domain/model"
)

// apiPrefix — префикс API прокси сканера.
const apiPrefix = "/_matrix/media_proxy/unstable"

// reasonNotClean — код причины отказа сканера для небезопасного файла.
const reasonNotClean = "MCS_MEDIA_NOT_CLEAN"

// Ошибки клиента.
var (
	// ErrInvalidMXC — ресурс не является корректным MXC URI.
	ErrInvalidMXC = model.ErrInvalidMXC
	// ErrMediaNotClean — сканер отказал в выдаче файла, т.к. он небезопасен.
	ErrMediaNotClean = errors.New("медиа не прошло проверку сканера")
)

// ScanError — ошибка сервиса проверки (не вердикт, а сбой запроса).
type ScanError struct {
	// StatusCode — HTTP-статус ответа сканера (0 — сетевая ошибка)
	StatusCode int
	// Reason — машиночитаемый код сканера (MCS_*)
	Reason string
	// Info — описание от сканера
	Info string
}

func (e *ScanError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("сканер вернул статус %d (%s): %s", e.StatusCode, e.Reason, e.Info)
	}
	return fmt.Sprintf("сканер вернул статус %d: %s", e.StatusCode, e.Info)
}

// Prometheus-метрики клиента сканера.
var (
	scansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mg_scans_total",
		Help: "Количество запросов проверки к сканеру (по результату).",
	}, []string{"result"})

	scanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mg_scan_duration_seconds",
		Help:    "Длительность запроса проверки к сканеру.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})

	scanCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mg_scan_cache_hits_total",
		Help: "Количество попаданий в кэш вердиктов.",
	})

	scanCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mg_scan_cache_misses_total",
		Help: "Количество промахов кэша вердиктов.",
	})
)

// TokenProvider — функция, возвращающая bearer-токен для запросов к сканеру.
type TokenProvider func(ctx context.Context) (string, error)

// StaticToken возвращает TokenProvider с постоянным токеном.
func StaticToken(token string) TokenProvider {
	return func(context.Context) (string, error) {
		return token, nil
	}
}

// Options — параметры клиента сканера.
type Options struct {
	// CACertPath — путь к CA-сертификату (пустая строка — системный пул)
	CACertPath string
	// Timeout — таймаут HTTP-запросов
	Timeout time.Duration
	// TokenProvider — источник bearer-токена (nil — без авторизации)
	TokenProvider TokenProvider
	// CacheSize — максимальное количество вердиктов в кэше
	CacheSize int
	// CacheTTL — время жизни вердикта
	CacheTTL time.Duration
}

// Client — HTTP-клиент сервиса проверки контента.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	tokenProvider TokenProvider
	verdicts      *expirable.LRU[string, bool]
	inflight      singleflight.Group
	logger        *slog.Logger
}

// New создаёт клиент сканера.
// scannerURL — базовый URL сканера (например, https://scanner.tchap.gouv.fr).
func New(scannerURL string, opts Options, logger *slog.Logger) (*Client, error) {
	if scannerURL == "" {
		return nil, fmt.Errorf("не задан URL сканера")
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
	}

	if opts.CACertPath != "" {
		tlsConfig, err := buildTLSConfig(opts.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата сканера: %w", err)
		}
		transport.TLSClientConfig = tlsConfig
		logger.Info("CA-сертификат сканера добавлен в пул доверия",
			slog.String("ca_cert", opts.CACertPath),
		)
	}

	cacheSize := opts.CacheSize
	if cacheSize <= 0 {
		cacheSize = 1000
	}
	cacheTTL := opts.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}

	return &Client{
		baseURL: strings.TrimRight(scannerURL, "/") + apiPrefix,
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		tokenProvider: opts.TokenProvider,
		verdicts:      expirable.NewLRU[string, bool](cacheSize, nil, cacheTTL),
		logger:        logger.With(slog.String("component", "scan_client")),
	}, nil
}

// Scan проверяет ресурс и возвращает true, если он безопасен.
// Для зашифрованного вложения (file != nil) дескриптор передаётся сканеру
// через POST /scan_encrypted, иначе — GET /scan/{server}/{mediaId}.
//
// Вердикт «небезопасно» (403 MCS_MEDIA_NOT_CLEAN) — это (false, nil).
// Любой сбой сканера — ошибка; решение о fail-closed принимает вызывающий код.
func (c *Client) Scan(ctx context.Context, mxc string, file *model.EncryptedFile) (bool, error) {
	parsed, err := model.ParseMXC(mxc)
	if err != nil {
		return false, err
	}

	key := cacheKey(parsed, file)
	if clean, ok := c.verdicts.Get(key); ok {
		scanCacheHitsTotal.Inc()
		return clean, nil
	}
	scanCacheMissesTotal.Inc()

	// Одновременные проверки одного ресурса схлопываются в один запрос.
	// Общий запрос не зависит от отмены контекста отдельного вызывающего.
	ch := c.inflight.DoChan(key, func() (any, error) {
		result, err := c.ScanResult(context.WithoutCancel(ctx), parsed, file)
		if err != nil {
			return false, err
		}
		c.verdicts.Add(key, result.Clean)
		return result.Clean, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return false, res.Err
		}
		if res.Shared {
			c.logger.Debug("Результат проверки получен из параллельного запроса",
				slog.String("mxc", mxc),
			)
		}
		return res.Val.(bool), nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// ScanResult выполняет запрос проверки без кэша и возвращает ответ сканера.
func (c *Client) ScanResult(ctx context.Context, mxc model.MXC, file *model.EncryptedFile) (*model.ScanResult, error) {
	start := time.Now()
	defer func() {
		scanDuration.Observe(time.Since(start).Seconds())
	}()

	var (
		req *http.Request
		err error
	)
	if file != nil {
		req, err = c.newEncryptedRequest(ctx, "/scan_encrypted", file)
	} else {
		req, err = c.newRequest(ctx, http.MethodGet, c.mediaPath("/scan", mxc), http.NoBody)
	}
	if err != nil {
		scansTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		scansTotal.WithLabelValues("error").Inc()
		return nil, &ScanError{Info: err.Error()}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var result model.ScanResult
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			scansTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("декодирование ответа сканера: %w", err)
		}
		scansTotal.WithLabelValues(verdictLabel(result.Clean)).Inc()
		return &result, nil

	default:
		scanErr := decodeError(resp)
		if scanErr.Reason == reasonNotClean {
			scansTotal.WithLabelValues(verdictLabel(false)).Inc()
			c.logger.Info("Сканер пометил медиа как небезопасное",
				slog.String("mxc", mxc.String()),
				slog.String("info", scanErr.Info),
			)
			return &model.ScanResult{Clean: false, Info: scanErr.Info}, nil
		}
		scansTotal.WithLabelValues("error").Inc()
		return nil, scanErr
	}
}

// Download запрашивает содержимое ресурса через прокси сканера.
// Возвращает *http.Response — вызывающий код ОБЯЗАН закрыть resp.Body.
// Небезопасный файл — ErrMediaNotClean, прочие не-2xx ответы — *ScanError.
func (c *Client) Download(ctx context.Context, mxc string, file *model.EncryptedFile) (*http.Response, error) {
	parsed, err := model.ParseMXC(mxc)
	if err != nil {
		return nil, err
	}

	var req *http.Request
	if file != nil {
		req, err = c.newEncryptedRequest(ctx, "/download_encrypted", file)
	} else {
		req, err = c.newRequest(ctx, http.MethodGet, c.mediaPath("/download", parsed), http.NoBody)
	}
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		return nil, fmt.Errorf("запрос Download к сканеру: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		scanErr := decodeError(resp)
		if scanErr.Reason == reasonNotClean {
			return nil, fmt.Errorf("%s: %w", mxc, ErrMediaNotClean)
		}
		return nil, scanErr
	}

	// Не закрываем resp.Body — вызывающий код отвечает за это (streaming)
	return resp, nil
}

// URLForMXC строит HTTP URL ресурса через прокси сканера.
// При width или height > 0 — URL миниатюры (/thumbnail) с указанным
// методом (по умолчанию scale), иначе — URL скачивания (/download).
// Для некорректного MXC возвращает пустую строку.
func (c *Client) URLForMXC(mxc string, width, height int, method model.ResizeMethod) string {
	parsed, err := model.ParseMXC(mxc)
	if err != nil {
		return ""
	}

	if width <= 0 && height <= 0 {
		return c.baseURL + c.mediaPath("/download", parsed)
	}

	if method == "" {
		method = model.ResizeScale
	}
	q := url.Values{}
	if width > 0 {
		q.Set("width", strconv.Itoa(width))
	}
	if height > 0 {
		q.Set("height", strconv.Itoa(height))
	}
	q.Set("method", string(method))

	return c.baseURL + c.mediaPath("/thumbnail", parsed) + "?" + q.Encode()
}

// Purge очищает кэш вердиктов.
func (c *Client) Purge() {
	c.verdicts.Purge()
}

// Forget удаляет вердикт ресурса из кэша.
func (c *Client) Forget(mxc string, file *model.EncryptedFile) {
	parsed, err := model.ParseMXC(mxc)
	if err != nil {
		return
	}
	c.verdicts.Remove(cacheKey(parsed, file))
}

// --- Вспомогательные функции ---

// mediaPath строит путь {op}/{server}/{mediaId} с экранированием сегментов.
func (c *Client) mediaPath(op string, mxc model.MXC) string {
	return op + "/" + url.PathEscape(mxc.Server) + "/" + url.PathEscape(mxc.MediaID)
}

// newRequest создаёт запрос к сканеру с авторизацией.
func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("создание запроса %s: %w", path, err)
	}

	if c.tokenProvider != nil {
		token, err := c.tokenProvider(ctx)
		if err != nil {
			return nil, fmt.Errorf("получение токена для сканера: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return req, nil
}

// newEncryptedRequest создаёт POST-запрос с дескриптором зашифрованного файла.
func (c *Client) newEncryptedRequest(ctx context.Context, path string, file *model.EncryptedFile) (*http.Request, error) {
	payload, err := json.Marshal(struct {
		File *model.EncryptedFile `json:"file"`
	}{File: file})
	if err != nil {
		return nil, fmt.Errorf("кодирование дескриптора файла: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// decodeError читает тело ответа сканера с ошибкой.
func decodeError(resp *http.Response) *ScanError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	scanErr := &ScanError{StatusCode: resp.StatusCode}
	var payload struct {
		Reason string `json:"reason"`
		Info   string `json:"info"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		scanErr.Reason = payload.Reason
		scanErr.Info = payload.Info
	}
	if scanErr.Info == "" {
		scanErr.Info = strings.TrimSpace(string(body))
	}
	return scanErr
}

// cacheKey — ключ кэша вердиктов.
// Вердикт зашифрованного вложения относится к расшифрованному содержимому,
// поэтому ключ — SHA-256 всего дескриптора (url, ключ, iv, хэши, версия):
// дескрипторы одного MXC с разными ключами не делят вердикт.
func cacheKey(mxc model.MXC, file *model.EncryptedFile) string {
	if file == nil {
		return mxc.String()
	}
	// json.Marshal сортирует ключи map — сериализация детерминирована
	descriptor, _ := json.Marshal(file)
	sum := sha256.Sum256(descriptor)
	return "enc:" + mxc.String() + "#" + hex.EncodeToString(sum[:])
}

// verdictLabel — значение лейбла result для вердикта.
func verdictLabel(clean bool) string {
	if clean {
		return "clean"
	}
	return "infected"
}

// buildTLSConfig создаёт TLS-конфигурацию с кастомным CA-сертификатом.
func buildTLSConfig(caCertPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата: %w", err)
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &tls.Config{
		RootCAs: caCertPool,
	}, nil
}
