// media.go — сервис операций с медиа: решение об отображении,
// построение URL, проксирование скачивания и журнал проверок.
// Все обращения к содержимому идут через сканер.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/mediagate/internal/domain/model"
	"github.com/bigkaa/mediagate/internal/gate"
	"github.com/bigkaa/mediagate/internal/media"
	"github.com/bigkaa/mediagate/internal/repository"
	"github.com/bigkaa/mediagate/internal/scanclient"
)

// Ошибки media service.
var (
	// ErrMediaNotClean — сканер отказал в выдаче небезопасного файла.
	ErrMediaNotClean = scanclient.ErrMediaNotClean
	// ErrInvalidMedia — у содержимого события нет корректного MXC источника.
	ErrInvalidMedia = errors.New("некорректное медиа")
	// ErrAuditDisabled — журнал проверок не настроен (MG_DB_DSN пуст).
	ErrAuditDisabled = errors.New("журнал проверок не настроен")
)

// Prometheus-метрики скачивания.
var (
	downloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mg_downloads_total",
		Help: "Общее количество запросов на скачивание медиа (по статусу).",
	}, []string{"status"})

	downloadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mg_download_duration_seconds",
		Help:    "Длительность проксирования скачивания через сканер.",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	})

	downloadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mg_download_bytes_total",
		Help: "Общее количество переданных байт медиа.",
	})

	activeDownloads = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mg_active_downloads",
		Help: "Количество активных скачиваний.",
	})
)

// headersToProxy — заголовки ответа сканера, передаваемые клиенту.
var headersToProxy = []string{
	"Content-Type",
	"Content-Length",
	"Content-Disposition",
	"ETag",
	"Last-Modified",
	"Cache-Control",
}

// MediaURLs — все URL медиа, построенные через сканер.
// Поля миниатюры равны nil, если у медиа нет миниатюры.
type MediaURLs struct {
	Source            string  `json:"source"`
	Thumbnail         *string `json:"thumbnail"`
	ThumbnailSized    *string `json:"thumbnail_sized"`
	ThumbnailOfSource string  `json:"thumbnail_of_source,omitempty"`
	Square            string  `json:"square,omitempty"`
	HasThumbnail      bool    `json:"has_thumbnail"`
	Encrypted         bool    `json:"encrypted"`
}

// URLOptions — параметры построения URL миниатюр.
type URLOptions struct {
	Width  int
	Height int
	Method model.ResizeMethod
	// Square — размер квадратной миниатюры (0 — не строить)
	Square int
}

// MediaService — сервис операций с медиа.
type MediaService struct {
	scanner    *scanclient.Client
	audit      repository.ScanAuditRepository
	renderWait time.Duration
	logger     *slog.Logger
}

// NewMediaService создаёт сервис медиа.
// audit может быть nil — тогда журнал проверок не ведётся.
func NewMediaService(
	scanner *scanclient.Client,
	audit repository.ScanAuditRepository,
	renderWait time.Duration,
	logger *slog.Logger,
) *MediaService {
	return &MediaService{
		scanner:    scanner,
		audit:      audit,
		renderWait: renderWait,
		logger:     logger.With(slog.String("component", "media_service")),
	}
}

// Media строит фасад медиа из содержимого события.
func (s *MediaService) Media(content model.MediaEventContent) (*media.Media, error) {
	prepared := model.PrepareEventContent(content)
	if _, err := model.ParseMXC(prepared.MXC); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMedia, err)
	}
	return media.New(prepared, s.scannerFor(prepared)), nil
}

// MediaFromMXC строит фасад медиа без миниатюры по server и mediaId.
func (s *MediaService) MediaFromMXC(server, mediaID string) (*media.Media, error) {
	mxc := model.MXC{Server: server, MediaID: mediaID}.String()
	return s.Media(model.MediaEventContent{URL: mxc})
}

// Render запускает обе проверки и ждёт решения не дольше renderWait.
// Если проверки не успели завершиться, возвращается представление scanning.
func (s *MediaService) Render(ctx context.Context, content model.MediaEventContent) (gate.View, error) {
	m, err := s.Media(content)
	if err != nil {
		return gate.View{}, err
	}

	kind := gate.KindFromMsgType(content.MsgType)
	g := gate.Start(context.WithoutCancel(ctx), m, kind, s.logger)

	waitCtx, cancel := context.WithTimeout(ctx, s.renderWait)
	defer cancel()

	if _, err := g.Wait(waitCtx); err != nil {
		// Запрос не дождался вердикта: отображение закрывается,
		// общий запрос к сканеру завершится и попадёт в кэш.
		g.Close()
		s.logger.Debug("Вердикт не получен за время ожидания",
			slog.String("mxc", m.SrcMXC()),
			slog.Duration("wait", s.renderWait),
		)
	}

	return g.View(), nil
}

// URLs строит все URL медиа.
func (s *MediaService) URLs(content model.MediaEventContent, opts URLOptions) (*MediaURLs, error) {
	m, err := s.Media(content)
	if err != nil {
		return nil, err
	}

	urls := &MediaURLs{
		Source:       m.SrcHTTP(),
		HasThumbnail: m.HasThumbnail(),
		Encrypted:    m.IsEncrypted(),
	}
	if u, ok := m.ThumbnailHTTP(); ok {
		urls.Thumbnail = &u
	}
	if opts.Width > 0 || opts.Height > 0 {
		if u, ok := m.ThumbnailHTTPSized(opts.Width, opts.Height, opts.Method); ok {
			urls.ThumbnailSized = &u
		}
		urls.ThumbnailOfSource = m.ThumbnailOfSourceHTTP(opts.Width, opts.Height, opts.Method)
	}
	if opts.Square > 0 {
		urls.Square = m.SquareThumbnailHTTP(opts.Square)
	}
	return urls, nil
}

// Scan проверяет исходное медиа. true — безопасно.
func (s *MediaService) Scan(ctx context.Context, m *media.Media) (bool, error) {
	clean, err := m.ScanSource(ctx)
	if err != nil {
		return false, fmt.Errorf("проверка %s: %w", m.SrcMXC(), err)
	}
	return clean, nil
}

// Forget удаляет кэшированный вердикт исходного медиа:
// следующая проверка снова обратится к сканеру.
func (s *MediaService) Forget(m *media.Media) {
	s.scanner.Forget(m.SrcMXC(), m.Prepared().File)
}

// Download проксирует содержимое исходного медиа клиенту.
// Ошибка возвращается только до начала передачи тела.
func (s *MediaService) Download(ctx context.Context, w http.ResponseWriter, m *media.Media) error {
	start := time.Now()
	activeDownloads.Inc()
	defer activeDownloads.Dec()

	resp, err := m.DownloadSource(ctx)
	if err != nil {
		if errors.Is(err, ErrMediaNotClean) {
			downloadsTotal.WithLabelValues("not_clean").Inc()
			return err
		}
		downloadsTotal.WithLabelValues("scanner_error").Inc()
		return fmt.Errorf("скачивание %s: %w", m.SrcMXC(), err)
	}
	defer resp.Body.Close()

	copyHeaders(w, resp)
	w.WriteHeader(resp.StatusCode)

	written, err := io.Copy(w, resp.Body)
	if err != nil {
		s.logger.Error("Ошибка streaming download",
			slog.String("mxc", m.SrcMXC()),
			slog.Int64("bytes_written", written),
			slog.String("error", err.Error()),
		)
		downloadsTotal.WithLabelValues("stream_error").Inc()
		return nil
	}

	duration := time.Since(start)
	downloadsTotal.WithLabelValues("success").Inc()
	downloadDuration.Observe(duration.Seconds())
	downloadBytesTotal.Add(float64(written))

	s.logger.Debug("Download завершён",
		slog.String("mxc", m.SrcMXC()),
		slog.Int64("bytes", written),
		slog.Duration("duration", duration),
	)
	return nil
}

// Audit возвращает последние записи журнала проверок ресурса.
func (s *MediaService) Audit(ctx context.Context, mxc string, limit int) ([]*model.AuditRecord, error) {
	if s.audit == nil {
		return nil, ErrAuditDisabled
	}
	records, err := s.audit.ListByMXC(ctx, mxc, limit)
	if err != nil {
		return nil, fmt.Errorf("журнал проверок %s: %w", mxc, err)
	}
	return records, nil
}

// scannerFor возвращает сканер для медиа: с журналированием, если журнал включён.
func (s *MediaService) scannerFor(prepared model.PreparedMedia) media.Scanner {
	if s.audit == nil {
		return s.scanner
	}
	thumbnailMXC := ""
	if prepared.Thumbnail != nil {
		thumbnailMXC = prepared.Thumbnail.MXC
	}
	return &auditedScanner{
		Scanner:      s.scanner,
		repo:         s.audit,
		thumbnailMXC: thumbnailMXC,
		logger:       s.logger,
	}
}

// copyHeaders передаёт релевантные заголовки ответа сканера клиенту.
func copyHeaders(w http.ResponseWriter, resp *http.Response) {
	for _, h := range headersToProxy {
		if v := resp.Header.Get(h); v != "" {
			w.Header().Set(h, v)
		}
	}
}
