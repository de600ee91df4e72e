// media.go — операции с медиа: решение об отображении, URL,
// скачивание через сканер, проверка и журнал проверок.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/mediagate/internal/api/errors"
	"github.com/bigkaa/mediagate/internal/domain/model"
	"github.com/bigkaa/mediagate/internal/media"
	"github.com/bigkaa/mediagate/internal/scanclient"
	"github.com/bigkaa/mediagate/internal/service"
)

// maxAuditLimit — верхняя граница параметра limit журнала проверок.
const maxAuditLimit = 500

// urlsRequest — тело POST /api/v1/media/urls.
type urlsRequest struct {
	Content model.MediaEventContent `json:"content"`
	Width   int                     `json:"width"`
	Height  int                     `json:"height"`
	Method  string                  `json:"method"`
	Square  int                     `json:"square"`
}

// scanResponse — ответ GET .../scan.
type scanResponse struct {
	MXC   string `json:"mxc"`
	Clean bool   `json:"clean"`
}

// auditResponse — ответ GET .../audit.
type auditResponse struct {
	MXC     string               `json:"mxc"`
	Records []*model.AuditRecord `json:"records"`
}

// RenderMedia — POST /api/v1/media/render.
// Возвращает представление медиа после проверки источника и миниатюры.
func (h *APIHandler) RenderMedia(w http.ResponseWriter, r *http.Request) {
	var content model.MediaEventContent
	if err := decodeJSON(w, r, &content); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса: "+err.Error())
		return
	}

	view, err := h.media.Render(r.Context(), content)
	if err != nil {
		h.writeMediaError(w, err, "render")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// MediaURLs — POST /api/v1/media/urls.
func (h *APIHandler) MediaURLs(w http.ResponseWriter, r *http.Request) {
	var req urlsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса: "+err.Error())
		return
	}
	if req.Width < 0 || req.Height < 0 || req.Square < 0 {
		apierrors.ValidationError(w, "Размеры миниатюры не могут быть отрицательными")
		return
	}

	method := model.ResizeMethod(req.Method)
	switch method {
	case "", model.ResizeScale, model.ResizeCrop:
	default:
		apierrors.ValidationError(w, "Параметр method: допустимы scale или crop")
		return
	}

	urls, err := h.media.URLs(req.Content, service.URLOptions{
		Width:  req.Width,
		Height: req.Height,
		Method: method,
		Square: req.Square,
	})
	if err != nil {
		h.writeMediaError(w, err, "urls")
		return
	}
	writeJSON(w, http.StatusOK, urls)
}

// DownloadContent — POST /api/v1/media/download.
// Тело — содержимое события; поддерживает зашифрованные вложения.
func (h *APIHandler) DownloadContent(w http.ResponseWriter, r *http.Request) {
	var content model.MediaEventContent
	if err := decodeJSON(w, r, &content); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса: "+err.Error())
		return
	}

	m, err := h.media.Media(content)
	if err != nil {
		h.writeMediaError(w, err, "download")
		return
	}
	h.download(w, r, m)
}

// DownloadMXC — GET /api/v1/media/{server}/{mediaId}/download.
func (h *APIHandler) DownloadMXC(w http.ResponseWriter, r *http.Request) {
	m, err := h.mediaFromPath(r)
	if err != nil {
		h.writeMediaError(w, err, "download")
		return
	}
	h.download(w, r, m)
}

// ScanMXC — GET /api/v1/media/{server}/{mediaId}/scan[?fresh=true].
// fresh=true сбрасывает кэшированный вердикт перед проверкой.
func (h *APIHandler) ScanMXC(w http.ResponseWriter, r *http.Request) {
	m, err := h.mediaFromPath(r)
	if err != nil {
		h.writeMediaError(w, err, "scan")
		return
	}

	if fresh := r.URL.Query().Get("fresh"); fresh != "" {
		forget, err := strconv.ParseBool(fresh)
		if err != nil {
			apierrors.ValidationError(w, "Параметр fresh: ожидается true или false")
			return
		}
		if forget {
			h.media.Forget(m)
		}
	}

	clean, err := h.media.Scan(r.Context(), m)
	if err != nil {
		h.writeMediaError(w, err, "scan")
		return
	}
	writeJSON(w, http.StatusOK, scanResponse{MXC: m.SrcMXC(), Clean: clean})
}

// AuditMXC — GET /api/v1/media/{server}/{mediaId}/audit?limit=N.
func (h *APIHandler) AuditMXC(w http.ResponseWriter, r *http.Request) {
	m, err := h.mediaFromPath(r)
	if err != nil {
		h.writeMediaError(w, err, "audit")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxAuditLimit {
			apierrors.ValidationError(w, "Параметр limit: целое число от 1 до "+strconv.Itoa(maxAuditLimit))
			return
		}
	}

	records, err := h.media.Audit(r.Context(), m.SrcMXC(), limit)
	if err != nil {
		h.writeMediaError(w, err, "audit")
		return
	}
	if records == nil {
		records = []*model.AuditRecord{}
	}
	writeJSON(w, http.StatusOK, auditResponse{MXC: m.SrcMXC(), Records: records})
}

// download проксирует содержимое медиа клиенту.
func (h *APIHandler) download(w http.ResponseWriter, r *http.Request, m *media.Media) {
	if err := h.media.Download(r.Context(), w, m); err != nil {
		h.writeMediaError(w, err, "download")
	}
}

// mediaFromPath строит медиа из URL-параметров {server} и {mediaId}.
func (h *APIHandler) mediaFromPath(r *http.Request) (*media.Media, error) {
	return h.media.MediaFromMXC(chi.URLParam(r, "server"), chi.URLParam(r, "mediaId"))
}

// writeMediaError преобразует ошибку сервиса в HTTP-ответ.
func (h *APIHandler) writeMediaError(w http.ResponseWriter, err error, op string) {
	var scanErr *scanclient.ScanError
	switch {
	case errors.Is(err, service.ErrInvalidMedia):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrMediaNotClean):
		apierrors.MediaNotClean(w, "Медиа не прошло проверку сканером")
	case errors.Is(err, service.ErrAuditDisabled):
		apierrors.AuditDisabled(w, "Журнал проверок не настроен")
	case errors.As(err, &scanErr) && scanErr.StatusCode == http.StatusNotFound:
		// сканер доступен, но медиа нет на homeserver
		apierrors.NotFound(w, "Медиа не найдено")
	case op == "audit":
		h.logger.Error("Ошибка чтения журнала проверок",
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка при чтении журнала проверок")
	case op == "render":
		h.logger.Error("Ошибка построения представления медиа",
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка при построении представления")
	default:
		h.logger.Warn("Сканер недоступен",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		apierrors.ScannerUnavailable(w, "Сканер недоступен")
	}
}
