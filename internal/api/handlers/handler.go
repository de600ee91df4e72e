// handler.go — обработчик бизнес-маршрутов /api/v1: флаги функций
// и операции с медиа. Health endpoints обслуживает HealthHandler.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/bigkaa/mediagate/internal/service"
)

// maxBodySize — предел JSON-тела запроса (содержимое события с info).
const maxBodySize = 1 << 20

// APIHandler — обработчик маршрутов /api/v1.
type APIHandler struct {
	media  *service.MediaService
	logger *slog.Logger
}

// NewAPIHandler создаёт обработчик API.
// Флаги функций приходят в контексте запроса (middleware.Features).
func NewAPIHandler(media *service.MediaService, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		media:  media,
		logger: logger.With(slog.String("component", "api_handler")),
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON читает тело запроса не больше maxBodySize байт.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(dst)
}
