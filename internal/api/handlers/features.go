// features.go — флаги функций развёртывания для веб-клиента.
package handlers

import (
	"net/http"

	"github.com/bigkaa/mediagate/internal/features"
)

// clearCacheResponse — решение об одноразовой очистке кэша.
type clearCacheResponse struct {
	ClearCache bool   `json:"clear_cache"`
	Previous   string `json:"previous"`
	Current    string `json:"current"`
}

// GetFeatures — GET /api/v1/features.
func (h *APIHandler) GetFeatures(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, features.FromContext(r.Context()))
}

// GetClearCache — GET /api/v1/features/clear-cache?previous=&current=.
// Клиент вызывает при старте после обновления версии.
func (h *APIHandler) GetClearCache(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	previous, current := q.Get("previous"), q.Get("current")
	writeJSON(w, http.StatusOK, clearCacheResponse{
		ClearCache: features.FromContext(r.Context()).ShouldClearCache(previous, current),
		Previous:   previous,
		Current:    current,
	})
}
