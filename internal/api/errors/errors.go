// Пакет errors — ответы с ошибками API mediagate.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
package errors //nolint:revive // имя пакета совпадает со stdlib

import (
	"encoding/json"
	"net/http"
)

// Машиночитаемые коды ошибок.
const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeMediaNotClean      = "MEDIA_NOT_CLEAN"
	CodeScannerUnavailable = "SCANNER_UNAVAILABLE"
	CodeAuditDisabled      = "AUDIT_DISABLED"
	CodeInternalError      = "INTERNAL_ERROR"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// MediaNotClean — 403 медиа не прошло проверку.
func MediaNotClean(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeMediaNotClean, message)
}

// ScannerUnavailable — 502 сбой сервиса проверки.
func ScannerUnavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadGateway, CodeScannerUnavailable, message)
}

// AuditDisabled — 404 журнал проверок не настроен.
func AuditDisabled(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeAuditDisabled, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
