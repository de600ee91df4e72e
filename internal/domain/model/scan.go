package model

import "time"

// ScanTarget — какой ресурс медиа проверялся.
type ScanTarget string

const (
	// TargetSource — исходный файл
	TargetSource ScanTarget = "source"
	// TargetThumbnail — миниатюра
	TargetThumbnail ScanTarget = "thumbnail"
)

// ScanResult — ответ сканера на запрос проверки.
type ScanResult struct {
	// Clean — true, если файл безопасен
	Clean bool `json:"clean"`
	// Info — человекочитаемое пояснение сканера
	Info string `json:"info,omitempty"`
}

// AuditRecord — запись журнала проверок (таблица scan_audit).
type AuditRecord struct {
	// ID — UUID записи
	ID string `json:"id"`
	// MXC — проверенный ресурс
	MXC string `json:"mxc"`
	// Target — source или thumbnail
	Target ScanTarget `json:"target"`
	// Clean — вердикт (false также при ошибке сканера)
	Clean bool `json:"clean"`
	// Error — текст ошибки сканера (пусто при успешной проверке)
	Error *string `json:"error,omitempty"`
	// DurationMs — длительность проверки в миллисекундах
	DurationMs int64 `json:"duration_ms"`
	// ScannedAt — время проверки
	ScannedAt time.Time `json:"scanned_at"`
}
