// Пакет media — фасад над подготовленным медиа (источник + опциональная миниатюра).
//
// Все операции, порождающие URL или байты, направляются через Scanner:
// прямых обращений к хранилищу нет. Media не имеет изменяемого состояния —
// всё выводится из неизменяемого PreparedMedia.
package media

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bigkaa/mediagate/internal/domain/model"
)

// ErrNoSource — у подготовленного медиа нет идентификатора источника.
var ErrNoSource = errors.New("у медиа отсутствует MXC источника")

// Scanner — граница с сервисом проверки контента.
// Реализуется scanclient.Client.
type Scanner interface {
	// Scan возвращает true, если ресурс безопасен.
	Scan(ctx context.Context, mxc string, file *model.EncryptedFile) (bool, error)
	// Download возвращает ответ сканера с содержимым ресурса.
	Download(ctx context.Context, mxc string, file *model.EncryptedFile) (*http.Response, error)
	// URLForMXC строит HTTP URL ресурса через сканер.
	URLForMXC(mxc string, width, height int, method model.ResizeMethod) string
}

// Media — представление «исходного медиа» и опциональной «миниатюры».
type Media struct {
	prepared model.PreparedMedia
	scanner  Scanner
}

// New создаёт фасад над подготовленным медиа.
func New(prepared model.PreparedMedia, scanner Scanner) *Media {
	return &Media{prepared: prepared, scanner: scanner}
}

// FromContent создаёт фасад из содержимого медиа-события.
func FromContent(content model.MediaEventContent, scanner Scanner) *Media {
	return New(model.PrepareEventContent(content), scanner)
}

// FromMXC создаёт фасад из одного MXC URI (без миниатюры).
func FromMXC(mxc string, scanner Scanner) *Media {
	return FromContent(model.MediaEventContent{URL: mxc}, scanner)
}

// PreparedSource — внешний объект, способный выдать подготовленное медиа
// (например, helper событий чат-SDK).
type PreparedSource interface {
	PreparedMedia() model.PreparedMedia
}

// FromSource — явный адаптер внешнего helper-а в фасад.
// Предусловие: у подготовленного медиа задан MXC источника.
func FromSource(src PreparedSource, scanner Scanner) (*Media, error) {
	if src == nil {
		return nil, fmt.Errorf("адаптация медиа: %w", ErrNoSource)
	}
	prepared := src.PreparedMedia()
	if prepared.MXC == "" {
		return nil, fmt.Errorf("адаптация медиа: %w", ErrNoSource)
	}
	return New(prepared, scanner), nil
}

// Prepared возвращает копию подготовленного дескриптора.
func (m *Media) Prepared() model.PreparedMedia {
	return m.prepared
}

// IsEncrypted — true, если источник зашифрован. Фактическое содержимое может отличаться.
func (m *Media) IsEncrypted() bool {
	return m.prepared.File != nil
}

// SrcMXC — MXC URI исходного медиа.
func (m *Media) SrcMXC() string {
	return m.prepared.MXC
}

// ThumbnailMXC — MXC URI миниатюры или пустая строка, если миниатюры нет.
func (m *Media) ThumbnailMXC() string {
	if m.prepared.Thumbnail == nil {
		return ""
	}
	return m.prepared.Thumbnail.MXC
}

// HasThumbnail — true, если для медиа записана миниатюра.
func (m *Media) HasThumbnail() bool {
	return m.ThumbnailMXC() != ""
}

// SrcHTTP — HTTP URL исходного медиа.
func (m *Media) SrcHTTP() string {
	return m.scanner.URLForMXC(m.SrcMXC(), 0, 0, "")
}

// ThumbnailHTTP — HTTP URL миниатюры без параметров размера.
// ok == false, если миниатюры нет.
func (m *Media) ThumbnailHTTP() (string, bool) {
	if !m.HasThumbnail() {
		return "", false
	}
	return m.scanner.URLForMXC(m.ThumbnailMXC(), 0, 0, ""), true
}

// ThumbnailHTTPSized — HTTP URL миниатюры с заданными размерами.
// Пустой method означает scale. ok == false, если миниатюры нет.
func (m *Media) ThumbnailHTTPSized(width, height int, method model.ResizeMethod) (string, bool) {
	if !m.HasThumbnail() {
		return "", false
	}
	return m.scanner.URLForMXC(m.ThumbnailMXC(), width, height, defaultMethod(method)), true
}

// ThumbnailOfSourceHTTP — HTTP URL миниатюры, построенной из исходного медиа.
func (m *Media) ThumbnailOfSourceHTTP(width, height int, method model.ResizeMethod) string {
	return m.scanner.URLForMXC(m.SrcMXC(), width, height, defaultMethod(method))
}

// SquareThumbnailHTTP — квадратная миниатюра (crop) размером dim.
// Используется записанная миниатюра, иначе — исходное медиа.
func (m *Media) SquareThumbnailHTTP(dim int) string {
	if url, ok := m.ThumbnailHTTPSized(dim, dim, model.ResizeCrop); ok {
		return url
	}
	return m.ThumbnailOfSourceHTTP(dim, dim, model.ResizeCrop)
}

// DownloadSource скачивает исходное медиа через сканер.
// Вызывающий код обязан закрыть resp.Body; ошибки не подавляются.
func (m *Media) DownloadSource(ctx context.Context) (*http.Response, error) {
	return m.scanner.Download(ctx, m.SrcMXC(), m.prepared.File)
}

// ScanSource проверяет исходное медиа. true — безопасно.
func (m *Media) ScanSource(ctx context.Context) (bool, error) {
	return m.scanner.Scan(ctx, m.SrcMXC(), m.prepared.File)
}

// ScanThumbnail проверяет миниатюру. Если миниатюры нет — true без
// обращения к сканеру: отсутствие миниатюры не является риском.
func (m *Media) ScanThumbnail(ctx context.Context) (bool, error) {
	if !m.HasThumbnail() {
		return true, nil
	}
	return m.scanner.Scan(ctx, m.ThumbnailMXC(), m.prepared.Thumbnail.File)
}

func defaultMethod(method model.ResizeMethod) model.ResizeMethod {
	if method == "" {
		return model.ResizeScale
	}
	return method
}
