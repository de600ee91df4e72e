// Пакет model — доменные модели mediagate.
// MXC — идентификатор медиа Matrix, EncryptedFile — дескриптор шифрования,
// MediaEventContent / PreparedMedia — содержимое медиа-события и его
// подготовленное представление (источник + опциональная миниатюра).
package model

import (
	"errors"
	"fmt"
	"strings"
)

// mxcScheme — схема URI контент-репозитория Matrix.
const mxcScheme = "mxc://"

// ErrInvalidMXC — строка не является MXC URI вида mxc://server/mediaId.
var ErrInvalidMXC = errors.New("некорректный MXC URI")

// MXC — разобранный MXC URI.
type MXC struct {
	// Server — имя сервера-источника (origin)
	Server string
	// MediaID — идентификатор медиа на сервере
	MediaID string
}

// ParseMXC разбирает строку mxc://server/mediaId.
// Пустые части и лишние сегменты пути считаются ошибкой.
func ParseMXC(raw string) (MXC, error) {
	if !strings.HasPrefix(raw, mxcScheme) {
		return MXC{}, fmt.Errorf("%w: %q", ErrInvalidMXC, raw)
	}

	server, mediaID, ok := strings.Cut(strings.TrimPrefix(raw, mxcScheme), "/")
	if !ok || server == "" || mediaID == "" || strings.Contains(mediaID, "/") {
		return MXC{}, fmt.Errorf("%w: %q", ErrInvalidMXC, raw)
	}

	return MXC{Server: server, MediaID: mediaID}, nil
}

// String возвращает MXC URI в каноническом виде.
func (m MXC) String() string {
	return mxcScheme + m.Server + "/" + m.MediaID
}
