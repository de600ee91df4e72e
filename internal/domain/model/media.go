package model

// ResizeMethod — способ построения миниатюры (scale или crop).
type ResizeMethod string

const (
	// ResizeScale — пропорциональное масштабирование
	ResizeScale ResizeMethod = "scale"
	// ResizeCrop — обрезка до точных размеров
	ResizeCrop ResizeMethod = "crop"
)

// Типы сообщений Matrix с медиа-вложениями.
const (
	MsgTypeImage = "m.image"
	MsgTypeAudio = "m.audio"
	MsgTypeVideo = "m.video"
	MsgTypeFile  = "m.file"
)

// JWK — ключ AES-CTR в формате JSON Web Key (из EncryptedFile).
type JWK struct {
	Kty    string   `json:"kty"`
	KeyOps []string `json:"key_ops"`
	Alg    string   `json:"alg"`
	K      string   `json:"k"`
	Ext    bool     `json:"ext"`
}

// EncryptedFile — дескриптор зашифрованного вложения (спецификация Matrix E2EE).
// Передаётся сканеру как есть: сканер сам расшифровывает содержимое.
type EncryptedFile struct {
	URL    string            `json:"url"`
	Key    JWK               `json:"key"`
	IV     string            `json:"iv"`
	Hashes map[string]string `json:"hashes"`
	V      string            `json:"v"`
}

// ThumbnailInfo — метаданные миниатюры.
type ThumbnailInfo struct {
	Mimetype string `json:"mimetype,omitempty"`
	Size     int64  `json:"size,omitempty"`
	W        int    `json:"w,omitempty"`
	H        int    `json:"h,omitempty"`
}

// MediaInfo — блок info медиа-события.
type MediaInfo struct {
	Mimetype      string         `json:"mimetype,omitempty"`
	Size          int64          `json:"size,omitempty"`
	W             int            `json:"w,omitempty"`
	H             int            `json:"h,omitempty"`
	Duration      int64          `json:"duration,omitempty"`
	ThumbnailURL  string         `json:"thumbnail_url,omitempty"`
	ThumbnailFile *EncryptedFile `json:"thumbnail_file,omitempty"`
	ThumbnailInfo *ThumbnailInfo `json:"thumbnail_info,omitempty"`
}

// MediaEventContent — содержимое события m.room.message с медиа.
type MediaEventContent struct {
	Body    string         `json:"body,omitempty"`
	MsgType string         `json:"msgtype,omitempty"`
	URL     string         `json:"url,omitempty"`
	File    *EncryptedFile `json:"file,omitempty"`
	Info    *MediaInfo     `json:"info,omitempty"`
}

// PreparedThumbnail — подготовленная миниатюра.
type PreparedThumbnail struct {
	MXC  string
	File *EncryptedFile
}

// PreparedMedia — подготовленное медиа: источник и опциональная миниатюра.
// Thumbnail == nil, если событие не объявляло миниатюру.
type PreparedMedia struct {
	MXC       string
	File      *EncryptedFile
	Thumbnail *PreparedThumbnail
}

// PrepareEventContent строит PreparedMedia из содержимого события.
// Для зашифрованного вложения источник берётся из file.url, иначе из url.
// Миниатюра: thumbnail_file.url (зашифрованная) или thumbnail_url.
func PrepareEventContent(content MediaEventContent) PreparedMedia {
	prepared := PreparedMedia{MXC: content.URL}
	if content.File != nil {
		prepared.MXC = content.File.URL
		prepared.File = content.File
	}

	if content.Info == nil {
		return prepared
	}

	switch {
	case content.Info.ThumbnailFile != nil && content.Info.ThumbnailFile.URL != "":
		prepared.Thumbnail = &PreparedThumbnail{
			MXC:  content.Info.ThumbnailFile.URL,
			File: content.Info.ThumbnailFile,
		}
	case content.Info.ThumbnailURL != "":
		prepared.Thumbnail = &PreparedThumbnail{MXC: content.Info.ThumbnailURL}
	}

	return prepared
}
