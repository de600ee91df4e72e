package gate

import "github.com/bigkaa/mediagate/internal/domain/model"

// Kind — вид тела сообщения.
type Kind string

const (
	KindAudio Kind = "audio"
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindFile  Kind = "file"
)

// KindFromMsgType определяет вид тела по msgtype события.
// Неизвестные типы отображаются как файл.
func KindFromMsgType(msgType string) Kind {
	switch msgType {
	case model.MsgTypeAudio:
		return KindAudio
	case model.MsgTypeImage:
		return KindImage
	case model.MsgTypeVideo:
		return KindVideo
	default:
		return KindFile
	}
}

// Body — что отображается: заглушка или исходное тело.
type Body string

const (
	// BodyPlaceholder — тело «проверка файла» (всегда вида file)
	BodyPlaceholder Body = "placeholder"
	// BodyOriginal — исходное тело сообщения
	BodyOriginal Body = "original"
)

// Status — индикатор статуса проверки рядом с телом.
type Status string

const (
	StatusScanning Status = "scanning"
	StatusDone     Status = "done"
	StatusUnsafe   Status = "unsafe"
	StatusError    Status = "error"
)

// View — решение об отображении элемента.
type View struct {
	Phase  Phase  `json:"state"`
	Body   Body   `json:"body"`
	Kind   Kind   `json:"kind"`
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Decide — чистая политика отображения.
// Исходное тело и статус done — только если проверки завершены и обе безопасны.
func Decide(s State, kind Kind) View {
	v := View{
		Phase: s.Phase(),
		Body:  BodyPlaceholder,
		Kind:  KindFile,
	}

	switch {
	case s.Scanning:
		v.Status = StatusScanning
	case s.Safe:
		v.Body = BodyOriginal
		v.Kind = kind
		v.Status = StatusDone
	case s.Err != nil:
		v.Status = StatusError
		v.Error = s.Err.Error()
	default:
		v.Status = StatusUnsafe
	}

	return v
}
