package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bigkaa/mediagate/internal/domain/model"
	"github.com/bigkaa/mediagate/internal/media"
	"github.com/bigkaa/mediagate/internal/repository"
)

// auditedScanner — сканер, записывающий каждую проверку в журнал.
// Ошибка записи в журнал не влияет на результат проверки.
type auditedScanner struct {
	media.Scanner
	repo         repository.ScanAuditRepository
	thumbnailMXC string
	logger       *slog.Logger
}

func (a *auditedScanner) Scan(ctx context.Context, mxc string, file *model.EncryptedFile) (bool, error) {
	start := time.Now()
	clean, err := a.Scanner.Scan(ctx, mxc, file)

	// Отменённая вызывающим проверка вердиктом не является
	if errors.Is(err, context.Canceled) {
		return clean, err
	}

	rec := &model.AuditRecord{
		MXC:        mxc,
		Target:     model.TargetSource,
		Clean:      clean && err == nil,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if a.thumbnailMXC != "" && mxc == a.thumbnailMXC {
		rec.Target = model.TargetThumbnail
	}
	if err != nil {
		msg := err.Error()
		rec.Error = &msg
	}

	if recErr := a.repo.Record(context.WithoutCancel(ctx), rec); recErr != nil {
		a.logger.Warn("Не удалось записать проверку в журнал",
			slog.String("mxc", mxc),
			slog.String("error", recErr.Error()),
		)
	}

	return clean, err
}
