package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/mediagate/internal/domain/model"
)

// defaultAuditLimit — лимит выборки по умолчанию.
const defaultAuditLimit = 50

// ScanAuditRepository — интерфейс для таблицы scan_audit.
type ScanAuditRepository interface {
	// Record сохраняет запись журнала. Пустые ID и ScannedAt заполняются.
	Record(ctx context.Context, rec *model.AuditRecord) error
	// ListByMXC возвращает последние записи по ресурсу (новые первыми).
	ListByMXC(ctx context.Context, mxc string, limit int) ([]*model.AuditRecord, error)
}

// scanAuditRepo — реализация ScanAuditRepository.
type scanAuditRepo struct {
	db DBTX
}

// NewScanAuditRepository создаёт репозиторий журнала проверок.
func NewScanAuditRepository(db DBTX) ScanAuditRepository {
	return &scanAuditRepo{db: db}
}

func (r *scanAuditRepo) Record(ctx context.Context, rec *model.AuditRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.ScannedAt.IsZero() {
		rec.ScannedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO scan_audit (id, mxc, target, clean, error, duration_ms, scanned_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.Exec(ctx, query,
		rec.ID, rec.MXC, string(rec.Target), rec.Clean, rec.Error, rec.DurationMs, rec.ScannedAt,
	)
	if err != nil {
		return fmt.Errorf("ошибка записи scan_audit: %w", err)
	}
	return nil
}

func (r *scanAuditRepo) ListByMXC(ctx context.Context, mxc string, limit int) ([]*model.AuditRecord, error) {
	if limit <= 0 {
		limit = defaultAuditLimit
	}

	query := `
		SELECT id, mxc, target, clean, error, duration_ms, scanned_at
		FROM scan_audit
		WHERE mxc = $1
		ORDER BY scanned_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, mxc, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки scan_audit: %w", err)
	}
	defer rows.Close()

	var records []*model.AuditRecord
	for rows.Next() {
		rec, err := scanAuditRow(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения scan_audit: %w", err)
	}
	return records, nil
}

// rowScanner — общий интерфейс pgx.Row и pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanAuditRow сканирует строку scan_audit в модель.
func scanAuditRow(row rowScanner) (*model.AuditRecord, error) {
	rec := &model.AuditRecord{}
	var (
		id     uuid.UUID
		target string
	)
	if err := row.Scan(&id, &rec.MXC, &target, &rec.Clean, &rec.Error, &rec.DurationMs, &rec.ScannedAt); err != nil {
		return nil, fmt.Errorf("ошибка сканирования scan_audit: %w", err)
	}
	rec.ID = id.String()
	rec.Target = model.ScanTarget(target)
	rec.ScannedAt = rec.ScannedAt.UTC()
	return rec, nil
}
