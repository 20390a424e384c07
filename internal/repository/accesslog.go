package repository

import (
	"context"
	"fmt"

	"github.com/arturkryukov/datavault/internal/domain/model"
)

// AccessLogRepository — append-only журнал попыток доступа.
// Update/Delete-операций у интерфейса нет намеренно.
type AccessLogRepository interface {
	// Insert добавляет запись о попытке доступа.
	Insert(ctx context.Context, e *model.AccessLogEntry) error
	// ListByFile возвращает журнал файла (новые первыми).
	ListByFile(ctx context.Context, fileID string, limit int) ([]*model.AccessLogEntry, error)
}

type accessLogRepo struct {
	db DBTX
}

// NewAccessLogRepository создаёт репозиторий журнала доступа.
func NewAccessLogRepository(db DBTX) AccessLogRepository {
	return &accessLogRepo{db: db}
}

// Insert добавляет запись. Вызывается на пути retrieval и для успеха,
// и для отказа — полнота журнала важнее деталей ответа клиенту.
func (r *accessLogRepo) Insert(ctx context.Context, e *model.AccessLogEntry) error {
	query := `
		INSERT INTO access_logs (file_id, user_id, access_type, status, error)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.Exec(ctx, query, e.FileID, e.UserID, e.AccessType, e.Status, e.Error)
	if err != nil {
		return fmt.Errorf("ошибка записи в журнал доступа: %w", err)
	}
	return nil
}

// ListByFile возвращает журнал файла.
func (r *accessLogRepo) ListByFile(ctx context.Context, fileID string, limit int) ([]*model.AccessLogEntry, error) {
	query := `
		SELECT id, file_id, user_id, access_type, status, error, created_at
		FROM access_logs
		WHERE file_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, fileID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки журнала доступа: %w", err)
	}
	defer rows.Close()

	var result []*model.AccessLogEntry
	for rows.Next() {
		e := &model.AccessLogEntry{}
		if err := rows.Scan(&e.ID, &e.FileID, &e.UserID, &e.AccessType,
			&e.Status, &e.Error, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи журнала: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации результатов: %w", err)
	}
	return result, nil
}
