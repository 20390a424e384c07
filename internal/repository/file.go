package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/arturkryukov/datavault/internal/domain/model"
)

// fileColumns — список столбцов таблицы file_records для SELECT-запросов.
// DRY: одно место для всех SELECT'ов.
const fileColumns = `id, owner_id, file_name, file_type, size,
	storage_locator, encryption_key, encryption_nonce, content_hash,
	ledger_transaction_id, certificate_token_id, certificate_serial,
	status, created_at, updated_at`

// FileRepository — доступ к записям файлов.
// Жизненный цикл записи отражает saga ingestion: CreatePending фиксирует
// намерение (ключ, nonce и хэш сохраняются сразу), промежуточные Set*
// записывают внешние эффекты по мере их выполнения, Finalize переводит
// запись в active. Reconciler находит застрявшие pending-записи через
// ListPendingOlderThan.
type FileRepository interface {
	// CreatePending вставляет pending-запись до любых внешних эффектов.
	CreatePending(ctx context.Context, f *model.FileRecord) error
	// SetStorageLocator записывает локатор блоба после успешной загрузки.
	SetStorageLocator(ctx context.Context, fileID, locator string) error
	// SetLedgerAnchor записывает транзакцию якоря после подтверждения.
	SetLedgerAnchor(ctx context.Context, fileID, txID string) error
	// Finalize переводит запись pending -> active.
	Finalize(ctx context.Context, fileID string) error
	// MarkFailed переводит запись pending -> failed (reconciler исчерпал попытки).
	MarkFailed(ctx context.Context, fileID string) error
	// GetByID возвращает запись по UUID или ErrNotFound.
	GetByID(ctx context.Context, fileID string) (*model.FileRecord, error)
	// ListByOwner возвращает активные файлы владельца (новые первыми).
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*model.FileRecord, error)
	// SetCertificate записывает пару (token_id, serial) после минта.
	SetCertificate(ctx context.Context, fileID, tokenID string, serial int64) error
	// ListPendingOlderThan возвращает pending-записи старше порога.
	ListPendingOlderThan(ctx context.Context, threshold time.Time, limit int) ([]*model.FileRecord, error)
}

// fileRepo — реализация FileRepository через pgx.
type fileRepo struct {
	db DBTX
}

// NewFileRepository создаёт репозиторий файлов.
func NewFileRepository(db DBTX) FileRepository {
	return &fileRepo{db: db}
}

// scanFile сканирует строку file_records в модель.
func scanFile(row pgx.Row) (*model.FileRecord, error) {
	f := &model.FileRecord{}
	err := row.Scan(
		&f.ID, &f.OwnerID, &f.FileName, &f.FileType, &f.Size,
		&f.StorageLocator, &f.EncryptionKey, &f.EncryptionNonce, &f.ContentHash,
		&f.LedgerTransactionID, &f.CertificateTokenID, &f.CertificateSerial,
		&f.Status, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// CreatePending вставляет pending-запись. Ключ, nonce и хэш сохраняются
// до внешних эффектов — reconciler сможет довести saga до конца.
func (r *fileRepo) CreatePending(ctx context.Context, f *model.FileRecord) error {
	query := `
		INSERT INTO file_records
			(id, owner_id, file_name, file_type, size,
			 encryption_key, encryption_nonce, content_hash, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending')`

	_, err := r.db.Exec(ctx, query,
		f.ID, f.OwnerID, f.FileName, f.FileType, f.Size,
		f.EncryptionKey, f.EncryptionNonce, f.ContentHash,
	)
	if err != nil {
		return fmt.Errorf("ошибка создания записи файла: %w", err)
	}
	return nil
}

// SetStorageLocator записывает локатор блоба.
func (r *fileRepo) SetStorageLocator(ctx context.Context, fileID, locator string) error {
	return r.updatePending(ctx, fileID,
		`UPDATE file_records SET storage_locator = $2, updated_at = now()
		 WHERE id = $1 AND status = 'pending'`, locator)
}

// SetLedgerAnchor записывает транзакцию якоря.
func (r *fileRepo) SetLedgerAnchor(ctx context.Context, fileID, txID string) error {
	return r.updatePending(ctx, fileID,
		`UPDATE file_records SET ledger_transaction_id = $2, updated_at = now()
		 WHERE id = $1 AND status = 'pending'`, txID)
}

// Finalize переводит запись pending -> active.
func (r *fileRepo) Finalize(ctx context.Context, fileID string) error {
	return r.updatePending(ctx, fileID,
		`UPDATE file_records SET status = 'active', updated_at = now()
		 WHERE id = $1 AND status = 'pending'`)
}

// MarkFailed переводит запись pending -> failed.
func (r *fileRepo) MarkFailed(ctx context.Context, fileID string) error {
	return r.updatePending(ctx, fileID,
		`UPDATE file_records SET status = 'failed', updated_at = now()
		 WHERE id = $1 AND status = 'pending'`)
}

// updatePending выполняет UPDATE с условием status = 'pending'.
// 0 затронутых строк — запись не найдена либо уже не pending.
func (r *fileRepo) updatePending(ctx context.Context, fileID, query string, extra ...any) error {
	args := append([]any{fileID}, extra...)
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("ошибка обновления записи файла: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID возвращает запись по UUID или ErrNotFound.
func (r *fileRepo) GetByID(ctx context.Context, fileID string) (*model.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM file_records WHERE id = $1`, fileColumns)

	f, err := scanFile(r.db.QueryRow(ctx, query, fileID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения файла: %w", err)
	}
	return f, nil
}

// ListByOwner возвращает активные файлы владельца.
func (r *fileRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*model.FileRecord, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM file_records
		 WHERE owner_id = $1 AND status = 'active'
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, fileColumns)

	rows, err := r.db.Query(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки файлов владельца: %w", err)
	}
	defer rows.Close()

	return collectFiles(rows)
}

// SetCertificate записывает пару сертификата на записи файла.
// Пара выставляется атомарно и только если ещё не выставлена —
// CHECK-ограничение таблицы не допускает половинной пары.
func (r *fileRepo) SetCertificate(ctx context.Context, fileID, tokenID string, serial int64) error {
	query := `
		UPDATE file_records
		SET certificate_token_id = $2, certificate_serial = $3, updated_at = now()
		WHERE id = $1 AND certificate_token_id IS NULL`

	tag, err := r.db.Exec(ctx, query, fileID, tokenID, serial)
	if err != nil {
		return fmt.Errorf("ошибка записи сертификата на файле: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// ListPendingOlderThan возвращает застрявшие pending-записи для reconciler.
func (r *fileRepo) ListPendingOlderThan(ctx context.Context, threshold time.Time, limit int) ([]*model.FileRecord, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM file_records
		 WHERE status = 'pending' AND created_at < $1
		 ORDER BY created_at LIMIT $2`, fileColumns)

	rows, err := r.db.Query(ctx, query, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки pending-записей: %w", err)
	}
	defer rows.Close()

	return collectFiles(rows)
}

// collectFiles вычитывает все строки результата.
func collectFiles(rows pgx.Rows) ([]*model.FileRecord, error) {
	var result []*model.FileRecord
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования файла: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации результатов: %w", err)
	}
	return result, nil
}
