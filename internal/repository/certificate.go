package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/arturkryukov/datavault/internal/domain/model"
)

// CertificateRepository — доступ к сертификатам целостности.
// UNIQUE(file_id) в таблице — жёсткая гарантия «не более одного
// сертификата на файл» даже при конкурентных запросах минта.
type CertificateRepository interface {
	// Insert вставляет сертификат. Повторная вставка для того же файла
	// возвращает ErrAlreadyExists.
	Insert(ctx context.Context, c *model.Certificate) error
	// GetByFileID возвращает сертификат файла или ErrNotFound.
	GetByFileID(ctx context.Context, fileID string) (*model.Certificate, error)
}

type certificateRepo struct {
	db DBTX
}

// NewCertificateRepository создаёт репозиторий сертификатов.
func NewCertificateRepository(db DBTX) CertificateRepository {
	return &certificateRepo{db: db}
}

const certificateColumns = `id, file_id, owner_id, token_id, serial_number,
	ledger_transaction_id, metadata, created_at`

// Insert вставляет сертификат; конфликт по file_id -> ErrAlreadyExists.
func (r *certificateRepo) Insert(ctx context.Context, c *model.Certificate) error {
	query := `
		INSERT INTO certificates
			(id, file_id, owner_id, token_id, serial_number,
			 ledger_transaction_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.Exec(ctx, query,
		c.ID, c.FileID, c.OwnerID, c.TokenID, c.SerialNumber,
		c.LedgerTransactionID, c.Metadata,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrAlreadyExists
		}
		return fmt.Errorf("ошибка вставки сертификата: %w", err)
	}
	return nil
}

// GetByFileID возвращает сертификат файла.
func (r *certificateRepo) GetByFileID(ctx context.Context, fileID string) (*model.Certificate, error) {
	query := fmt.Sprintf(`SELECT %s FROM certificates WHERE file_id = $1`, certificateColumns)

	c := &model.Certificate{}
	err := r.db.QueryRow(ctx, query, fileID).Scan(
		&c.ID, &c.FileID, &c.OwnerID, &c.TokenID, &c.SerialNumber,
		&c.LedgerTransactionID, &c.Metadata, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения сертификата: %w", err)
	}
	return c, nil
}
