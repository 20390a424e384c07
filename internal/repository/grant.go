package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/arturkryukov/datavault/internal/domain/model"
)

// GrantRepository — доступ к временным разрешениям на чтение файлов.
type GrantRepository interface {
	// Create вставляет новый активный грант.
	Create(ctx context.Context, g *model.PermissionGrant) error
	// Revoke переводит грант в revoked. Идемпотентен для уже отозванных.
	Revoke(ctx context.Context, grantID string) error
	// FindActive возвращает действующий грант пары (файл, получатель)
	// или ErrNotFound. Истёкшие и отозванные гранты не учитываются.
	FindActive(ctx context.Context, fileID, granteeID string) (*model.PermissionGrant, error)
	// GetByID возвращает грант по UUID или ErrNotFound.
	GetByID(ctx context.Context, grantID string) (*model.PermissionGrant, error)
	// ListByFile возвращает все гранты файла (новые первыми).
	ListByFile(ctx context.Context, fileID string) ([]*model.PermissionGrant, error)
}

type grantRepo struct {
	db DBTX
}

// NewGrantRepository создаёт репозиторий грантов.
func NewGrantRepository(db DBTX) GrantRepository {
	return &grantRepo{db: db}
}

const grantColumns = `id, file_id, grantee_id, granted_by, status, expires_at, created_at`

func scanGrant(row pgx.Row) (*model.PermissionGrant, error) {
	g := &model.PermissionGrant{}
	err := row.Scan(&g.ID, &g.FileID, &g.GranteeID, &g.GrantedBy,
		&g.Status, &g.ExpiresAt, &g.CreatedAt)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// Create вставляет новый активный грант.
func (r *grantRepo) Create(ctx context.Context, g *model.PermissionGrant) error {
	query := `
		INSERT INTO permission_grants
			(id, file_id, grantee_id, granted_by, status, expires_at)
		VALUES ($1, $2, $3, $4, 'active', $5)`

	_, err := r.db.Exec(ctx, query, g.ID, g.FileID, g.GranteeID, g.GrantedBy, g.ExpiresAt)
	if err != nil {
		return fmt.Errorf("ошибка создания гранта: %w", err)
	}
	return nil
}

// Revoke переводит грант в revoked.
func (r *grantRepo) Revoke(ctx context.Context, grantID string) error {
	query := `UPDATE permission_grants SET status = 'revoked' WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, grantID)
	if err != nil {
		return fmt.Errorf("ошибка отзыва гранта: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FindActive возвращает действующий грант пары (файл, получатель).
// Истечение проверяется на стороне БД: now() — единые часы для всех
// реплик сервиса.
func (r *grantRepo) FindActive(ctx context.Context, fileID, granteeID string) (*model.PermissionGrant, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM permission_grants
		WHERE file_id = $1 AND grantee_id = $2
		  AND status = 'active' AND expires_at > now()
		ORDER BY expires_at DESC LIMIT 1`, grantColumns)

	g, err := scanGrant(r.db.QueryRow(ctx, query, fileID, granteeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка поиска гранта: %w", err)
	}
	return g, nil
}

// GetByID возвращает грант по UUID.
func (r *grantRepo) GetByID(ctx context.Context, grantID string) (*model.PermissionGrant, error) {
	query := fmt.Sprintf(`SELECT %s FROM permission_grants WHERE id = $1`, grantColumns)

	g, err := scanGrant(r.db.QueryRow(ctx, query, grantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения гранта: %w", err)
	}
	return g, nil
}

// ListByFile возвращает все гранты файла.
func (r *grantRepo) ListByFile(ctx context.Context, fileID string) ([]*model.PermissionGrant, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM permission_grants WHERE file_id = $1 ORDER BY created_at DESC`,
		grantColumns)

	rows, err := r.db.Query(ctx, query, fileID)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки грантов файла: %w", err)
	}
	defer rows.Close()

	var result []*model.PermissionGrant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования гранта: %w", err)
		}
		result = append(result, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации результатов: %w", err)
	}
	return result, nil
}
