package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/arturkryukov/datavault/internal/domain/model"
)

// ProfileRepository — доступ к профилям идентичностей.
type ProfileRepository interface {
	// GetByID возвращает профиль по UUID или ErrNotFound.
	GetByID(ctx context.Context, id string) (*model.Profile, error)
	// GetOrCreate возвращает профиль по идентификатору identity provider,
	// создавая его с тарифом standard при первом обращении.
	GetOrCreate(ctx context.Context, authIdentityID string) (*model.Profile, error)
	// SetTier обновляет тариф профиля.
	SetTier(ctx context.Context, id, tier string) error
}

type profileRepo struct {
	db DBTX
}

// NewProfileRepository создаёт репозиторий профилей.
func NewProfileRepository(db DBTX) ProfileRepository {
	return &profileRepo{db: db}
}

const profileColumns = `id, auth_identity_id, tier, created_at`

func scanProfile(row pgx.Row) (*model.Profile, error) {
	p := &model.Profile{}
	if err := row.Scan(&p.ID, &p.AuthIdentityID, &p.Tier, &p.CreatedAt); err != nil {
		return nil, err
	}
	return p, nil
}

// GetByID возвращает профиль по UUID.
func (r *profileRepo) GetByID(ctx context.Context, id string) (*model.Profile, error) {
	query := fmt.Sprintf(`SELECT %s FROM profiles WHERE id = $1`, profileColumns)

	p, err := scanProfile(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения профиля: %w", err)
	}
	return p, nil
}

// GetOrCreate — провижининг профиля при первом обращении.
// Upsert через ON CONFLICT: конкурентные первые запросы одной
// идентичности не приводят к дублям.
func (r *profileRepo) GetOrCreate(ctx context.Context, authIdentityID string) (*model.Profile, error) {
	query := fmt.Sprintf(`
		INSERT INTO profiles (id, auth_identity_id, tier)
		VALUES (gen_random_uuid(), $1, 'standard')
		ON CONFLICT (auth_identity_id)
			DO UPDATE SET auth_identity_id = EXCLUDED.auth_identity_id
		RETURNING %s`, profileColumns)

	p, err := scanProfile(r.db.QueryRow(ctx, query, authIdentityID))
	if err != nil {
		return nil, fmt.Errorf("ошибка провижининга профиля: %w", err)
	}
	return p, nil
}

// SetTier обновляет тариф профиля.
func (r *profileRepo) SetTier(ctx context.Context, id, tier string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE profiles SET tier = $2 WHERE id = $1`, id, tier)
	if err != nil {
		return fmt.Errorf("ошибка обновления тарифа: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
