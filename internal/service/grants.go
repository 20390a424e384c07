// grants.go — управление временными разрешениями на чтение файлов.
// Выдаёт и отзывает гранты только владелец. Зеркалирование ACL в
// ledger выполняется best-effort: источник истины для авторизации —
// строка в БД, недоступность ledger не блокирует операцию.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/arturkryukov/datavault/internal/apperr"
	"github.com/arturkryukov/datavault/internal/domain/model"
	"github.com/arturkryukov/datavault/internal/repository"
)

// ACLMirror — необязательное зеркалирование прав в ledger.
// Реализуется ledger.Client; в тестах — заглушкой.
type ACLMirror interface {
	GrantAccess(ctx context.Context, topicID, accountID string) (string, error)
	RevokeAccess(ctx context.Context, topicID, accountID string) (string, error)
}

// GrantService — выдача и отзыв грантов.
type GrantService struct {
	fileRepo    repository.FileRepository
	profileRepo repository.ProfileRepository
	grantRepo   repository.GrantRepository
	mirror      ACLMirror
	topicID     string
	logger      *slog.Logger
}

// NewGrantService создаёт сервис грантов.
// mirror может быть nil — зеркалирование отключено.
func NewGrantService(
	fileRepo repository.FileRepository,
	profileRepo repository.ProfileRepository,
	grantRepo repository.GrantRepository,
	mirror ACLMirror,
	topicID string,
	logger *slog.Logger,
) *GrantService {
	return &GrantService{
		fileRepo:    fileRepo,
		profileRepo: profileRepo,
		grantRepo:   grantRepo,
		mirror:      mirror,
		topicID:     topicID,
		logger:      logger.With(slog.String("component", "grant_service")),
	}
}

// Grant выдаёт получателю временное разрешение на чтение файла.
// expiresAt обязан быть строго в будущем.
func (s *GrantService) Grant(ctx context.Context, authIdentityID, fileID, granteeID string, expiresAt time.Time) (*model.PermissionGrant, error) {
	if !expiresAt.After(time.Now()) {
		return nil, apperr.New(apperr.KindValidation, "срок действия гранта должен быть в будущем")
	}

	profile, record, err := s.ownedFile(ctx, authIdentityID, fileID)
	if err != nil {
		return nil, err
	}

	if granteeID == profile.ID {
		return nil, apperr.New(apperr.KindValidation, "нельзя выдать грант самому себе")
	}
	if _, err := s.profileRepo.GetByID(ctx, granteeID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "профиль получателя не найден")
		}
		return nil, fmt.Errorf("получение профиля получателя: %w", err)
	}

	grant := &model.PermissionGrant{
		ID:        uuid.NewString(),
		FileID:    record.ID,
		GranteeID: granteeID,
		GrantedBy: profile.ID,
		Status:    model.GrantStatusActive,
		ExpiresAt: expiresAt,
	}
	if err := s.grantRepo.Create(ctx, grant); err != nil {
		return nil, err
	}

	s.mirrorACL(ctx, granteeID, "grant")

	s.logger.Info("Грант выдан",
		slog.String("grant_id", grant.ID),
		slog.String("file_id", fileID),
		slog.String("grantee_id", granteeID),
		slog.Time("expires_at", expiresAt),
	)
	return grant, nil
}

// Revoke отзывает грант. Доступно только владельцу файла.
// Отзыв уже отозванного гранта — допустимая no-op операция.
func (s *GrantService) Revoke(ctx context.Context, authIdentityID, fileID, grantID string) error {
	_, record, err := s.ownedFile(ctx, authIdentityID, fileID)
	if err != nil {
		return err
	}

	grant, err := s.grantRepo.GetByID(ctx, grantID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.New(apperr.KindNotFound, "грант не найден")
		}
		return fmt.Errorf("получение гранта: %w", err)
	}
	if grant.FileID != record.ID {
		return apperr.New(apperr.KindNotFound, "грант не найден")
	}

	if err := s.grantRepo.Revoke(ctx, grantID); err != nil {
		return err
	}

	s.mirrorACL(ctx, grant.GranteeID, "revoke")

	s.logger.Info("Грант отозван",
		slog.String("grant_id", grantID),
		slog.String("file_id", fileID),
	)
	return nil
}

// List возвращает все гранты файла. Доступно только владельцу.
func (s *GrantService) List(ctx context.Context, authIdentityID, fileID string) ([]*model.PermissionGrant, error) {
	_, record, err := s.ownedFile(ctx, authIdentityID, fileID)
	if err != nil {
		return nil, err
	}
	return s.grantRepo.ListByFile(ctx, record.ID)
}

// ownedFile возвращает профиль и active-запись файла, если запрашивает
// владелец.
func (s *GrantService) ownedFile(ctx context.Context, authIdentityID, fileID string) (*model.Profile, *model.FileRecord, error) {
	profile, err := s.profileRepo.GetOrCreate(ctx, authIdentityID)
	if err != nil {
		return nil, nil, fmt.Errorf("провижининг профиля: %w", err)
	}

	record, err := s.fileRepo.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, apperr.New(apperr.KindNotFound, "файл не найден")
		}
		return nil, nil, fmt.Errorf("получение записи файла: %w", err)
	}
	if record.Status != model.FileStatusActive {
		return nil, nil, apperr.New(apperr.KindNotFound, "файл не найден")
	}
	if record.OwnerID != profile.ID {
		return nil, nil, apperr.New(apperr.KindForbidden, "грантами файла управляет только владелец")
	}
	return profile, record, nil
}

// mirrorACL зеркалирует изменение прав в ledger. Любая ошибка — WARN,
// операция уже состоялась в БД.
func (s *GrantService) mirrorACL(ctx context.Context, granteeID, action string) {
	if s.mirror == nil {
		return
	}

	var err error
	switch action {
	case "grant":
		_, err = s.mirror.GrantAccess(ctx, s.topicID, granteeID)
	case "revoke":
		_, err = s.mirror.RevokeAccess(ctx, s.topicID, granteeID)
	}
	if err != nil {
		s.logger.Warn("Зеркалирование ACL в ledger не удалось",
			slog.String("action", action),
			slog.String("grantee_id", granteeID),
			slog.String("error", err.Error()),
		)
	}
}
