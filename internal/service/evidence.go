// evidence.go — сборка evidence bundle для файла.
// Один ответ с дескриптором файла, сертификатом и свежими записями
// журнала доступа — всё, что нужно третьей стороне для независимой
// проверки против публичного ledger.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/arturkryukov/datavault/internal/apperr"
	"github.com/arturkryukov/datavault/internal/domain/model"
	"github.com/arturkryukov/datavault/internal/repository"
)

// EvidenceBundle — доказательная выписка по файлу.
type EvidenceBundle struct {
	// File — дескриптор файла (без ключей шифрования)
	File EvidenceFile
	// Certificate — сертификат целостности (nil — не выпускался)
	Certificate *model.Certificate
	// AccessLog — свежие записи журнала (новые первыми)
	AccessLog []*model.AccessLogEntry
	// Checks — производные признаки полноты доказательств
	Checks EvidenceChecks
}

// EvidenceFile — публичный дескриптор файла в выписке.
type EvidenceFile struct {
	ID                  string
	FileName            string
	FileType            string
	Size                int64
	ContentHash         string
	LedgerTransactionID string
	CreatedAt           time.Time
}

// EvidenceChecks — производные признаки выписки.
type EvidenceChecks struct {
	// HasCertificate — сертификат выпущен
	HasCertificate bool
	// HasLedgerAnchor — хэш заякорен в ledger
	HasLedgerAnchor bool
	// HasAccessEvidence — журнал доступа непуст
	HasAccessEvidence bool
}

// EvidenceService — сборка доказательных выписок.
type EvidenceService struct {
	fileRepo    repository.FileRepository
	profileRepo repository.ProfileRepository
	grantRepo   repository.GrantRepository
	certRepo    repository.CertificateRepository
	accessLog   repository.AccessLogRepository
	logLimit    int
	logger      *slog.Logger
}

// NewEvidenceService создаёт сервис выписок.
// logLimit — максимум записей журнала в выписке.
func NewEvidenceService(
	fileRepo repository.FileRepository,
	profileRepo repository.ProfileRepository,
	grantRepo repository.GrantRepository,
	certRepo repository.CertificateRepository,
	accessLog repository.AccessLogRepository,
	logLimit int,
	logger *slog.Logger,
) *EvidenceService {
	return &EvidenceService{
		fileRepo:    fileRepo,
		profileRepo: profileRepo,
		grantRepo:   grantRepo,
		certRepo:    certRepo,
		accessLog:   accessLog,
		logLimit:    logLimit,
		logger:      logger.With(slog.String("component", "evidence_service")),
	}
}

// Bundle собирает доказательную выписку по файлу.
// Доступна владельцу и держателю действующего гранта.
func (s *EvidenceService) Bundle(ctx context.Context, authIdentityID, fileID string) (*EvidenceBundle, error) {
	profile, err := s.profileRepo.GetOrCreate(ctx, authIdentityID)
	if err != nil {
		return nil, fmt.Errorf("провижининг профиля: %w", err)
	}

	record, err := s.loadActive(ctx, fileID)
	if err != nil {
		return nil, err
	}

	// Владелец или действующий грант
	if record.OwnerID != profile.ID {
		if _, err := s.grantRepo.FindActive(ctx, record.ID, profile.ID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, apperr.New(apperr.KindForbidden, "нет прав на выписку по файлу")
			}
			return nil, fmt.Errorf("проверка гранта: %w", err)
		}
	}

	// Сертификат: отсутствие — не ошибка
	cert, err := s.certRepo.GetByFileID(ctx, fileID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("получение сертификата: %w", err)
	}

	entries, err := s.accessLog.ListByFile(ctx, fileID, s.logLimit)
	if err != nil {
		return nil, fmt.Errorf("выборка журнала доступа: %w", err)
	}

	return &EvidenceBundle{
		File: EvidenceFile{
			ID:                  record.ID,
			FileName:            record.FileName,
			FileType:            record.FileType,
			Size:                record.Size,
			ContentHash:         record.ContentHash,
			LedgerTransactionID: record.LedgerTransactionID,
			CreatedAt:           record.CreatedAt,
		},
		Certificate: cert,
		AccessLog:   entries,
		Checks: EvidenceChecks{
			HasCertificate:    cert != nil,
			HasLedgerAnchor:   record.LedgerTransactionID != "",
			HasAccessEvidence: len(entries) > 0,
		},
	}, nil
}

// OwnerRecord возвращает active-запись, если запрашивает владелец.
// Используется рендером сертификата (owner-only поверхность).
func (s *EvidenceService) OwnerRecord(ctx context.Context, authIdentityID, fileID string) (*model.FileRecord, *model.Certificate, error) {
	profile, err := s.profileRepo.GetOrCreate(ctx, authIdentityID)
	if err != nil {
		return nil, nil, fmt.Errorf("провижининг профиля: %w", err)
	}

	record, err := s.loadActive(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}
	if record.OwnerID != profile.ID {
		return nil, nil, apperr.New(apperr.KindForbidden, "документ сертификата доступен только владельцу")
	}

	cert, err := s.certRepo.GetByFileID(ctx, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, apperr.New(apperr.KindNotFound, "сертификат для файла не выпускался")
		}
		return nil, nil, fmt.Errorf("получение сертификата: %w", err)
	}

	return record, cert, nil
}

// ListOwned возвращает активные файлы владельца (новые первыми).
// Выборка идёт по профилю запрашивающего: чужие файлы в неё не
// попадают по построению, отдельная авторизация не нужна.
func (s *EvidenceService) ListOwned(ctx context.Context, authIdentityID string, limit, offset int) ([]*model.FileRecord, error) {
	profile, err := s.profileRepo.GetOrCreate(ctx, authIdentityID)
	if err != nil {
		return nil, fmt.Errorf("провижининг профиля: %w", err)
	}

	records, err := s.fileRepo.ListByOwner(ctx, profile.ID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("выборка файлов владельца: %w", err)
	}
	return records, nil
}

func (s *EvidenceService) loadActive(ctx context.Context, fileID string) (*model.FileRecord, error) {
	record, err := s.fileRepo.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "файл не найден")
		}
		return nil, fmt.Errorf("получение записи файла: %w", err)
	}
	if record.Status != model.FileStatusActive {
		return nil, apperr.New(apperr.KindNotFound, "файл не найден")
	}
	return record, nil
}
