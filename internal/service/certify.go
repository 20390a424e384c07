// certify.go — выпуск сертификата целостности файла.
// Минт NFT в существующей коллекции ledger и зеркало в БД.
// Гарантия «ровно один сертификат на файл» держится на
// UNIQUE(certificates.file_id): конкурентные запросы разрешает БД,
// а не память процесса.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arturkryukov/datavault/internal/apperr"
	"github.com/arturkryukov/datavault/internal/domain/model"
	"github.com/arturkryukov/datavault/internal/repository"
)

// Prometheus-метрики сертификации.
var (
	certificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dv_certifications_total",
		Help: "Общее количество запросов сертификации (по статусу).",
	}, []string{"status"})

	certificationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dv_certification_duration_seconds",
		Help:    "Длительность выпуска сертификата (включая минт в ledger).",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	})
)

// certificateMetadata — стандартизированные метаданные NFT-сертификата.
type certificateMetadata struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Attributes  []certificateAttribute `json:"attributes"`
	Extra       json.RawMessage        `json:"extra,omitempty"`
}

type certificateAttribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

// CertifyService — выпуск сертификатов целостности.
type CertifyService struct {
	fileRepo     repository.FileRepository
	profileRepo  repository.ProfileRepository
	certRepo     repository.CertificateRepository
	notary       Notary
	cache        *CacheService
	collectionID string
	logger       *slog.Logger
}

// NewCertifyService создаёт сервис сертификации.
func NewCertifyService(
	fileRepo repository.FileRepository,
	profileRepo repository.ProfileRepository,
	certRepo repository.CertificateRepository,
	notary Notary,
	cache *CacheService,
	collectionID string,
	logger *slog.Logger,
) *CertifyService {
	return &CertifyService{
		fileRepo:     fileRepo,
		profileRepo:  profileRepo,
		certRepo:     certRepo,
		notary:       notary,
		cache:        cache,
		collectionID: collectionID,
		logger:       logger.With(slog.String("component", "certify_service")),
	}
}

// Certify выпускает сертификат целостности файла.
// extra — опциональные метаданные вызывающего, включаются в документ
// сертификата как есть (nil — только стандартизированные поля).
//
// Pipeline:
//  1. Профиль запрашивающего; только владелец файла
//  2. Файл active и ещё не сертифицирован (повтор → отказ)
//  3. Стандартизированные метаданные сертификата
//  4. Минт в ledger (блокируется до подтверждения)
//  5. Вставка строки certificates — UNIQUE(file_id) отсекает гонку
//  6. Пара (token_id, serial) на записи файла
func (s *CertifyService) Certify(ctx context.Context, authIdentityID, fileID string, extra json.RawMessage) (*model.Certificate, error) {
	start := time.Now()

	if len(extra) > 0 && !json.Valid(extra) {
		certificationsTotal.WithLabelValues("validation").Inc()
		return nil, apperr.New(apperr.KindValidation, "поле metadata не является корректным JSON")
	}

	profile, err := s.profileRepo.GetOrCreate(ctx, authIdentityID)
	if err != nil {
		certificationsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("провижининг профиля: %w", err)
	}

	record, err := s.fileRepo.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			certificationsTotal.WithLabelValues("not_found").Inc()
			return nil, apperr.New(apperr.KindNotFound, "файл не найден")
		}
		certificationsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("получение записи файла: %w", err)
	}
	if record.Status != model.FileStatusActive {
		certificationsTotal.WithLabelValues("not_found").Inc()
		return nil, apperr.New(apperr.KindNotFound, "файл не найден")
	}

	// Сертифицирует только владелец
	if record.OwnerID != profile.ID {
		certificationsTotal.WithLabelValues("forbidden").Inc()
		return nil, apperr.New(apperr.KindForbidden, "сертификат может выпустить только владелец файла")
	}

	// Повторная сертификация — отказ, не идемпотентный успех
	if record.Certified() {
		certificationsTotal.WithLabelValues("already_certified").Inc()
		return nil, apperr.New(apperr.KindForbidden, "сертификат для файла уже выпущен")
	}

	metadata, err := buildCertificateMetadata(record, extra)
	if err != nil {
		certificationsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("формирование метаданных сертификата: %w", err)
	}

	// Минт в ledger
	serial, txID, err := s.notary.MintCertificate(ctx, s.collectionID, metadata)
	if err != nil {
		certificationsTotal.WithLabelValues("ledger_error").Inc()
		return nil, err
	}

	cert := &model.Certificate{
		ID:                  uuid.NewString(),
		FileID:              record.ID,
		OwnerID:             profile.ID,
		TokenID:             s.collectionID,
		SerialNumber:        serial,
		LedgerTransactionID: txID,
		Metadata:            metadata,
	}

	// UNIQUE(file_id) — единственный арбитр конкурентных минтов.
	// Проигравшая сторона получает 409; её NFT остаётся сиротой в
	// ledger, что безопасно: БД на него не ссылается.
	if err := s.certRepo.Insert(ctx, cert); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			certificationsTotal.WithLabelValues("conflict").Inc()
			s.logger.Warn("Конкурентный минт: сертификат уже записан",
				slog.String("file_id", fileID),
				slog.Int64("orphan_serial", serial),
			)
			return nil, apperr.New(apperr.KindConflict, "сертификат для файла уже существует")
		}
		certificationsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	if err := s.fileRepo.SetCertificate(ctx, record.ID, s.collectionID, serial); err != nil {
		// Строка certificates уже вставлена — фиксируем рассинхрон в логе
		s.logger.Error("Сертификат записан, но пара на файле не обновлена",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
	}
	s.cache.Delete(record.ID)

	certificationsTotal.WithLabelValues("success").Inc()
	certificationDuration.Observe(time.Since(start).Seconds())

	s.logger.Info("Сертификат выпущен",
		slog.String("file_id", fileID),
		slog.String("certificate_id", cert.ID),
		slog.Int64("serial", serial),
		slog.String("ledger_tx", txID),
	)

	return cert, nil
}

// buildCertificateMetadata формирует стандартизированные метаданные.
// extra вызывающего кладётся в отдельное поле, не смешиваясь со
// стандартизированными атрибутами.
func buildCertificateMetadata(record *model.FileRecord, extra json.RawMessage) ([]byte, error) {
	meta := certificateMetadata{
		Name:        "Certificate of Integrity: " + record.FileName,
		Description: "Подтверждение неизменности файла с момента приёма в хранилище",
		Attributes: []certificateAttribute{
			{TraitType: "file_name", Value: record.FileName},
			{TraitType: "file_type", Value: record.FileType},
			{TraitType: "created_at", Value: record.CreatedAt.UTC().Format(time.RFC3339)},
			{TraitType: "content_hash", Value: record.ContentHash},
		},
		Extra: extra,
	}
	return json.Marshal(meta)
}
