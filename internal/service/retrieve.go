// retrieve.go — конвейер выдачи файлов.
// Авторизация (владелец или активный грант), tier-gated проверка хэша,
// расшифровка и append-only журнал доступа. Каждая попытка после
// авторизационной проверки оставляет след в журнале — успешная или нет.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arturkryukov/datavault/internal/apperr"
	"github.com/arturkryukov/datavault/internal/crypto"
	"github.com/arturkryukov/datavault/internal/domain/model"
	"github.com/arturkryukov/datavault/internal/ratelimit"
	"github.com/arturkryukov/datavault/internal/repository"
	"github.com/arturkryukov/datavault/internal/storage"
)

// Prometheus-метрики retrieval.
var (
	retrievalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dv_retrievals_total",
		Help: "Общее количество запросов на выдачу файлов (по статусу).",
	}, []string{"status"})

	retrievalDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dv_retrieval_duration_seconds",
		Help:    "Длительность конвейера выдачи (загрузка, проверка, расшифровка).",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})

	integrityFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dv_integrity_failures_total",
		Help: "Количество обнаруженных расхождений хэша ciphertext.",
	})
)

// RetrieveResult — расшифрованный файл с метаданными.
type RetrieveResult struct {
	// Data — plaintext файла
	Data []byte
	// FileName — оригинальное имя
	FileName string
	// FileType — оригинальный MIME-тип
	FileType string
}

// RetrieveService — конвейер выдачи файлов.
type RetrieveService struct {
	fileRepo    repository.FileRepository
	profileRepo repository.ProfileRepository
	grantRepo   repository.GrantRepository
	accessLog   repository.AccessLogRepository
	blobs       BlobStore
	cache       *CacheService
	limiter     ratelimit.Limiter
	logger      *slog.Logger
}

// NewRetrieveService создаёт конвейер выдачи.
func NewRetrieveService(
	fileRepo repository.FileRepository,
	profileRepo repository.ProfileRepository,
	grantRepo repository.GrantRepository,
	accessLog repository.AccessLogRepository,
	blobs BlobStore,
	cache *CacheService,
	limiter ratelimit.Limiter,
	logger *slog.Logger,
) *RetrieveService {
	return &RetrieveService{
		fileRepo:    fileRepo,
		profileRepo: profileRepo,
		grantRepo:   grantRepo,
		accessLog:   accessLog,
		blobs:       blobs,
		cache:       cache,
		limiter:     limiter,
		logger:      logger.With(slog.String("component", "retrieve_service")),
	}
}

// Retrieve выполняет полный конвейер выдачи файла.
//
// Pipeline:
//  1. Rate limit по идентичности (отказ по лимиту журнал НЕ пишет)
//  2. Профиль запрашивающего
//  3. Запись файла: только active видимы, pending/failed → 404
//  4. Авторизация: владелец либо действующий грант на момент запроса
//  5. Ciphertext из storage по локатору
//  6. Tier-gated проверка хэша (assured — обязательна)
//  7. Расшифровка
//  8. Запись success в журнал
//
// Отказы шагов 4-7 пишут failed-запись в журнал ДО возврата ошибки.
func (s *RetrieveService) Retrieve(ctx context.Context, authIdentityID, fileID string) (*RetrieveResult, error) {
	start := time.Now()

	// 1. Rate limit
	if err := s.limiter.Allow(ctx, "retrieve:"+authIdentityID); err != nil {
		retrievalsTotal.WithLabelValues("rate_limited").Inc()
		return nil, err
	}

	// 2. Профиль запрашивающего
	profile, err := s.profileRepo.GetOrCreate(ctx, authIdentityID)
	if err != nil {
		retrievalsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("провижининг профиля: %w", err)
	}

	// 3. Запись файла (кэш или БД)
	record, err := s.getFileRecord(ctx, fileID)
	if err != nil {
		retrievalsTotal.WithLabelValues("not_found").Inc()
		return nil, err
	}

	// 4. Авторизация
	if err := s.authorize(ctx, record, profile.ID); err != nil {
		s.logFailed(ctx, fileID, profile.ID, "доступ запрещён")
		retrievalsTotal.WithLabelValues("forbidden").Inc()
		return nil, err
	}

	// 5. Ciphertext из storage
	locator, err := storage.ParseLocator(record.StorageLocator)
	if err != nil {
		s.logFailed(ctx, fileID, profile.ID, "некорректный локатор блоба")
		retrievalsTotal.WithLabelValues("error").Inc()
		return nil, apperr.Wrap(apperr.KindInternal, "некорректный локатор блоба", err)
	}
	ciphertext, err := s.blobs.Fetch(ctx, locator)
	if err != nil {
		s.logFailed(ctx, fileID, profile.ID, "хранилище недоступно")
		retrievalsTotal.WithLabelValues("storage_error").Inc()
		return nil, err
	}

	// 6. Tier-gated проверка хэша. Тариф assured обязывает сверять
	// хэш ciphertext с заякоренным значением при каждой выдаче.
	if profile.RequiresHashVerification() {
		if !crypto.VerifyHash(ciphertext, record.ContentHash) {
			integrityFailuresTotal.Inc()
			s.logFailed(ctx, fileID, profile.ID, "расхождение хэша ciphertext")
			retrievalsTotal.WithLabelValues("integrity_error").Inc()
			s.logger.Error("Обнаружен tamper: хэш ciphertext не совпал",
				slog.String("file_id", fileID),
				slog.String("expected_hash", record.ContentHash),
			)
			return nil, apperr.New(apperr.KindIntegrity,
				"целостность файла нарушена: хэш не совпадает с заякоренным")
		}
	}

	// 7. Расшифровка
	plaintext, err := crypto.Decrypt(ciphertext, record.EncryptionKey, record.EncryptionNonce)
	if err != nil {
		s.logFailed(ctx, fileID, profile.ID, "ошибка расшифровки")
		retrievalsTotal.WithLabelValues("decrypt_error").Inc()
		return nil, apperr.Wrap(apperr.KindIntegrity, "не удалось расшифровать файл", err)
	}

	// 8. Журнал успеха
	s.logAccess(ctx, &model.AccessLogEntry{
		FileID:     fileID,
		UserID:     profile.ID,
		AccessType: model.AccessTypeDownload,
		Status:     model.AccessStatusSuccess,
	})

	retrievalsTotal.WithLabelValues("success").Inc()
	retrievalDuration.Observe(time.Since(start).Seconds())

	s.logger.Debug("Файл выдан",
		slog.String("file_id", fileID),
		slog.String("user_id", profile.ID),
		slog.Int("size", len(plaintext)),
	)

	return &RetrieveResult{
		Data:     plaintext,
		FileName: record.FileName,
		FileType: record.FileType,
	}, nil
}

// getFileRecord возвращает active-запись из кэша или БД.
// Pending и failed записи неотличимы от несуществующих.
func (s *RetrieveService) getFileRecord(ctx context.Context, fileID string) (*model.FileRecord, error) {
	if record, ok := s.cache.Get(fileID); ok {
		return record, nil
	}

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

	s.cache.Set(fileID, record)
	return record, nil
}

// authorize пропускает владельца либо держателя действующего гранта.
// Грант оценивается на момент запроса: отозванный или истёкший
// равнозначен отсутствующему.
func (s *RetrieveService) authorize(ctx context.Context, record *model.FileRecord, profileID string) error {
	if record.OwnerID == profileID {
		return nil
	}

	_, err := s.grantRepo.FindActive(ctx, record.ID, profileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.New(apperr.KindForbidden, "нет прав на чтение файла")
		}
		return fmt.Errorf("проверка гранта: %w", err)
	}
	return nil
}

// logFailed пишет failed-запись в журнал с причиной отказа.
func (s *RetrieveService) logFailed(ctx context.Context, fileID, userID, reason string) {
	s.logAccess(ctx, &model.AccessLogEntry{
		FileID:     fileID,
		UserID:     userID,
		AccessType: model.AccessTypeDownload,
		Status:     model.AccessStatusFailed,
		Error:      &reason,
	})
}

// logAccess пишет запись в журнал. Ошибка записи логируется, но не
// меняет ответ клиенту: журнал best-effort на успехе, а отказ уже
// случился на неуспехе.
func (s *RetrieveService) logAccess(ctx context.Context, e *model.AccessLogEntry) {
	if err := s.accessLog.Insert(ctx, e); err != nil {
		s.logger.Error("Ошибка записи в журнал доступа",
			slog.String("file_id", e.FileID),
			slog.String("status", e.Status),
			slog.String("error", err.Error()),
		)
	}
}
