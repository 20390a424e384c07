// ingest.go — конвейер приёма файлов.
// Полный pipeline: валидация → шифрование → pending-запись в БД →
// загрузка блоба → якорение хэша в ledger → финализация записи.
// Внешние эффекты фиксируются в записи по мере выполнения: при падении
// процесса на любом шаге reconciler доводит или закрывает saga.
package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arturkryukov/datavault/internal/apperr"
	"github.com/arturkryukov/datavault/internal/crypto"
	"github.com/arturkryukov/datavault/internal/domain/model"
	"github.com/arturkryukov/datavault/internal/ratelimit"
	"github.com/arturkryukov/datavault/internal/repository"
	"github.com/arturkryukov/datavault/internal/storage"
)

// BlobStore — хранение и чтение зашифрованных блобов.
// Реализуется storage.Client.
type BlobStore interface {
	Store(ctx context.Context, data []byte, name string) (storage.Locator, error)
	Fetch(ctx context.Context, loc storage.Locator) ([]byte, error)
}

// Notary — операции ledger, используемые конвейером.
// Реализуется ledger.Client.
type Notary interface {
	AnchorHash(ctx context.Context, topicID, hash string) (string, error)
	MintCertificate(ctx context.Context, collectionID string, metadata []byte) (int64, string, error)
}

// Prometheus-метрики ingestion.
var (
	ingestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dv_ingests_total",
		Help: "Общее количество запросов на приём файлов (по статусу).",
	}, []string{"status"})

	ingestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dv_ingest_duration_seconds",
		Help:    "Длительность полного конвейера приёма (включая ledger).",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	ingestBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dv_ingest_bytes_total",
		Help: "Общее количество принятых байт (исходный размер).",
	})
)

// allowedFileTypes — допустимые MIME-типы загружаемых файлов.
var allowedFileTypes = map[string]bool{
	"application/pdf":  true,
	"application/json": true,
	"text/plain":       true,
	"text/csv":         true,
	"image/png":        true,
	"image/jpeg":       true,
	// Геномные данные (VCF) приходят как text/vcard либо octet-stream
	// с расширением .vcf — подтверждаются sniff'ом заголовка.
	"application/octet-stream": true,
}

// typeByExtension — fallback-определение типа по расширению, когда
// клиент прислал пустой или generic Content-Type.
var typeByExtension = map[string]string{
	".pdf":  "application/pdf",
	".json": "application/json",
	".txt":  "text/plain",
	".csv":  "text/csv",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".vcf":  "application/octet-stream",
}

// vcfHeader — сигнатура геномного VCF-файла.
const vcfHeader = "##fileformat=VCF"

// IngestRequest — входные данные приёма файла.
type IngestRequest struct {
	// FileName — оригинальное имя файла
	FileName string
	// FileType — заявленный MIME-тип (может быть пустым)
	FileType string
	// Data — содержимое файла (plaintext)
	Data []byte
}

// IngestResult — результат успешного приёма.
type IngestResult struct {
	// FileID — UUID созданной записи
	FileID string
	// FileName — оригинальное имя файла
	FileName string
	// FileType — итоговый MIME-тип (после fallback по расширению)
	FileType string
	// ContentHash — hex SHA-256 от ciphertext
	ContentHash string
	// StorageLocator — локатор блоба
	StorageLocator string
	// LedgerTransactionID — транзакция якоря
	LedgerTransactionID string
}

// IngestService — конвейер приёма файлов.
type IngestService struct {
	fileRepo    repository.FileRepository
	profileRepo repository.ProfileRepository
	blobs       BlobStore
	notary      Notary
	limiter     ratelimit.Limiter
	topicID     string
	maxFileSize int64
	logger      *slog.Logger
}

// NewIngestService создаёт конвейер приёма.
func NewIngestService(
	fileRepo repository.FileRepository,
	profileRepo repository.ProfileRepository,
	blobs BlobStore,
	notary Notary,
	limiter ratelimit.Limiter,
	topicID string,
	maxFileSize int64,
	logger *slog.Logger,
) *IngestService {
	return &IngestService{
		fileRepo:    fileRepo,
		profileRepo: profileRepo,
		blobs:       blobs,
		notary:      notary,
		limiter:     limiter,
		topicID:     topicID,
		maxFileSize: maxFileSize,
		logger:      logger.With(slog.String("component", "ingest_service")),
	}
}

// Ingest выполняет полный конвейер приёма файла.
//
// Pipeline:
//  1. Rate limit по идентичности (до любой криптографии)
//  2. Валидация имени, размера и типа
//  3. Профиль владельца (провижининг при первом обращении)
//  4. Шифрование: свежий ключ + nonce, SHA-256 от ciphertext
//  5. Pending-запись в БД (ключ, nonce, хэш — до внешних эффектов)
//  6. Загрузка ciphertext в content-addressed storage → локатор
//  7. Якорение хэша в ledger (блокируется до подтверждения)
//  8. Финализация записи (pending → active)
func (s *IngestService) Ingest(ctx context.Context, authIdentityID string, req *IngestRequest) (*IngestResult, error) {
	start := time.Now()

	// 1. Rate limit — до валидации и шифрования
	if err := s.limiter.Allow(ctx, "ingest:"+authIdentityID); err != nil {
		ingestsTotal.WithLabelValues("rate_limited").Inc()
		return nil, err
	}

	// 2. Валидация
	fileType, err := s.validate(req)
	if err != nil {
		ingestsTotal.WithLabelValues("validation_error").Inc()
		return nil, err
	}

	// 3. Профиль владельца
	profile, err := s.profileRepo.GetOrCreate(ctx, authIdentityID)
	if err != nil {
		ingestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("провижининг профиля: %w", err)
	}

	// 4. Шифрование. Ключ и nonce свежие для каждого файла.
	envelope, err := crypto.Encrypt(req.Data)
	if err != nil {
		ingestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("шифрование файла: %w", err)
	}

	record := &model.FileRecord{
		ID:              uuid.NewString(),
		OwnerID:         profile.ID,
		FileName:        req.FileName,
		FileType:        fileType,
		Size:            int64(len(req.Data)),
		EncryptionKey:   envelope.Key,
		EncryptionNonce: envelope.Nonce,
		ContentHash:     envelope.Hash,
	}

	// 5. Pending-запись до внешних эффектов
	if err := s.fileRepo.CreatePending(ctx, record); err != nil {
		ingestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	// 6. Загрузка блоба
	locator, err := s.blobs.Store(ctx, envelope.Ciphertext, record.ID)
	if err != nil {
		ingestsTotal.WithLabelValues("storage_error").Inc()
		s.logger.Error("Загрузка блоба не удалась, запись остаётся pending",
			slog.String("file_id", record.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	if err := s.fileRepo.SetStorageLocator(ctx, record.ID, locator.String()); err != nil {
		ingestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	// 7. Якорение хэша. Блокируемся до подтверждения сети.
	txID, err := s.notary.AnchorHash(ctx, s.topicID, envelope.Hash)
	if err != nil {
		ingestsTotal.WithLabelValues("ledger_error").Inc()
		s.logger.Error("Якорение хэша не удалось, запись остаётся pending",
			slog.String("file_id", record.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	if err := s.fileRepo.SetLedgerAnchor(ctx, record.ID, txID); err != nil {
		ingestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	// 8. Финализация
	if err := s.fileRepo.Finalize(ctx, record.ID); err != nil {
		ingestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	ingestsTotal.WithLabelValues("success").Inc()
	ingestDuration.Observe(time.Since(start).Seconds())
	ingestBytesTotal.Add(float64(record.Size))

	s.logger.Info("Файл принят",
		slog.String("file_id", record.ID),
		slog.String("owner_id", profile.ID),
		slog.Int64("size", record.Size),
		slog.String("content_hash", envelope.Hash),
		slog.String("ledger_tx", txID),
	)

	return &IngestResult{
		FileID:              record.ID,
		FileName:            record.FileName,
		FileType:            record.FileType,
		ContentHash:         envelope.Hash,
		StorageLocator:      locator.String(),
		LedgerTransactionID: txID,
	}, nil
}

// validate проверяет имя, размер и тип файла.
// Возвращает итоговый MIME-тип (с учётом fallback по расширению).
func (s *IngestService) validate(req *IngestRequest) (string, error) {
	if strings.TrimSpace(req.FileName) == "" {
		return "", apperr.New(apperr.KindValidation, "имя файла не задано")
	}
	if len(req.Data) == 0 {
		return "", apperr.New(apperr.KindValidation, "пустой файл")
	}
	if int64(len(req.Data)) > s.maxFileSize {
		return "", apperr.New(apperr.KindValidation,
			fmt.Sprintf("размер файла превышает лимит %d байт", s.maxFileSize))
	}

	fileType := normalizeContentType(req.FileType)
	if fileType == "" || fileType == "application/octet-stream" {
		// Fallback по расширению
		ext := strings.ToLower(filepath.Ext(req.FileName))
		if mapped, ok := typeByExtension[ext]; ok {
			fileType = mapped
		}
	}

	if !allowedFileTypes[fileType] {
		return "", apperr.New(apperr.KindValidation,
			fmt.Sprintf("недопустимый тип файла: %s", req.FileType))
	}

	// VCF принимается как octet-stream только с корректной сигнатурой
	if strings.EqualFold(filepath.Ext(req.FileName), ".vcf") &&
		!bytes.HasPrefix(req.Data, []byte(vcfHeader)) {
		return "", apperr.New(apperr.KindValidation,
			"файл .vcf не содержит сигнатуру VCF")
	}

	return fileType, nil
}

// normalizeContentType отбрасывает параметры MIME-типа (charset и т.п.).
func normalizeContentType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.TrimSpace(strings.ToLower(ct))
}
