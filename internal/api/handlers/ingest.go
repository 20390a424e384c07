// ingest.go — HTTP handler приёма файлов.
package handlers

import (
	"fmt"
	"io"
	"net/http"

	apierrors "github.com/arturkryukov/datavault/internal/api/errors"
	"github.com/arturkryukov/datavault/internal/api/middleware"
	"github.com/arturkryukov/datavault/internal/service"
)

// multipartMemoryLimit — буфер парсинга multipart form в памяти.
const multipartMemoryLimit = 32 << 20 // 32 MB

// IngestHandler — обработчик POST /api/v1/vault/ingest.
type IngestHandler struct {
	svc *service.IngestService
}

// NewIngestHandler создаёт обработчик приёма файлов.
func NewIngestHandler(svc *service.IngestService) *IngestHandler {
	return &IngestHandler{svc: svc}
}

// ingestResponse — ответ успешного приёма.
type ingestResponse struct {
	ID                  string `json:"id"`
	FileName            string `json:"file_name"`
	FileType            string `json:"file_type"`
	ContentHash         string `json:"content_hash"`
	LedgerTransactionID string `json:"ledger_transaction_id"`
	StorageLocator      string `json:"storage_locator"`
}

// Ingest обрабатывает POST /api/v1/vault/ingest.
// Multipart form: file (обязательно).
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	subject := middleware.SubjectFromContext(r.Context())
	if subject == "" {
		apierrors.Unauthorized(w, "Идентичность не установлена")
		return
	}

	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Ошибка парсинга multipart: %s", err.Error()))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		apierrors.ValidationError(w, "Поле 'file' обязательно")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		apierrors.InternalError(w, "Ошибка чтения файла из запроса")
		return
	}

	result, err := h.svc.Ingest(r.Context(), subject, &service.IngestRequest{
		FileName: header.Filename,
		FileType: header.Header.Get("Content-Type"),
		Data:     data,
	})
	if err != nil {
		apierrors.WriteAppError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, ingestResponse{
		ID:                  result.FileID,
		FileName:            result.FileName,
		FileType:            result.FileType,
		ContentHash:         result.ContentHash,
		LedgerTransactionID: result.LedgerTransactionID,
		StorageLocator:      result.StorageLocator,
	})
}
