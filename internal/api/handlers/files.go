// files.go — HTTP handler списка файлов владельца.
package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	apierrors "github.com/arturkryukov/datavault/internal/api/errors"
	"github.com/arturkryukov/datavault/internal/api/middleware"
	"github.com/arturkryukov/datavault/internal/service"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// FilesHandler — обработчик GET /api/v1/vault/files.
type FilesHandler struct {
	svc *service.EvidenceService
}

// NewFilesHandler создаёт обработчик списка файлов.
func NewFilesHandler(svc *service.EvidenceService) *FilesHandler {
	return &FilesHandler{svc: svc}
}

// fileListResponse — страница списка файлов владельца.
type fileListResponse struct {
	Items  []evidenceFileView `json:"items"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

// List обрабатывает GET /api/v1/vault/files?limit=&offset=.
// Возвращает активные файлы запрашивающего, новые первыми.
func (h *FilesHandler) List(w http.ResponseWriter, r *http.Request) {
	subject := middleware.SubjectFromContext(r.Context())
	if subject == "" {
		apierrors.Unauthorized(w, "Идентичность не установлена")
		return
	}

	limit, err := positiveIntParam(r, "limit", defaultListLimit)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset, err := positiveIntParam(r, "offset", 0)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	records, err := h.svc.ListOwned(r.Context(), subject, limit, offset)
	if err != nil {
		apierrors.WriteAppError(w, err)
		return
	}

	items := make([]evidenceFileView, 0, len(records))
	for _, rec := range records {
		items = append(items, evidenceFileView{
			ID:                  rec.ID,
			FileName:            rec.FileName,
			FileType:            rec.FileType,
			Size:                rec.Size,
			ContentHash:         rec.ContentHash,
			LedgerTransactionID: rec.LedgerTransactionID,
			CreatedAt:           rec.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, fileListResponse{Items: items, Limit: limit, Offset: offset})
}

// positiveIntParam читает неотрицательный целочисленный query-параметр.
func positiveIntParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("параметр %s должен быть неотрицательным числом", name)
	}
	return v, nil
}
