// retrieve.go — HTTP handler скачивания расшифрованных файлов.
package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	apierrors "github.com/arturkryukov/datavault/internal/api/errors"
	"github.com/arturkryukov/datavault/internal/api/middleware"
	"github.com/arturkryukov/datavault/internal/service"
)

// RetrieveHandler — обработчик GET /api/v1/vault/retrieve.
type RetrieveHandler struct {
	svc *service.RetrieveService
}

// NewRetrieveHandler создаёт обработчик скачивания.
func NewRetrieveHandler(svc *service.RetrieveService) *RetrieveHandler {
	return &RetrieveHandler{svc: svc}
}

// Retrieve обрабатывает GET /api/v1/vault/retrieve?fileId=.
// Отдаёт исходные байты с оригинальными Content-Type и Content-Disposition.
func (h *RetrieveHandler) Retrieve(w http.ResponseWriter, r *http.Request) {
	subject := middleware.SubjectFromContext(r.Context())
	if subject == "" {
		apierrors.Unauthorized(w, "Идентичность не установлена")
		return
	}

	fileID := r.URL.Query().Get("fileId")
	if fileID == "" {
		apierrors.ValidationError(w, "Параметр fileId обязателен")
		return
	}

	result, err := h.svc.Retrieve(r.Context(), subject, fileID)
	if err != nil {
		apierrors.WriteAppError(w, err)
		return
	}

	w.Header().Set("Content-Type", result.FileType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%s", strconv.Quote(result.FileName)))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}
