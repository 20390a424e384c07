// grants.go — HTTP handlers управления грантами доступа к файлу.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/arturkryukov/datavault/internal/api/errors"
	"github.com/arturkryukov/datavault/internal/api/middleware"
	"github.com/arturkryukov/datavault/internal/domain/model"
	"github.com/arturkryukov/datavault/internal/service"
)

// GrantsHandler — обработчик endpoints управления грантами.
type GrantsHandler struct {
	svc *service.GrantService
}

// NewGrantsHandler создаёт обработчик грантов.
func NewGrantsHandler(svc *service.GrantService) *GrantsHandler {
	return &GrantsHandler{svc: svc}
}

// grantRequest — тело запроса выдачи гранта.
type grantRequest struct {
	GranteeID string    `json:"granteeId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// grantView — публичное представление гранта.
type grantView struct {
	ID        string `json:"id"`
	FileID    string `json:"fileId"`
	GranteeID string `json:"granteeId"`
	Status    string `json:"status"`
	ExpiresAt string `json:"expiresAt"`
	CreatedAt string `json:"createdAt"`
}

// grantListResponse — ответ списка грантов.
type grantListResponse struct {
	Items []grantView `json:"items"`
	Total int         `json:"total"`
}

// Create обрабатывает POST /api/v1/vault/files/{fileID}/grants.
func (h *GrantsHandler) Create(w http.ResponseWriter, r *http.Request) {
	subject := middleware.SubjectFromContext(r.Context())
	if subject == "" {
		apierrors.Unauthorized(w, "Идентичность не установлена")
		return
	}
	fileID := chi.URLParam(r, "fileID")

	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный JSON: %s", err.Error()))
		return
	}
	if req.GranteeID == "" {
		apierrors.ValidationError(w, "Поле granteeId обязательно")
		return
	}
	if req.ExpiresAt.IsZero() {
		apierrors.ValidationError(w, "Поле expiresAt обязательно")
		return
	}

	grant, err := h.svc.Grant(r.Context(), subject, fileID, req.GranteeID, req.ExpiresAt)
	if err != nil {
		apierrors.WriteAppError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, domainToGrantView(grant))
}

// Revoke обрабатывает DELETE /api/v1/vault/files/{fileID}/grants/{grantID}.
func (h *GrantsHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	subject := middleware.SubjectFromContext(r.Context())
	if subject == "" {
		apierrors.Unauthorized(w, "Идентичность не установлена")
		return
	}
	fileID := chi.URLParam(r, "fileID")
	grantID := chi.URLParam(r, "grantID")

	if err := h.svc.Revoke(r.Context(), subject, fileID, grantID); err != nil {
		apierrors.WriteAppError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// List обрабатывает GET /api/v1/vault/files/{fileID}/grants.
func (h *GrantsHandler) List(w http.ResponseWriter, r *http.Request) {
	subject := middleware.SubjectFromContext(r.Context())
	if subject == "" {
		apierrors.Unauthorized(w, "Идентичность не установлена")
		return
	}
	fileID := chi.URLParam(r, "fileID")

	grants, err := h.svc.List(r.Context(), subject, fileID)
	if err != nil {
		apierrors.WriteAppError(w, err)
		return
	}

	resp := grantListResponse{
		Items: make([]grantView, 0, len(grants)),
		Total: len(grants),
	}
	for _, g := range grants {
		resp.Items = append(resp.Items, domainToGrantView(g))
	}

	writeJSON(w, http.StatusOK, resp)
}

// domainToGrantView преобразует грант в API-формат.
func domainToGrantView(g *model.PermissionGrant) grantView {
	return grantView{
		ID:        g.ID,
		FileID:    g.FileID,
		GranteeID: g.GranteeID,
		Status:    g.Status,
		ExpiresAt: g.ExpiresAt.UTC().Format(time.RFC3339),
		CreatedAt: g.CreatedAt.UTC().Format(time.RFC3339),
	}
}
