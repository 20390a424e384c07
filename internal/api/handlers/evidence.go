// evidence.go — HTTP handlers доказательной выписки и документа
// сертификата.
package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/arturkryukov/datavault/internal/api/errors"
	"github.com/arturkryukov/datavault/internal/api/middleware"
	"github.com/arturkryukov/datavault/internal/domain/model"
	"github.com/arturkryukov/datavault/internal/render"
	"github.com/arturkryukov/datavault/internal/service"
)

// EvidenceHandler — обработчик evidence bundle и рендера сертификата.
type EvidenceHandler struct {
	svc      *service.EvidenceService
	renderer *render.CertificateRenderer
}

// NewEvidenceHandler создаёт обработчик выписок.
func NewEvidenceHandler(svc *service.EvidenceService, renderer *render.CertificateRenderer) *EvidenceHandler {
	return &EvidenceHandler{svc: svc, renderer: renderer}
}

// evidenceResponse — доказательная выписка по файлу.
type evidenceResponse struct {
	File        evidenceFileView `json:"file"`
	Certificate *certificateView `json:"certificate"`
	AccessLogs  []accessLogView  `json:"accessLogs"`
	Checks      evidenceChecks   `json:"checks"`
}

// evidenceFileView — публичный дескриптор файла в выписке.
// Ключи и nonce шифрования сюда не попадают.
type evidenceFileView struct {
	ID                  string `json:"id"`
	FileName            string `json:"fileName"`
	FileType            string `json:"fileType"`
	Size                int64  `json:"size"`
	ContentHash         string `json:"contentHash"`
	LedgerTransactionID string `json:"ledgerTransactionId"`
	CreatedAt           string `json:"createdAt"`
}

// accessLogView — запись журнала доступа в выписке.
type accessLogView struct {
	UserID     string `json:"userId"`
	AccessType string `json:"accessType"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	CreatedAt  string `json:"createdAt"`
}

// evidenceChecks — производные признаки полноты доказательств.
type evidenceChecks struct {
	HasCertificate    bool `json:"hasCertificate"`
	HasLedgerAnchor   bool `json:"hasLedgerAnchor"`
	HasAccessEvidence bool `json:"hasAccessEvidence"`
}

// Bundle обрабатывает GET /api/v1/vault/evidence/{fileID}.
// Доступно владельцу и держателю действующего гранта.
func (h *EvidenceHandler) Bundle(w http.ResponseWriter, r *http.Request) {
	subject := middleware.SubjectFromContext(r.Context())
	if subject == "" {
		apierrors.Unauthorized(w, "Идентичность не установлена")
		return
	}
	fileID := chi.URLParam(r, "fileID")

	bundle, err := h.svc.Bundle(r.Context(), subject, fileID)
	if err != nil {
		apierrors.WriteAppError(w, err)
		return
	}

	resp := evidenceResponse{
		File: evidenceFileView{
			ID:                  bundle.File.ID,
			FileName:            bundle.File.FileName,
			FileType:            bundle.File.FileType,
			Size:                bundle.File.Size,
			ContentHash:         bundle.File.ContentHash,
			LedgerTransactionID: bundle.File.LedgerTransactionID,
			CreatedAt:           bundle.File.CreatedAt.UTC().Format(time.RFC3339),
		},
		AccessLogs: make([]accessLogView, 0, len(bundle.AccessLog)),
		Checks: evidenceChecks{
			HasCertificate:    bundle.Checks.HasCertificate,
			HasLedgerAnchor:   bundle.Checks.HasLedgerAnchor,
			HasAccessEvidence: bundle.Checks.HasAccessEvidence,
		},
	}
	if bundle.Certificate != nil {
		view := domainToCertificateView(bundle.Certificate)
		resp.Certificate = &view
	}
	for _, entry := range bundle.AccessLog {
		resp.AccessLogs = append(resp.AccessLogs, domainToAccessLogView(entry))
	}

	writeJSON(w, http.StatusOK, resp)
}

// RenderCertificate обрабатывает GET /api/v1/vault/certificate/{fileID}/render.
// HTML-документ сертификата; доступен только владельцу.
func (h *EvidenceHandler) RenderCertificate(w http.ResponseWriter, r *http.Request) {
	subject := middleware.SubjectFromContext(r.Context())
	if subject == "" {
		apierrors.Unauthorized(w, "Идентичность не установлена")
		return
	}
	fileID := chi.URLParam(r, "fileID")

	record, cert, err := h.svc.OwnerRecord(r.Context(), subject, fileID)
	if err != nil {
		apierrors.WriteAppError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := h.renderer.Render(w, record, cert); err != nil {
		// Заголовки уже отправлены, остаётся залогировать на уровне middleware
		return
	}
}

// domainToCertificateView преобразует сертификат в API-формат.
func domainToCertificateView(c *model.Certificate) certificateView {
	return certificateView{
		ID:                  c.ID,
		FileID:              c.FileID,
		TokenID:             c.TokenID,
		SerialNumber:        c.SerialNumber,
		LedgerTransactionID: c.LedgerTransactionID,
		Metadata:            c.Metadata,
		CreatedAt:           c.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// domainToAccessLogView преобразует запись журнала в API-формат.
func domainToAccessLogView(e *model.AccessLogEntry) accessLogView {
	view := accessLogView{
		UserID:     e.UserID,
		AccessType: e.AccessType,
		Status:     e.Status,
		CreatedAt:  e.CreatedAt.UTC().Format(time.RFC3339),
	}
	if e.Error != nil {
		view.Error = *e.Error
	}
	return view
}
