// certify.go — HTTP handler выпуска сертификата целостности.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	apierrors "github.com/arturkryukov/datavault/internal/api/errors"
	"github.com/arturkryukov/datavault/internal/api/middleware"
	"github.com/arturkryukov/datavault/internal/service"
)

// CertifyHandler — обработчик POST /api/v1/vault/certify.
type CertifyHandler struct {
	svc *service.CertifyService
}

// NewCertifyHandler создаёт обработчик сертификации.
func NewCertifyHandler(svc *service.CertifyService) *CertifyHandler {
	return &CertifyHandler{svc: svc}
}

// certifyRequest — тело запроса сертификации.
// Metadata — опциональные метаданные вызывающего для документа сертификата.
type certifyRequest struct {
	FileID   string          `json:"fileId"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// certifyResponse — ответ успешной сертификации.
type certifyResponse struct {
	Certificate         certificateView `json:"certificate"`
	TokenID             string          `json:"tokenId"`
	SerialNumber        int64           `json:"serialNumber"`
	LedgerTransactionID string          `json:"ledgerTransactionId"`
}

// certificateView — публичное представление сертификата.
type certificateView struct {
	ID                  string          `json:"id"`
	FileID              string          `json:"fileId"`
	TokenID             string          `json:"tokenId"`
	SerialNumber        int64           `json:"serialNumber"`
	LedgerTransactionID string          `json:"ledgerTransactionId"`
	Metadata            json.RawMessage `json:"metadata,omitempty"`
	CreatedAt           string          `json:"createdAt"`
}

// Certify обрабатывает POST /api/v1/vault/certify.
// Выпуск доступен только владельцу; повторный выпуск отклоняется.
func (h *CertifyHandler) Certify(w http.ResponseWriter, r *http.Request) {
	subject := middleware.SubjectFromContext(r.Context())
	if subject == "" {
		apierrors.Unauthorized(w, "Идентичность не установлена")
		return
	}

	var req certifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный JSON: %s", err.Error()))
		return
	}
	if req.FileID == "" {
		apierrors.ValidationError(w, "Поле fileId обязательно")
		return
	}

	cert, err := h.svc.Certify(r.Context(), subject, req.FileID, req.Metadata)
	if err != nil {
		apierrors.WriteAppError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, certifyResponse{
		Certificate: certificateView{
			ID:                  cert.ID,
			FileID:              cert.FileID,
			TokenID:             cert.TokenID,
			SerialNumber:        cert.SerialNumber,
			LedgerTransactionID: cert.LedgerTransactionID,
			Metadata:            json.RawMessage(cert.Metadata),
			CreatedAt:           cert.CreatedAt.UTC().Format(time.RFC3339),
		},
		TokenID:             cert.TokenID,
		SerialNumber:        cert.SerialNumber,
		LedgerTransactionID: cert.LedgerTransactionID,
	})
}
