// handler.go — основной обработчик API Vault Module.
// Объединяет health и бизнес-обработчики и регистрирует маршруты.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// APIHandler — основной обработчик API Vault Module.
// Делегирует запросы в сервисный слой; авторизация (владелец/грант)
// выполняется сервисами, здесь только транспорт.
type APIHandler struct {
	health   *HealthHandler
	ingest   *IngestHandler
	retrieve *RetrieveHandler
	certify  *CertifyHandler
	evidence *EvidenceHandler
	files    *FilesHandler
	grants   *GrantsHandler
	logger   *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	ingest *IngestHandler,
	retrieve *RetrieveHandler,
	certify *CertifyHandler,
	evidence *EvidenceHandler,
	files *FilesHandler,
	grants *GrantsHandler,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:   health,
		ingest:   ingest,
		retrieve: retrieve,
		certify:  certify,
		evidence: evidence,
		files:    files,
		grants:   grants,
		logger:   logger.With(slog.String("component", "api_handler")),
	}
}

// Routes регистрирует все маршруты API на роутере.
func (h *APIHandler) Routes(r chi.Router) {
	r.Get("/health/live", h.health.HealthLive)
	r.Get("/health/ready", h.health.HealthReady)
	r.Get("/metrics", h.health.GetMetrics)

	r.Route("/api/v1/vault", func(r chi.Router) {
		r.Post("/ingest", h.ingest.Ingest)
		r.Get("/retrieve", h.retrieve.Retrieve)
		r.Post("/certify", h.certify.Certify)
		r.Get("/evidence/{fileID}", h.evidence.Bundle)
		r.Get("/certificate/{fileID}/render", h.evidence.RenderCertificate)
		r.Get("/files", h.files.List)

		r.Route("/files/{fileID}/grants", func(r chi.Router) {
			r.Post("/", h.grants.Create)
			r.Get("/", h.grants.List)
			r.Delete("/{grantID}", h.grants.Revoke)
		})
	})
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
