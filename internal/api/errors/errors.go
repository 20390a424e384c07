// Пакет errors — стандартный формат HTTP-ошибок сервиса.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError или
// WriteAppError.
package errors

import (
	"encoding/json"
	"net/http"

	"github.com/arturkryukov/datavault/internal/apperr"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// statusByKind — маппинг категории ошибки на HTTP-статус.
// Rate limiting относится к семейству validation и отвечает 400.
// Integrity намеренно отделён от internal: обнаруженный tamper — это
// 422, а не 500.
var statusByKind = map[apperr.Kind]int{
	apperr.KindAuth:        http.StatusUnauthorized,
	apperr.KindValidation:  http.StatusBadRequest,
	apperr.KindRateLimited: http.StatusBadRequest,
	apperr.KindForbidden:   http.StatusForbidden,
	apperr.KindNotFound:    http.StatusNotFound,
	apperr.KindConflict:    http.StatusConflict,
	apperr.KindIntegrity:   http.StatusUnprocessableEntity,
	apperr.KindStorage:     http.StatusBadGateway,
	apperr.KindLedger:      http.StatusBadGateway,
	apperr.KindInternal:    http.StatusInternalServerError,
}

// StatusOf возвращает HTTP-статус для категории ошибки.
func StatusOf(kind apperr.Kind) int {
	if status, ok := statusByKind[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteAppError записывает типизированную ошибку конвейера.
// Код и сообщение берутся из ошибки; статус выводится из категории.
func WriteAppError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	WriteError(w, StatusOf(kind), string(kind), apperr.MessageOf(err))
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, string(apperr.KindValidation), message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, string(apperr.KindNotFound), message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, string(apperr.KindAuth), message)
}

// Forbidden — 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, string(apperr.KindForbidden), message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, string(apperr.KindInternal), message)
}
