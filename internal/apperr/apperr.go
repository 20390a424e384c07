// Пакет apperr — типизированные ошибки Vault Module.
// Каждая ошибка несёт машиночитаемый Kind и человекочитаемое сообщение,
// которые проходят через все слои без изменений — классификация по тексту
// сообщения запрещена. HTTP-статус выводится из Kind в api/errors.
package apperr

import (
	"errors"
	"fmt"
)

// Kind — категория ошибки конвейера.
type Kind string

const (
	// KindAuth — отсутствующий, невалидный или просроченный bearer-токен (401).
	KindAuth Kind = "AUTH_ERROR"
	// KindValidation — некорректный тип, размер или содержимое файла (400).
	KindValidation Kind = "VALIDATION_ERROR"
	// KindRateLimited — превышен лимит запросов за окно (400, семейство validation).
	KindRateLimited Kind = "RATE_LIMITED"
	// KindForbidden — не владелец, нет активного гранта, повторная сертификация (403).
	KindForbidden Kind = "FORBIDDEN"
	// KindNotFound — файл или сертификат не найден (404).
	KindNotFound Kind = "NOT_FOUND"
	// KindConflict — конфликт уникальности (409).
	KindConflict Kind = "CONFLICT"
	// KindIntegrity — обнаружен tamper: хэш ciphertext не совпал (422).
	// Никогда не схлопывается в KindInternal.
	KindIntegrity Kind = "INTEGRITY_ERROR"
	// KindStorage — content-addressed storage недоступен (502, retryable).
	KindStorage Kind = "STORAGE_UNAVAILABLE"
	// KindLedger — notarization ledger недоступен или отклонил транзакцию (502, retryable).
	KindLedger Kind = "LEDGER_UNAVAILABLE"
	// KindInternal — всё остальное (500).
	KindInternal Kind = "INTERNAL_ERROR"
)

// Error — ошибка с категорией.
// Message предназначен для клиента (не содержит stack traces и внутренних
// идентификаторов), Err — обёрнутая причина для логов.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New создаёт ошибку указанной категории.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap создаёт ошибку указанной категории с причиной.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf возвращает категорию ошибки.
// Для ошибок без категории — KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf возвращает клиентское сообщение ошибки.
// Для ошибок без категории — нейтральное сообщение (детали — только в логах).
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "внутренняя ошибка сервиса"
}

// IsKind проверяет, относится ли ошибка к указанной категории.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
