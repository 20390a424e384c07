// accesslog.go — append-only журнал попыток доступа.
package model

import "time"

// Статусы записи журнала.
const (
	AccessStatusSuccess = "success"
	AccessStatusFailed  = "failed"
)

// Типы доступа.
const (
	AccessTypeDownload = "download"
)

// AccessLogEntry — одна попытка retrieval, успешная или нет.
// Записи никогда не обновляются и не удаляются.
type AccessLogEntry struct {
	// ID — последовательный идентификатор
	ID int64
	// FileID — UUID файла
	FileID string
	// UserID — UUID профиля, запросившего доступ
	UserID string
	// AccessType — тип доступа (download)
	AccessType string
	// Status — success или failed
	Status string
	// Error — причина отказа (непустая при status = failed)
	Error *string
	// CreatedAt — время попытки
	CreatedAt time.Time
}
