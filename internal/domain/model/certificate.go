// certificate.go — сертификат целостности (proof token).
package model

import "time"

// Certificate — NFT-сертификат целостности файла.
// Неизменяем после создания; ровно один на файл (UNIQUE(file_id) в БД).
type Certificate struct {
	// ID — UUID сертификата
	ID string
	// FileID — UUID файла (уникален)
	FileID string
	// OwnerID — UUID профиля владельца на момент минта
	OwnerID string
	// TokenID — идентификатор NFT-коллекции в ledger
	TokenID string
	// SerialNumber — серийный номер в коллекции
	SerialNumber int64
	// LedgerTransactionID — транзакция минта
	LedgerTransactionID string
	// Metadata — стандартизированные метаданные сертификата (JSON)
	Metadata []byte
	// CreatedAt — время минта
	CreatedAt time.Time
}
