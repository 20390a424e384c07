// Пакет model — доменные модели Vault Module.
// FileRecord — маппинг таблицы file_records (зашифрованные файлы хранилища).
package model

import "time"

// Статусы записи файла.
// pending — saga-запись: ingestion начат, внешние эффекты ещё не завершены.
// active — ingestion завершён, файл доступен для retrieval.
// failed — ingestion не удалось довести до конца (reconciler исчерпал попытки).
const (
	FileStatusPending = "pending"
	FileStatusActive  = "active"
	FileStatusFailed  = "failed"
)

// FileRecord — запись зашифрованного файла.
// EncryptionKey и EncryptionNonce никогда не покидают конвейер —
// в API-ответы и логи эти поля не попадают.
type FileRecord struct {
	// ID — UUID файла
	ID string
	// OwnerID — UUID профиля владельца
	OwnerID string
	// FileName — оригинальное имя файла
	FileName string
	// FileType — заявленный MIME-тип
	FileType string
	// Size — размер исходного файла в байтах
	Size int64
	// StorageLocator — локатор блоба: cid://<CID> или legacy-путь (см. storage.Locator)
	StorageLocator string
	// EncryptionKey — AES-256 ключ файла
	EncryptionKey []byte
	// EncryptionNonce — GCM nonce (уникален для каждого файла)
	EncryptionNonce []byte
	// ContentHash — hex SHA-256 от ciphertext (значение, заякоренное в ledger)
	ContentHash string
	// LedgerTransactionID — идентификатор транзакции якоря в ledger
	LedgerTransactionID string
	// CertificateTokenID — идентификатор NFT-коллекции сертификата (nil — не минтился)
	CertificateTokenID *string
	// CertificateSerial — серийный номер сертификата в коллекции (nil — не минтился).
	// Инвариант: CertificateTokenID и CertificateSerial либо оба nil, либо оба заданы.
	CertificateSerial *int64
	// Status — pending, active, failed
	Status string
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// Certified сообщает, минтился ли уже сертификат для файла.
func (f *FileRecord) Certified() bool {
	return f.CertificateTokenID != nil && f.CertificateSerial != nil
}
