// Пакет crypto — движок шифрования и контроля целостности.
// AES-256-GCM с уникальными ключом и nonce на каждый файл; хэш целостности
// считается по ciphertext — подмена сохранённых байт обнаруживается
// без владения ключом.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
)

const (
	// KeySize — длина ключа AES-256.
	KeySize = 32
	// NonceSize — длина GCM nonce.
	NonceSize = 12
)

// ErrDecryption — аутентификационный тег GCM не сошёлся: ciphertext
// повреждён, подменён, либо переданы чужие ключ/nonce.
var ErrDecryption = errors.New("ошибка расшифровки: аутентификация ciphertext не пройдена")

// Envelope — результат шифрования одного файла.
type Envelope struct {
	// Ciphertext — аутентифицированный шифртекст (включая GCM-тег)
	Ciphertext []byte
	// Key — свежий случайный ключ AES-256
	Key []byte
	// Nonce — свежий случайный GCM nonce
	Nonce []byte
	// Hash — hex SHA-256 от Ciphertext (значение для якоря в ledger)
	Hash string
}

// Encrypt шифрует plaintext свежими случайными ключом и nonce.
// Ключ и nonce никогда не переиспользуются между файлами.
func Encrypt(plaintext []byte) (*Envelope, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("генерация ключа: %w", err)
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("генерация nonce: %w", err)
	}

	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	ciphertext := aesgcm.Seal(nil, nonce, plaintext, nil)

	return &Envelope{
		Ciphertext: ciphertext,
		Key:        key,
		Nonce:      nonce,
		Hash:       HashHex(ciphertext),
	}, nil
}

// Decrypt расшифровывает ciphertext ключом и nonce файла.
// Возвращает ErrDecryption, если тег не верифицируется.
func Decrypt(ciphertext, key, nonce []byte) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryption
	}
	return plaintext, nil
}

// HashHex возвращает hex SHA-256 от data.
func HashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// VerifyHash пересчитывает SHA-256 от ciphertext и сравнивает с ожидаемым
// значением за константное время. Любой отличающийся байт даёт false.
func VerifyHash(ciphertext []byte, expectedHex string) bool {
	expected, err := hex.DecodeString(expectedHex)
	if err != nil || len(expected) != sha256.Size {
		return false
	}
	sum := sha256.Sum256(ciphertext)
	return subtle.ConstantTimeCompare(sum[:], expected) == 1
}

// newGCM создаёт AEAD для указанного ключа.
func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("создание AES-шифра: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("создание GCM: %w", err)
	}
	return aesgcm, nil
}
