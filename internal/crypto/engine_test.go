package crypto

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"
)

// TestEncryptDecrypt_RoundTrip проверяет round-trip для разных размеров входа.
func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	sizes := []int{0, 1, 16, 1024, 2048, 1 << 20}

	for _, size := range sizes {
		plaintext := make([]byte, size)
		if _, err := rand.Read(plaintext); err != nil {
			t.Fatalf("генерация plaintext: %v", err)
		}

		env, err := Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt (size=%d): %v", size, err)
		}

		got, err := Decrypt(env.Ciphertext, env.Key, env.Nonce)
		if err != nil {
			t.Fatalf("Decrypt (size=%d): %v", size, err)
		}
		if !bytes.Equal(got, plaintext) {
			t.Errorf("round-trip (size=%d): расшифрованные данные не совпали с исходными", size)
		}
	}
}

// TestEncrypt_FreshKeyAndNonce проверяет, что ключ и nonce не переиспользуются.
func TestEncrypt_FreshKeyAndNonce(t *testing.T) {
	plaintext := []byte("одинаковый plaintext")

	env1, err := Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt #1: %v", err)
	}
	env2, err := Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt #2: %v", err)
	}

	if bytes.Equal(env1.Key, env2.Key) {
		t.Error("два вызова Encrypt вернули одинаковый ключ")
	}
	if bytes.Equal(env1.Nonce, env2.Nonce) {
		t.Error("два вызова Encrypt вернули одинаковый nonce")
	}
	// Одинаковый plaintext со свежими ключами даёт разные хэши —
	// хэш непригоден как ключ дедупликации, и это ожидаемо.
	if env1.Hash == env2.Hash {
		t.Error("два вызова Encrypt вернули одинаковый хэш ciphertext")
	}
}

// TestVerifyHash_TamperDetection проверяет, что инверсия любого одного бита
// ciphertext делает VerifyHash false и ломает расшифровку.
func TestVerifyHash_TamperDetection(t *testing.T) {
	env, err := Encrypt([]byte("критичные данные, подлежащие защите"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	if !VerifyHash(env.Ciphertext, env.Hash) {
		t.Fatal("VerifyHash вернул false для нетронутого ciphertext")
	}

	for _, pos := range []int{0, len(env.Ciphertext) / 2, len(env.Ciphertext) - 1} {
		tampered := make([]byte, len(env.Ciphertext))
		copy(tampered, env.Ciphertext)
		tampered[pos] ^= 0x01

		if VerifyHash(tampered, env.Hash) {
			t.Errorf("VerifyHash вернул true при инверсии бита в позиции %d", pos)
		}
		if _, err := Decrypt(tampered, env.Key, env.Nonce); !errors.Is(err, ErrDecryption) {
			t.Errorf("Decrypt при инверсии бита в позиции %d: ожидался ErrDecryption, получено %v", pos, err)
		}
	}
}

// TestDecrypt_WrongKey проверяет отказ при чужом ключе.
func TestDecrypt_WrongKey(t *testing.T) {
	env, err := Encrypt([]byte("payload"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	wrongKey := make([]byte, KeySize)
	if _, err := rand.Read(wrongKey); err != nil {
		t.Fatalf("генерация ключа: %v", err)
	}

	if _, err := Decrypt(env.Ciphertext, wrongKey, env.Nonce); !errors.Is(err, ErrDecryption) {
		t.Errorf("ожидался ErrDecryption при чужом ключе, получено %v", err)
	}
}

// TestVerifyHash_MalformedExpected проверяет отказ на некорректном ожидаемом хэше.
func TestVerifyHash_MalformedExpected(t *testing.T) {
	data := []byte("data")

	if VerifyHash(data, "не hex") {
		t.Error("VerifyHash вернул true для не-hex строки")
	}
	if VerifyHash(data, "abcd") {
		t.Error("VerifyHash вернул true для хэша неверной длины")
	}
}
