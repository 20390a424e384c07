// locator.go — унифицированный локатор блоба.
// Записи до миграции на content-addressed storage хранят путь в legacy
// S3-бакете; новые записи — content identifier. Вместо ветвления по
// «какое поле заполнено» оба варианта сведены к одному типу с дискриминатором.
package storage

import (
	"fmt"
	"strings"
)

// Scheme — вариант адресации блоба.
type Scheme string

const (
	// SchemeCID — канонический content identifier (pinning-сеть).
	SchemeCID Scheme = "cid"
	// SchemeLegacy — путь в legacy-хранилище (S3-ключ).
	SchemeLegacy Scheme = "legacy"
)

// Locator — адрес зашифрованного блоба.
type Locator struct {
	// Scheme — cid или legacy
	Scheme Scheme
	// Ref — CID либо S3-ключ
	Ref string
}

// ParseLocator разбирает строковое представление локатора.
// Канонический вид: "cid://<CID>". Всё остальное (непустое) трактуется
// как legacy-путь — записи до миграции формата префикса не имели.
func ParseLocator(raw string) (Locator, error) {
	if raw == "" {
		return Locator{}, fmt.Errorf("пустой локатор")
	}
	if ref, ok := strings.CutPrefix(raw, "cid://"); ok {
		if ref == "" {
			return Locator{}, fmt.Errorf("локатор cid:// без идентификатора")
		}
		return Locator{Scheme: SchemeCID, Ref: ref}, nil
	}
	return Locator{Scheme: SchemeLegacy, Ref: raw}, nil
}

// String возвращает строковое представление для хранения в file_records.
func (l Locator) String() string {
	if l.Scheme == SchemeCID {
		return "cid://" + l.Ref
	}
	return l.Ref
}

// CIDLocator формирует канонический локатор по CID.
func CIDLocator(cid string) Locator {
	return Locator{Scheme: SchemeCID, Ref: cid}
}
