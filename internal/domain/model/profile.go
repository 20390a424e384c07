// profile.go — профиль идентичности, владеющей файлами.
package model

import "time"

// Тарифы профиля. Tier assured требует обязательной повторной проверки
// хэша ciphertext при каждом retrieval.
const (
	TierStandard = "standard"
	TierAssured  = "assured"
)

// Profile — запись идентичности в хранилище метаданных.
// AuthIdentityID — sub верифицированного bearer-токена (identity provider).
type Profile struct {
	// ID — UUID профиля
	ID string
	// AuthIdentityID — идентификатор в identity provider (уникален)
	AuthIdentityID string
	// Tier — standard или assured
	Tier string
	// CreatedAt — время создания
	CreatedAt time.Time
}

// RequiresHashVerification сообщает, обязана ли retrieval-цепочка
// повторно проверять хэш ciphertext для этого профиля.
func (p *Profile) RequiresHashVerification() bool {
	return p.Tier == TierAssured
}
