// grant.go — временный грант на чтение одного файла.
package model

import "time"

// Статусы гранта.
const (
	GrantStatusActive  = "active"
	GrantStatusRevoked = "revoked"
)

// PermissionGrant — разрешение не-владельцу скачивать один файл
// до ExpiresAt. Создаётся и отзывается только владельцем; право на
// запись или повторный шаринг не передаёт.
type PermissionGrant struct {
	// ID — UUID гранта
	ID string
	// FileID — UUID файла
	FileID string
	// GranteeID — UUID профиля получателя
	GranteeID string
	// GrantedBy — UUID профиля владельца, выдавшего грант
	GrantedBy string
	// Status — active или revoked
	Status string
	// ExpiresAt — момент истечения (строго в будущем на момент выдачи)
	ExpiresAt time.Time
	// CreatedAt — время выдачи
	CreatedAt time.Time
}

// ActiveAt сообщает, действует ли грант в момент now.
// Любое из условий (revoked, истёк) означает отказ — частичного доступа нет.
func (g *PermissionGrant) ActiveAt(now time.Time) bool {
	return g.Status == GrantStatusActive && g.ExpiresAt.After(now)
}
