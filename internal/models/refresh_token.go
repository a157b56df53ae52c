package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken — персистентная запись refresh-токена.
//
// Сам секрет в БД не попадает: хранится только его SHA-256-хэш (TokenHash).
// Запись активна, если RevokedAt == nil и ExpiresAt в будущем; продление
// срока действия не предусмотрено — единственная мутация записи это отзыв.
type RefreshToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	// RevokedAt — момент отзыва; nil, пока токен не отозван.
	RevokedAt *time.Time
}

// Active сообщает, действителен ли токен на момент now.
func (t *RefreshToken) Active(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}
