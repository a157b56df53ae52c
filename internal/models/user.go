package models

import (
	"time"

	"github.com/google/uuid"
)

// User — учётная запись пользователя.
//
// PasswordHash содержит только argon2id-дайджест: открытый пароль
// не сохраняется, не логируется и не возвращается наружу.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
