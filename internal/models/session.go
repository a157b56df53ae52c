package models

import (
	"time"

	"github.com/google/uuid"
)

// Session — проекция активного refresh-токена для выдачи списка сессий.
// Не является отдельной сущностью в БД: собирается из активных записей
// refresh_tokens. Хэши и секреты в проекцию не попадают.
type Session struct {
	ID        uuid.UUID
	CreatedAt time.Time
	ExpiresAt time.Time
}
