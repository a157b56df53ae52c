package service

import (
	"context"
	"fmt"
	"time"

	"github.com/habitflow/auth-service/internal/models"

	"github.com/google/uuid"
)

// ListSessions возвращает активные сессии пользователя, новые первыми.
// Сессия — проекция активной записи refresh-токена: наружу уходят только
// идентификатор и сроки, хэши и секреты не возвращаются никогда.
func (s *Service) ListSessions(ctx context.Context, userID uuid.UUID) ([]models.Session, error) {
	const op = "service.sessions.ListSessions"

	tokens, err := s.storage.ActiveRefreshTokensByUser(ctx, userID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sessions := make([]models.Session, 0, len(tokens))
	for _, t := range tokens {
		sessions = append(sessions, models.Session{
			ID:        t.ID,
			CreatedAt: t.CreatedAt,
			ExpiresAt: t.ExpiresAt,
		})
	}

	return sessions, nil
}
