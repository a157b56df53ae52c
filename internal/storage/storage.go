package storage

import (
	"context"
	"errors"
	"time"

	"github.com/habitflow/auth-service/internal/models"

	"github.com/google/uuid"
)

var (
	// ErrNotFound — запись не найдена (пользователь/токен).
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists — нарушение уникальности (email/хэш refresh-токена).
	ErrAlreadyExists = errors.New("already exists")
)

// UserStorage выполняет операции над пользователями.
type UserStorage interface {
	// SaveUser создаёт нового пользователя.
	SaveUser(ctx context.Context, user *models.User) error
	// UserByEmail находит пользователя по нормализованному email.
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	// UserByID находит пользователя по ID.
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// RefreshTokenStorage выполняет операции над refresh-токенами.
type RefreshTokenStorage interface {
	// SaveRefreshToken сохраняет новую запись refresh-токена.
	SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error
	// ClaimRefreshToken атомарно находит активную запись по хэшу и отзывает её.
	// Возвращает отозванную запись; ErrNotFound — если активной записи нет
	// (неизвестный, просроченный или уже отозванный токен неразличимы).
	ClaimRefreshToken(ctx context.Context, hash string, now time.Time) (*models.RefreshToken, error)
	// RevokeRefreshToken отзывает запись по хэшу.
	// Возвращает true, если запись была активна и отозвана этим вызовом;
	// false — если уже была отозвана; ErrNotFound — если записи нет.
	RevokeRefreshToken(ctx context.Context, hash string, now time.Time) (bool, error)
	// RevokeAllByUser отзывает все активные записи пользователя,
	// возвращает число отозванных.
	RevokeAllByUser(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error)
	// ActiveRefreshTokensByUser возвращает активные записи пользователя,
	// новые первыми.
	ActiveRefreshTokensByUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]models.RefreshToken, error)
	// DeleteExpiredTokens удаляет просроченные и отозванные записи,
	// возвращает число удалённых.
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

// Storage задаёт контракт работы с БД.
type Storage interface {
	UserStorage
	RefreshTokenStorage
	Close()
}
