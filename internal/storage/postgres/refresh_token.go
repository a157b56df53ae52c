package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/habitflow/auth-service/internal/models"
	"github.com/habitflow/auth-service/internal/storage"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// SaveRefreshToken сохраняет новую запись refresh-токена в БД.
func (s *Storage) SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	const op = "storage.postgres.SaveRefreshToken"

	query := `
        INSERT INTO refresh_tokens(id, user_id, token_hash, created_at, expires_at, revoked_at)
        VALUES ($1, $2, $3, $4, $5, NULL)
    `

	_, err := s.db.Exec(ctx, query,
		token.ID,
		token.UserID,
		token.TokenHash,
		token.CreatedAt,
		token.ExpiresAt,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// ClaimRefreshToken атомарно отзывает активную запись по хэшу и возвращает её.
//
// Условный UPDATE гарантирует, что при конкурентных вызовах с одним и тем же
// секретом ровно один из них получит запись: остальные увидят ErrNotFound.
// Неизвестный, просроченный и уже отозванный токены снаружи неотличимы.
func (s *Storage) ClaimRefreshToken(ctx context.Context, hash string, now time.Time) (*models.RefreshToken, error) {
	const op = "storage.postgres.ClaimRefreshToken"

	query := `
		UPDATE refresh_tokens
		SET revoked_at = $2
		WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > $2
		RETURNING id, user_id, token_hash, created_at, expires_at, revoked_at
	`

	var token models.RefreshToken
	err := s.db.QueryRow(ctx, query, hash, now).Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.CreatedAt,
		&token.ExpiresAt,
		&token.RevokedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &token, nil
}

// RevokeRefreshToken отзывает запись по хэшу, если она ещё не отозвана.
// Возвращает:
//
//	(true, nil)  — запись была активна и отозвана сейчас;
//	(false, nil) — запись существует, но уже была отозвана;
//	(false, ErrNotFound) — записи нет.
func (s *Storage) RevokeRefreshToken(ctx context.Context, hash string, now time.Time) (bool, error) {
	const op = "storage.postgres.RevokeRefreshToken"

	const upd = `
		UPDATE refresh_tokens
		SET revoked_at = $2
		WHERE token_hash = $1 AND revoked_at IS NULL
		RETURNING user_id
	`

	var userID uuid.UUID
	err := s.db.QueryRow(ctx, upd, hash, now).Scan(&userID)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	const sel = `
		SELECT revoked_at
		FROM refresh_tokens
		WHERE token_hash = $1
	`

	var revokedAt *time.Time
	err = s.db.QueryRow(ctx, sel, hash).Scan(&revokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return false, fmt.Errorf("%s: %w", op, err)
	}

	return false, nil
}

// RevokeAllByUser отзывает все активные записи пользователя.
func (s *Storage) RevokeAllByUser(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	const op = "storage.postgres.RevokeAllByUser"

	query := `
		UPDATE refresh_tokens
		SET revoked_at = $2
		WHERE user_id = $1 AND revoked_at IS NULL
	`

	cmdTag, err := s.db.Exec(ctx, query, userID, now)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return cmdTag.RowsAffected(), nil
}

// ActiveRefreshTokensByUser возвращает активные записи пользователя, новые первыми.
func (s *Storage) ActiveRefreshTokensByUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]models.RefreshToken, error) {
	const op = "storage.postgres.ActiveRefreshTokensByUser"

	query := `
		SELECT id, user_id, token_hash, created_at, expires_at, revoked_at
		FROM refresh_tokens
		WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2
		ORDER BY created_at DESC
	`

	rows, err := s.db.Query(ctx, query, userID, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var tokens []models.RefreshToken
	for rows.Next() {
		var token models.RefreshToken
		if err := rows.Scan(
			&token.ID,
			&token.UserID,
			&token.TokenHash,
			&token.CreatedAt,
			&token.ExpiresAt,
			&token.RevokedAt,
		); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		tokens = append(tokens, token)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return tokens, nil
}

// DeleteExpiredTokens удаляет просроченные и отозванные записи.
func (s *Storage) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.postgres.DeleteExpiredTokens"

	query := `
        DELETE FROM refresh_tokens
        WHERE expires_at <= $1 OR revoked_at IS NOT NULL
    `

	cmdTag, err := s.db.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return cmdTag.RowsAffected(), nil
}
