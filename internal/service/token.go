package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/habitflow/auth-service/internal/cache"
	"github.com/habitflow/auth-service/internal/models"
	"github.com/habitflow/auth-service/internal/pkg/log"
	"github.com/habitflow/auth-service/internal/storage"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type accessClaims struct {
	UserID string `json:"uid"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// generateAccessToken генерирует access-токен.
func (s *Service) generateAccessToken(ctx context.Context, userID uuid.UUID, email string, now time.Time) (string, error) {
	const op = "service.token.generateAccessToken"

	lg := log.From(ctx)

	claims := accessClaims{
		UserID: userID.String(),
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.cfg.Issuer,
			Subject:   userID.String(),
			Audience:  jwt.ClaimStrings(s.cfg.Audience),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		lg.Error("access_token_sign_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, nil
}

// validateAccessToken валидирует access-токен: подпись, алгоритм,
// issuer, audience и срок действия (с небольшим leeway).
func (s *Service) validateAccessToken(tokenStr string) (uuid.UUID, string, error) {
	const op = "service.token.validateAccessToken"

	token, err := jwt.ParseWithClaims(tokenStr, &accessClaims{},
		func(t *jwt.Token) (interface{}, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
			}

			return []byte(s.cfg.JWTSecret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(5*time.Second),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithAudience(s.cfg.Audience...),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return uuid.Nil, "", fmt.Errorf("%s: %w", op, ErrTokenExpired)
		}

		return uuid.Nil, "", fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	claims, ok := token.Claims.(*accessClaims)
	if !ok || !token.Valid {
		return uuid.Nil, "", fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	uid, err := uuid.Parse(claims.UserID)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	return uid, claims.Email, nil
}

// hashRefreshSecret — SHA-256 → base64url; в хранилище попадает только хэш.
func hashRefreshSecret(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// generateRefreshToken создаёт новый refresh-токен: 32 байта случайного
// секрета (256 бит энтропии), в БД сохраняется запись с его хэшем.
// Секрет возвращается вызывающему ровно один раз.
func (s *Service) generateRefreshToken(ctx context.Context, userID uuid.UUID, now time.Time) (string, error) {
	const (
		op          = "service.token.generateRefreshToken"
		maxAttempts = 5
	)

	lg := log.From(ctx)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			lg.Error("refresh_rand_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
			return "", fmt.Errorf("%s: %w", op, err)
		}
		plain := base64.RawURLEncoding.EncodeToString(b)
		hash := hashRefreshSecret(plain)

		token := &models.RefreshToken{
			ID:        uuid.New(),
			UserID:    userID,
			TokenHash: hash,
			CreatedAt: now,
			ExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
		}

		if err := s.storage.SaveRefreshToken(ctx, token); err != nil {
			if errors.Is(err, storage.ErrAlreadyExists) {
				// Редкая коллизия — пробуем сгенерировать заново.
				continue
			}

			lg.Error("save_refresh_token_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
			return "", fmt.Errorf("%s: %w", op, err)
		}

		if s.rcache != nil {
			entry := &cache.RefreshEntry{
				UserID:    userID,
				Revoked:   false,
				ExpiresAt: token.ExpiresAt,
			}
			if err := s.rcache.Set(ctx, hash, entry, s.cfg.RefreshTokenTTL); err != nil {
				lg.Warn("refresh_cache_set_failed",
					slog.String("op", op),
					slog.String("err", err.Error()),
				)
			}
		}

		return plain, nil
	}

	lg.Error("refresh_collision_exceeded",
		slog.String("op", op),
	)

	return "", fmt.Errorf("%s: %w", op, ErrRefreshTokenCollision)
}

// claimRefreshToken атомарно отзывает активную запись по секрету и возвращает её.
// Любое отсутствие активной записи схлопывается в ErrInvalidRefreshToken.
func (s *Service) claimRefreshToken(ctx context.Context, plain string, now time.Time) (*models.RefreshToken, error) {
	const op = "service.token.claimRefreshToken"

	lg := log.From(ctx)
	hash := hashRefreshSecret(plain)

	// Быстрый путь: заведомо отозванный/просроченный токен отклоняем по кэшу,
	// не трогая БД. Промах или ошибка кэша — идём в БД как обычно.
	if s.rcache != nil {
		entry, ok, err := s.rcache.Get(ctx, hash)
		if err != nil {
			lg.Warn("refresh_cache_get_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
		} else if ok && (entry.Revoked || !now.Before(entry.ExpiresAt)) {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidRefreshToken)
		}
	}

	token, err := s.storage.ClaimRefreshToken(ctx, hash, now)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			lg.Warn("refresh_claim_rejected",
				slog.String("op", op),
			)
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidRefreshToken)
		}

		lg.Error("refresh_claim_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.markRevokedInCache(ctx, hash)

	return token, nil
}

// markRevokedInCache помечает хэш отозванным в кэше; ошибки только логируются.
func (s *Service) markRevokedInCache(ctx context.Context, hash string) {
	if s.rcache == nil {
		return
	}

	if err := s.rcache.MarkRevoked(ctx, hash); err != nil {
		log.From(ctx).Warn("refresh_cache_revoke_failed",
			slog.String("err", err.Error()),
		)
	}
}
