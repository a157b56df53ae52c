package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"github.com/habitflow/auth-service/internal/models"
	"github.com/habitflow/auth-service/internal/pkg/log"
	"github.com/habitflow/auth-service/internal/pkg/redact"
	"github.com/habitflow/auth-service/internal/storage"

	"github.com/google/uuid"
)

// RegisterUser регистрирует нового пользователя и выдаёт первую пару токенов.
func (s *Service) RegisterUser(ctx context.Context, email, pw string) (*models.TokenPair, *models.User, error) {
	const op = "service.auth.RegisterUser"

	normEmail, err := validateEmail(email)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	if err := validatePassword(pw); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	_, err = s.storage.UserByEmail(ctx, normEmail)
	if err == nil {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	hashedPassword, err := s.hasher.Hash(pw)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.New(),
		Email:        normEmail,
		PasswordHash: hashedPassword,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.storage.SaveUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			// Гонка с параллельной регистрацией: уникальность решает БД.
			return nil, nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
		}

		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	return s.issueTokenPair(ctx, user)
}

// LoginUser выполняет вход по email+пароль. Неизвестный email и неверный
// пароль дают один и тот же результат. Прежние сессии не отзываются:
// несколько одновременных сессий на аккаунт разрешены.
func (s *Service) LoginUser(ctx context.Context, email, pw string) (*models.TokenPair, *models.User, error) {
	const op = "service.auth.LoginUser"

	normEmail, err := validateEmail(email)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if len(pw) == 0 {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	user, err := s.storage.UserByEmail(ctx, normEmail)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	if !s.hasher.Verify(user.PasswordHash, pw) {
		log.From(ctx).Warn("login_rejected",
			slog.String("op", op),
			slog.String("email", redact.Email(normEmail)),
		)
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	return s.issueTokenPair(ctx, user)
}

// RefreshToken проводит ротацию: предъявленный секрет атомарно отзывается,
// и только после этого выпускается новая пара. Повтор с тем же секретом —
// в том числе конкурентный — получает ErrInvalidRefreshToken.
func (s *Service) RefreshToken(ctx context.Context, refreshSecret string) (*models.TokenPair, *models.User, error) {
	const op = "service.auth.RefreshToken"

	now := time.Now().UTC()

	token, err := s.claimRefreshToken(ctx, refreshSecret, now)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.storage.UserByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Аккаунт удалён между выпуском токена и ротацией.
			return nil, nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	return s.issueTokenPair(ctx, user)
}

// Logout завершает сессии. Секрет refresh-токена и ID аутентифицированного
// пользователя опциональны:
//   - secret != "" — отзывается конкретная запись; повторный отзыв и
//     неизвестный секрет не считаются ошибкой (идемпотентность);
//   - userID != uuid.Nil — дополнительно отзываются все активные сессии
//     пользователя, независимо от того, каким токеном вызван logout.
func (s *Service) Logout(ctx context.Context, refreshSecret string, userID uuid.UUID) error {
	const op = "service.auth.Logout"

	lg := log.From(ctx)
	now := time.Now().UTC()

	if refreshSecret != "" {
		hash := hashRefreshSecret(refreshSecret)

		revoked, err := s.storage.RevokeRefreshToken(ctx, hash, now)
		switch {
		case err == nil:
			if revoked {
				s.markRevokedInCache(ctx, hash)
			}
		case errors.Is(err, storage.ErrNotFound):
			// Неизвестный/уже отозванный токен — тихий успех.
		default:
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	if userID != uuid.Nil {
		count, err := s.storage.RevokeAllByUser(ctx, userID, now)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		if count > 0 {
			lg.Info("sessions_revoked",
				slog.String("op", op),
				slog.String("user_id", userID.String()),
				slog.Int64("count", count),
			)
		}
	}

	return nil
}

// AuthenticateToken проверяет access-токен и возвращает данные пользователя.
func (s *Service) AuthenticateToken(ctx context.Context, accessToken string) (uuid.UUID, string, error) {
	const op = "service.auth.AuthenticateToken"

	uid, email, err := s.validateAccessToken(accessToken)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("%s: %w", op, err)
	}

	return uid, email, nil
}

// validateEmail проверяет базовый формат email и обрезает пробелы снаружи.
func validateEmail(raw string) (string, error) {
	const op = "service.auth.validateEmail"

	email := strings.TrimSpace(raw)
	if email == "" {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	if _, err := mail.ParseAddress(email); err != nil {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	return strings.ToLower(email), nil
}

// validatePassword проверяет минимальные требования к паролю.
// Политика по умолчанию: длина >= 8, хотя бы одна строчная, заглавная, цифра и спецсимвол.
func validatePassword(pw string) error {
	const op = "service.auth.validatePassword"

	if len(pw) == 0 {
		return fmt.Errorf("%s: %w", op, ErrEmptyPassword)
	}

	if len([]rune(pw)) < 8 {
		return fmt.Errorf("%s: %w", op, ErrWeakPassword)
	}

	var hasLower, hasUpper, hasDigit, hasSpecial bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	if !(hasLower && hasUpper && hasDigit && hasSpecial) {
		return fmt.Errorf("%s: %w", op, ErrWeakPassword)
	}

	return nil
}

// issueTokenPair выпускает новую пару access+refresh токенов.
// Отзыв предъявленного токена при ротации происходит раньше, в
// claimRefreshToken: обрыв вызова между отзывом и выпуском оставляет
// цепочку без активного токена, но никогда — с неотозванным старым.
func (s *Service) issueTokenPair(ctx context.Context, user *models.User) (*models.TokenPair, *models.User, error) {
	const op = "service.auth.issueTokenPair"

	now := time.Now().UTC()

	accessToken, err := s.generateAccessToken(ctx, user.ID, user.Email, now)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	plain, err := s.generateRefreshToken(ctx, user.ID, now)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	return &models.TokenPair{
		AccessToken:     accessToken,
		RefreshToken:    plain,
		AccessExpiresAt: now.Add(s.cfg.AccessTokenTTL),
	}, user, nil
}
