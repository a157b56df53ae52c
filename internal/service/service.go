// service содержит бизнес-логику auth-сервиса: регистрацию и вход,
// ротацию refresh-токенов с защитой от повторного использования, отзыв
// сессий (точечный и массовый), выдачу списка сессий и проверку
// access-токенов. Работа с хранилищем идёт через интерфейсы пакета storage.
//
// Основные аспекты:
//   - Экземпляр Service не хранит состояние запроса и безопасен для
//     конкурентного использования при потокобезопасном storage.Storage;
//   - Ошибки возвращаются типизированными и далее маппятся транспортом
//     на HTTP-коды (см. комментарии к переменным ошибок ниже);
//   - Неизвестный email и неверный пароль, как и неизвестный/просроченный/
//     отозванный refresh-токен, наружу неразличимы — это защита от
//     перечисления учётных записей и токенов.
package service

import (
	"errors"

	"github.com/habitflow/auth-service/internal/cache"
	"github.com/habitflow/auth-service/internal/config"
	"github.com/habitflow/auth-service/internal/password"
	"github.com/habitflow/auth-service/internal/storage"
)

var (
	// ErrInvalidCredentials — пара логин/пароль неверна или пользователь не найден.
	// Транспорт: 401 invalid_credentials.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidRefreshToken — refresh-токен неизвестен, просрочен, отозван
	// или уже был использован для ротации. Случаи наружу не различаются.
	// Транспорт: 401 invalid_refresh_token.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// ErrInvalidToken — access-токен некорректен по формату/подписи/клеймам.
	// Транспорт: 401 auth_required.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired — срок действия access-токена истёк.
	// Транспорт: 401 auth_required.
	ErrTokenExpired = errors.New("token expired")

	// ErrEmailTaken — e-mail уже занят другим пользователем.
	// Транспорт: 409 account_exists.
	ErrEmailTaken = errors.New("email already taken")

	// ErrUserNotFound — учётная запись исчезла между проверкой токена и
	// обращением к хранилищу (удалена административно).
	// Транспорт: 404 user_not_found.
	ErrUserNotFound = errors.New("user not found")

	// ErrRefreshTokenCollision — исчерпаны попытки сгенерировать уникальный
	// refresh-токен (редчайшая коллизия хэша при сохранении).
	// Транспорт: 500 internal.
	ErrRefreshTokenCollision = errors.New("refresh token collision")

	// ErrInvalidEmail — e-mail имеет некорректный формат.
	// Транспорт: 400 validation_error.
	ErrInvalidEmail = errors.New("invalid email format")

	// ErrWeakPassword — пароль не удовлетворяет политике сложности.
	// Транспорт: 400 validation_error.
	ErrWeakPassword = errors.New("password is too weak")

	// ErrEmptyPassword — пароль пустой.
	// Транспорт: 400 validation_error.
	ErrEmptyPassword = errors.New("password is empty")
)

// Service описывает бизнес-логику auth-сервиса.
type Service struct {
	storage storage.Storage
	cfg     config.AuthConfig
	hasher  *password.Hasher
	rcache  cache.RefreshCache // может быть nil, если кэш не сконфигурирован
}

// New создаёт новый экземпляр Service.
// Конфигурация и параметры хэширования фиксируются на время жизни экземпляра.
func New(storage storage.Storage, cfg config.AuthConfig, hasher *password.Hasher) *Service {
	return &Service{
		storage: storage,
		cfg:     cfg,
		hasher:  hasher,
	}
}

// SetRefreshCache устанавливает кэш refresh-токенов (опционально).
func (s *Service) SetRefreshCache(c cache.RefreshCache) {
	s.rcache = c
}
