// apierrors стандартизирует ответы об ошибках HTTP-слоя.
// На вход он принимает ошибку доменного слоя (service), а на выход даёт:
//   - корректный HTTP-статус;
//   - стабильный машиночитаемый код;
//   - краткое безопасное message без утечки деталей.
//
// Ни один ответ не раскрывает, зарегистрирован ли email, существовал ли
// токен и по какой именно причине отклонён запрос внутри своего класса.
package apierrors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/habitflow/auth-service/internal/service"
)

// APIError — единый формат ошибки для клиента.
// Code — короткий стабильный код для машиночитаемой обработки.
// Message — безопасное человекочитаемое описание.
// RequestID — прокидывается из X-Request-Id, если есть (для трассировки).
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse — корневой объект в ответе.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// ToHTTP конвертирует доменную ошибку в HTTP-статус и унифицированный ответ.
//
// Поведение:
//   - err == nil — это программная ошибка вызова: возвращаем 500/internal,
//     чтобы не послать "200 OK" с телом ошибки и не маскировать баг;
//   - нераспознанная ошибка (хранилище, подпись) — 500/internal без деталей.
func ToHTTP(err error) (int, ErrorResponse) {
	status, code, msg := classify(err)

	return status, ErrorResponse{
		Error: APIError{
			Code:    code,
			Message: msg,
		},
	}
}

// WriteError — хелпер для HTTP-хендлеров.
// Пишет корректный статус/тело, добавляет request_id из заголовка, если он есть.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)

	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.Error.RequestID = rid
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// WriteCode пишет ответ с явным статусом и кодом — для ошибок, рождающихся
// в самом HTTP-слое (битый JSON, отсутствие токена, превышение лимита).
func WriteCode(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	resp := ErrorResponse{
		Error: APIError{
			Code:    code,
			Message: msg,
		},
	}

	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.Error.RequestID = rid
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// classify — маппинг доменных ошибок на HTTP-статус/код/сообщение.
// Таксономия:
//   - ErrInvalidEmail/ErrWeakPassword/ErrEmptyPassword -> 400 validation_error;
//   - ErrEmailTaken -> 409 account_exists;
//   - ErrInvalidCredentials -> 401 invalid_credentials (email и пароль неразличимы);
//   - ErrInvalidRefreshToken -> 401 invalid_refresh_token (unknown/expired/revoked едины);
//   - ErrInvalidToken/ErrTokenExpired -> 401 auth_required;
//   - ErrUserNotFound -> 404 user_not_found;
//   - прочее -> 500 internal (детали только в логи).
func classify(err error) (int, string, string) {
	switch {
	case err == nil:
		return http.StatusInternalServerError, "internal", "internal error"
	case errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrWeakPassword),
		errors.Is(err, service.ErrEmptyPassword):
		return http.StatusBadRequest, "validation_error", "invalid request"
	case errors.Is(err, service.ErrEmailTaken):
		return http.StatusConflict, "account_exists", "account already exists"
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "invalid credentials"
	case errors.Is(err, service.ErrInvalidRefreshToken):
		return http.StatusUnauthorized, "invalid_refresh_token", "invalid refresh token"
	case errors.Is(err, service.ErrInvalidToken),
		errors.Is(err, service.ErrTokenExpired):
		return http.StatusUnauthorized, "auth_required", "authentication required"
	case errors.Is(err, service.ErrUserNotFound):
		return http.StatusNotFound, "user_not_found", "user not found"
	default:
		return http.StatusInternalServerError, "internal", "internal error"
	}
}
