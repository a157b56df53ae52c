package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/habitflow/auth-service/internal/transport/http/apierrors"

	"github.com/google/uuid"
)

// Identity — данные аутентифицированного пользователя из access-токена.
type Identity struct {
	UserID uuid.UUID
	Email  string
}

// TokenAuthenticator проверяет access-токен; реализуется сервисным слоем.
type TokenAuthenticator interface {
	AuthenticateToken(ctx context.Context, accessToken string) (uuid.UUID, string, error)
}

type identityKey struct{}

// IdentityFrom достаёт личность пользователя из контекста.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// Authenticate извлекает Bearer-токен из Authorization и, если он валиден,
// кладёт Identity в контекст. Отсутствующий или невалидный токен здесь не
// ошибка: обязательность аутентификации решает RequireAuth на маршруте.
func Authenticate(auth TokenAuthenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token != "" {
				if uid, email, err := auth.AuthenticateToken(r.Context(), token); err == nil {
					ctx := context.WithValue(r.Context(), identityKey{}, Identity{
						UserID: uid,
						Email:  email,
					})
					r = r.WithContext(ctx)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth отклоняет запрос без валидного access-токена.
// Должен стоять после Authenticate.
func RequireAuth() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := IdentityFrom(r.Context()); !ok {
				apierrors.WriteCode(w, r, http.StatusUnauthorized, "auth_required", "authentication required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken возвращает токен из "Authorization: Bearer <token>" или "".
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}

	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) || len(auth) == len(prefix) {
		return ""
	}

	return strings.TrimSpace(auth[len(prefix):])
}
