package handlers

import (
	"time"

	"github.com/habitflow/auth-service/internal/models"
)

// registerRequest — тело POST /auth/register.
type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginRequest — тело POST /auth/login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// refreshRequest — тело POST /auth/refresh.
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// logoutRequest — тело POST /auth/logout; refresh_token опционален.
type logoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

// accountView — публичное представление учётной записи.
// Хэш пароля наружу не отдаётся никогда.
type accountView struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// authResponse — ответ register/login/refresh.
type authResponse struct {
	AccessToken     string      `json:"access_token"`
	RefreshToken    string      `json:"refresh_token"`
	AccessExpiresAt int64       `json:"access_expires_at"`
	Account         accountView `json:"account"`
}

// logoutResponse — ответ POST /auth/logout.
type logoutResponse struct {
	Ok bool `json:"ok"`
}

// sessionView — одна активная сессия в ответе GET /auth/sessions.
type sessionView struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// sessionsResponse — ответ GET /auth/sessions.
type sessionsResponse struct {
	Sessions []sessionView `json:"sessions"`
}

// authResponseFrom собирает ответ из доменных моделей.
func authResponseFrom(tp *models.TokenPair, user *models.User) authResponse {
	return authResponse{
		AccessToken:     tp.AccessToken,
		RefreshToken:    tp.RefreshToken,
		AccessExpiresAt: tp.AccessExpiresAt.Unix(),
		Account: accountView{
			ID:    user.ID.String(),
			Email: user.Email,
		},
	}
}

// sessionsResponseFrom собирает ответ из проекций сессий.
func sessionsResponseFrom(sessions []models.Session) sessionsResponse {
	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, sessionView{
			ID:        s.ID.String(),
			CreatedAt: s.CreatedAt,
			ExpiresAt: s.ExpiresAt,
		})
	}

	return sessionsResponse{Sessions: views}
}
