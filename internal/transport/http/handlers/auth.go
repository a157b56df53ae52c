package handlers

import (
	"net/http"

	"github.com/habitflow/auth-service/internal/transport/http/apierrors"
	"github.com/habitflow/auth-service/internal/transport/http/middleware"

	"github.com/google/uuid"
)

// Register — POST /auth/register.
// Успех: 201 с парой токенов и публичным представлением аккаунта.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var in registerRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteCode(w, r, http.StatusBadRequest, "validation_error", "invalid request")
		return
	}

	tp, user, err := h.svc.RegisterUser(r.Context(), in.Email, in.Password)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, authResponseFrom(tp, user))
}

// Login — POST /auth/login.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteCode(w, r, http.StatusBadRequest, "validation_error", "invalid request")
		return
	}

	tp, user, err := h.svc.LoginUser(r.Context(), in.Email, in.Password)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponseFrom(tp, user))
}

// Refresh — POST /auth/refresh: ротация пары по refresh-токену.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var in refreshRequest
	if err := decodeStrict(r, &in); err != nil || in.RefreshToken == "" {
		apierrors.WriteCode(w, r, http.StatusBadRequest, "validation_error", "invalid request")
		return
	}

	tp, user, err := h.svc.RefreshToken(r.Context(), in.RefreshToken)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponseFrom(tp, user))
}

// Logout — POST /auth/logout.
// Тело опционально; при валидном access-токене в Authorization дополнительно
// отзываются все сессии пользователя. Всегда отвечает успехом, если дошёл
// до бизнес-логики (идемпотентность отзыва).
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	var in logoutRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := decodeStrict(r, &in); err != nil {
			apierrors.WriteCode(w, r, http.StatusBadRequest, "validation_error", "invalid request")
			return
		}
	}

	userID := uuid.Nil
	if id, ok := middleware.IdentityFrom(r.Context()); ok {
		userID = id.UserID
	}

	if err := h.svc.Logout(r.Context(), in.RefreshToken, userID); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, logoutResponse{Ok: true})
}
