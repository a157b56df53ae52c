package handlers

import (
	"net/http"

	"github.com/habitflow/auth-service/internal/transport/http/apierrors"
	"github.com/habitflow/auth-service/internal/transport/http/middleware"
)

// Sessions — GET /auth/sessions: активные сессии аутентифицированного
// пользователя, новые первыми. Маршрут закрыт RequireAuth.
func (h *Handlers) Sessions(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		apierrors.WriteCode(w, r, http.StatusUnauthorized, "auth_required", "authentication required")
		return
	}

	sessions, err := h.svc.ListSessions(r.Context(), id.UserID)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionsResponseFrom(sessions))
}
