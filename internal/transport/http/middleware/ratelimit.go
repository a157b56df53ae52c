package middleware

import (
	"net"
	"net/http"
	"time"

	"github.com/habitflow/auth-service/internal/ratelimit"
	"github.com/habitflow/auth-service/internal/transport/http/apierrors"
)

// KeyFunc извлекает ключ лимитирования из запроса (обычно IP клиента).
// Стратегия подменяема: за доверенным прокси IP берётся из заголовка.
type KeyFunc func(r *http.Request) string

// RemoteAddrKey — ключ по IP из RemoteAddr (порт отбрасывается).
func RemoteAddrKey() KeyFunc {
	return func(r *http.Request) string {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return r.RemoteAddr
		}
		return host
	}
}

// TrustedHeaderKey — ключ из заголовка доверенного прокси (например, X-Real-Ip);
// при его отсутствии откатывается на RemoteAddr.
func TrustedHeaderKey(header string) KeyFunc {
	fallback := RemoteAddrKey()
	return func(r *http.Request) string {
		if v := r.Header.Get(header); v != "" {
			return v
		}
		return fallback(r)
	}
}

// RateLimit отклоняет запрос до вызова бизнес-логики, если ключ исчерпал
// лимит. forgiveSuccess=true — успешные (<400) ответы не учитываются:
// так настраиваются эндпоинты аутентификации, где считаются только неудачи.
func RateLimit(l *ratelimit.Limiter, key KeyFunc, forgiveSuccess bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if !l.Allow(k, time.Now().UTC()) {
				apierrors.WriteCode(w, r, http.StatusTooManyRequests, "rate_limit_exceeded", "too many requests")
				return
			}

			if !forgiveSuccess {
				next.ServeHTTP(w, r)
				return
			}

			sw := newStatusWriter(w)
			next.ServeHTTP(sw, r)

			if sw.status < http.StatusBadRequest {
				l.Forgive(k)
			}
		})
	}
}
