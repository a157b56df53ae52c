// http собирает REST-роутер auth-сервиса: chi + мидлвары + маршруты.
//
// Порядок мидлваров (внешний -> внутренний): Recover, RequestID, Logging,
// Authenticate, Timeout, затем лимитеры на группах маршрутов. Лимитер стоит
// до хендлера, поэтому отклонённый запрос не доходит до проверки учётных
// данных и не раскрывает, какие идентификаторы существуют.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/habitflow/auth-service/internal/config"
	"github.com/habitflow/auth-service/internal/ratelimit"
	"github.com/habitflow/auth-service/internal/service"
	"github.com/habitflow/auth-service/internal/transport/http/handlers"
	"github.com/habitflow/auth-service/internal/transport/http/middleware"

	"github.com/go-chi/chi/v5"
)

// Options — параметры сборки HTTP-роутера.
type Options struct {
	Logger  *slog.Logger
	Timeout time.Duration
	Limits  config.LimitsConfig
}

// Limiters — три уровня Admission Guard; собираются в main и передаются
// сюда, чтобы фоновый Sweep жил рядом с janitor-ом.
type Limiters struct {
	General  *ratelimit.Limiter
	Auth     *ratelimit.Limiter
	Register *ratelimit.Limiter
}

// NewLimiters создаёт лимитеры по конфигурации.
func NewLimiters(cfg config.LimitsConfig) *Limiters {
	return &Limiters{
		General:  ratelimit.New(ratelimit.Policy{Limit: cfg.General.Max, Window: cfg.General.Window}),
		Auth:     ratelimit.New(ratelimit.Policy{Limit: cfg.Auth.Max, Window: cfg.Auth.Window}),
		Register: ratelimit.New(ratelimit.Policy{Limit: cfg.Register.Max, Window: cfg.Register.Window}),
	}
}

// Sweep вычищает пустые ключи во всех лимитерах.
func (l *Limiters) Sweep(now time.Time) {
	l.General.Sweep(now)
	l.Auth.Sweep(now)
	l.Register.Sweep(now)
}

// NewRouter собирает http.Handler с chi и подключёнными middleware/роутами.
func NewRouter(svc *service.Service, lim *Limiters, opts Options) http.Handler {
	root := chi.NewRouter()

	key := middleware.RemoteAddrKey()
	if opts.Limits.TrustedIPHeader != "" {
		key = middleware.TrustedHeaderKey(opts.Limits.TrustedIPHeader)
	}

	// Middleware (внешний -> внутренний).
	root.Use(
		middleware.Recover(),            // безопасно ловим паники
		middleware.RequestID(),          // формируем/прокидываем X-Request-Id (до логирования!)
		middleware.Logging(opts.Logger), // кладём request-scoped логгер в контекст и логируем
		middleware.Authenticate(svc),    // вынимаем Bearer токен и кладём Identity в контекст
	)
	if opts.Timeout > 0 {
		root.Use(middleware.Timeout(opts.Timeout)) // общий дедлайн запроса
	}
	root.Use(middleware.RateLimit(lim.General, key, false))

	h := handlers.New(svc)

	// Регистрация: самый строгий лимит.
	root.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(lim.Register, key, false))
		r.Post("/auth/register", h.Register)
	})

	// Аутентификация: считаются только неудачные попытки.
	root.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(lim.Auth, key, true))
		r.Post("/auth/login", h.Login)
		r.Post("/auth/refresh", h.Refresh)
	})

	root.Post("/auth/logout", h.Logout)

	root.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth())
		r.Get("/auth/sessions", h.Sessions)
	})

	return root
}
