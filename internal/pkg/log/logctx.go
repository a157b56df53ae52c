// log передаёт request-scoped *slog.Logger через context.Context.
// HTTP-мидлвар кладёт в контекст логгер, уже обогащённый request_id,
// а сервисный слой достаёт его через From, ничего не зная о транспорте.
package log

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

// Into кладёт логгер в контекст.
func Into(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From достаёт логгер из контекста; если его там нет, лежит постороннее
// значение или nil — возвращает slog.Default().
func From(ctx context.Context) *slog.Logger {
	if v := ctx.Value(ctxKey{}); v != nil {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}

	return slog.Default()
}
