// log передаёт request-scoped *slog.Logger через context.Context:
// транспорт кладёт обогащённый логгер в контекст запроса, нижние слои
// достают его через From, не зная о транспорте.
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

// From достаёт логгер из контекста (или возвращает slog.Default()).
func From(ctx context.Context) *slog.Logger {
	if v := ctx.Value(ctxKey{}); v != nil {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}

	return slog.Default()
}

// WithAttrs добавляет атрибуты к логгеру запроса и возвращает контекст
// с обогащённым логгером. Атрибуты наследуются всеми записями ниже по стеку.
func WithAttrs(ctx context.Context, args ...any) context.Context {
	return Into(ctx, From(ctx).With(args...))
}
