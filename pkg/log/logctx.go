// log прокидывает request-scoped слог через контекст: Into кладёт логгер,
// From достаёт его (пустой контекст безопасен — вернётся slog.Default()),
// With обогащает контекстный логгер атрибутами на месте.
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

// From достаёт логгер из контекста; если его там нет — slog.Default().
func From(ctx context.Context) *slog.Logger {
	l, ok := ctx.Value(ctxKey{}).(*slog.Logger)
	if !ok || l == nil {
		return slog.Default()
	}

	return l
}

// With возвращает контекст, чей логгер дополнен атрибутами: все последующие
// записи через From понесут их автоматически.
func With(ctx context.Context, attrs ...any) context.Context {
	return Into(ctx, From(ctx).With(attrs...))
}
