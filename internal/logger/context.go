package logger

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey struct{}

// WithContext stores a request-scoped logger in the context.
func WithContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext extracts the request-scoped logger, or a no-op logger when
// none was stored.
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}
