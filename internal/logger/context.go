package logger

import "context"

type ctxKey struct{}

// WithContext stores request scoped logger
func WithContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns logger stored by WithContext or fallback if there is none
func FromContext(ctx context.Context, fallback Logger) Logger {
	if l, ok := ctx.Value(ctxKey{}).(Logger); ok {
		return l
	}
	return fallback
}
