package domain

import "context"

type correlationKey struct{}

// WithCorrelationID кладёт сквозной идентификатор входящего события в контекст.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationIDFrom достаёт сквозной идентификатор из контекста; пустая строка — нет.
func CorrelationIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}
