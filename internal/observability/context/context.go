package context

import (
	"context"
	"strings"
)

type ctxKey string

const (
	requestIDKey ctxKey = "request_id"
	garageIDKey  ctxKey = "garage_id"
	actorKindKey ctxKey = "actor_kind"
	actorIDKey   ctxKey = "actor_id"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, strings.TrimSpace(requestID))
}

func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

func WithGarageID(ctx context.Context, garageID string) context.Context {
	return context.WithValue(ctx, garageIDKey, strings.TrimSpace(garageID))
}

func GarageIDFromContext(ctx context.Context) string {
	return stringValue(ctx, garageIDKey)
}

// WithActor records who is acting: "standard" or "shadow" plus the identity id.
func WithActor(ctx context.Context, kind, id string) context.Context {
	ctx = context.WithValue(ctx, actorKindKey, strings.TrimSpace(kind))
	return context.WithValue(ctx, actorIDKey, strings.TrimSpace(id))
}

func ActorFromContext(ctx context.Context) (string, string) {
	return stringValue(ctx, actorKindKey), stringValue(ctx, actorIDKey)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(key).(string)
	return value
}
