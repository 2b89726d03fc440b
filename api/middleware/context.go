package middleware

import (
	"context"

	"github.com/evdms/dealer-backend/internal/workflow"
)

type contextKey string

const (
	ctxActor contextKey = "actor"
)

// ActorFromContext returns the actor resolved by Auth.
func ActorFromContext(ctx context.Context) (workflow.Actor, bool) {
	if ctx == nil {
		return workflow.Actor{}, false
	}
	actor, ok := ctx.Value(ctxActor).(workflow.Actor)
	return actor, ok
}

// WithActor injects the actor into the context for downstream handlers.
func WithActor(ctx context.Context, actor workflow.Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxActor, actor)
}

// UserIDFromContext returns the authenticated user id, or "" for anonymous requests.
func UserIDFromContext(ctx context.Context) string {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return ""
	}
	return actor.UserID.String()
}
