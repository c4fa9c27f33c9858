package fulfillment

import "context"

type actorKey struct{}

// SystemActor is recorded when no acting user is attached to the context.
const SystemActor = "system"

// WithActor attaches the identity of the acting user for the audit trail.
func WithActor(ctx context.Context, actor string) context.Context {
	if actor == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey{}, actor)
}

func ActorFromContext(ctx context.Context) string {
	if a, ok := ctx.Value(actorKey{}).(string); ok && a != "" {
		return a
	}
	return SystemActor
}

func hasActor(ctx context.Context) bool {
	a, ok := ctx.Value(actorKey{}).(string)
	return ok && a != ""
}
