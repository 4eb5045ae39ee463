package shared

import "context"

// Actor identifies the user on whose behalf a mutation runs.
type Actor struct {
	UserID int64
	Role   string
}

// SystemActor is used by unattended processes such as the replenishment scheduler.
var SystemActor = Actor{UserID: 0, Role: "system"}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor, falling back to SystemActor.
func ActorFromContext(ctx context.Context) Actor {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	if !ok {
		return SystemActor
	}
	return actor
}
