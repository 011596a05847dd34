package shared

import "context"

// Actor identifies the authenticated tenant and user behind a request.
// Tenancy is never derived from ambient state inside the services; the
// handler layer extracts the actor once and passes company and user ids
// explicitly into every operation.
type Actor struct {
	CompanyID int64
	UserID    int64
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
