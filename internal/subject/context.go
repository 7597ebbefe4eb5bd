package subject

import "context"

type actorContextKey struct{}

// ContextWithActor stores the acting subject in the context.
func ContextWithActor(ctx context.Context, actor Ref) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the acting subject from the context.
func ActorFromContext(ctx context.Context) (Ref, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Ref)
	return actor, ok && !actor.IsZero()
}
