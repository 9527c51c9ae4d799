package shared

import "context"

// Role names understood by the authorization checks.
const (
	RoleOwner = "owner"
	RoleStaff = "staff"
)

// Actor identifies the authenticated caller. Authentication itself is handled
// by the gateway in front of this service; the API trusts the identity headers
// it forwards.
type Actor struct {
	ID   int64
	Role string
}

// IsOwner reports whether the actor carries the owner role.
func (a Actor) IsOwner() bool {
	return a.Role == RoleOwner
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context. The zero Actor is returned
// when no identity was forwarded.
func ActorFromContext(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorContextKey{}).(Actor)
	return actor
}
