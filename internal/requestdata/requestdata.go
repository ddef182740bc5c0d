package requestdata

import (
	"context"

	"github.com/google/uuid"
)

var actorKey = struct{}{}

// Actor is the already-authenticated caller supplied by the session layer.
// The core never resolves credentials itself.
type Actor struct {
	UserID     uuid.UUID
	AgencyCode string
}

func WithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

func GetActor(ctx context.Context) *Actor {
	val := ctx.Value(actorKey)
	if actor, ok := val.(*Actor); ok {
		return actor
	}
	return nil
}
