package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/tracklane/trackd/internal/domain/user"
)

// The upstream auth layer authenticates the caller and forwards the
// resolved identity in these headers. The core trusts them.
const (
	headerActorID   = "X-Actor-ID"
	headerActorRole = "X-Actor-Role"
)

type actorCtxKey struct{}

// Actor is middleware that extracts the authenticated actor identity
// from the X-Actor-ID and X-Actor-Role headers. Requests without a
// parseable identity proceed with a zero Actor; role checks downstream
// reject them.
func Actor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var actor user.Actor
		if id, err := uuid.Parse(r.Header.Get(headerActorID)); err == nil {
			actor.ID = id
		}
		if role := user.Role(r.Header.Get(headerActorRole)); role.Known() {
			actor.Role = role
		}
		ctx := context.WithValue(r.Context(), actorCtxKey{}, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ActorFromContext returns the actor stored in ctx, or a zero Actor.
func ActorFromContext(ctx context.Context) user.Actor {
	if a, ok := ctx.Value(actorCtxKey{}).(user.Actor); ok {
		return a
	}
	return user.Actor{}
}
