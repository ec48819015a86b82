package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// ActorHeader carries the caller's user id. It is set by the authenticating
// proxy in front of the api-server and trusted as-is.
const ActorHeader = "X-User-ID"

type actorKey struct{}

// Identity rejects requests without an actor with 401 and stores the actor
// in the request context.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := strings.TrimSpace(r.Header.Get(ActorHeader))
		if actor == "" {
			writeJSONError(w, http.StatusUnauthorized, "missing "+ActorHeader+" header")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// WithActor returns ctx carrying actor.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the actor stored by Identity, or "".
func ActorFrom(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey{}).(string)
	return actor
}

func writeJSONError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
