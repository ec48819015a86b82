package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ramiqadoumi/go-task-tracker/internal/domain"
	"github.com/ramiqadoumi/go-task-tracker/pkg/telemetry"
)

// Limiter is satisfied by redis.RateLimiter.
type Limiter interface {
	Allow(ctx context.Context, key string) error
	Limit() int
}

// RateLimit throttles mutating requests per actor. Reads pass through.
// When the limiter itself fails the request is let through: the limiter
// protects the database, it is not an access control.
func RateLimit(limiter Limiter, window time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !mutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			actor := ActorFrom(r.Context())
			err := limiter.Allow(r.Context(), actor)
			var limited *domain.RateLimitExceededError
			switch {
			case err == nil:
			case errors.As(err, &limited):
				telemetry.APIRateLimitedTotal.Inc()
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				writeJSONError(w, http.StatusTooManyRequests, limited.Error())
				return
			default:
				logger.Warn("rate limiter unavailable, allowing request",
					slog.String("actor_id", actor),
					slog.String("error", err.Error()),
				)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
