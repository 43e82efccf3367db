package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aaravmahajanofficial/agri-marketplace/internal/errors"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/utils/response"
)

type RateLimiter interface {
	CheckRateLimit(ctx context.Context, scope, subject string) (bool, int, int, error)
}

// RateLimit caps how often an authenticated user may hit the wrapped route.
// It must run after Authenticate. Limiter failures let the request through.
func RateLimit(limiter RateLimiter, scope string, next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := LoggerFromContext(r.Context())

		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			response.Error(w, errors.UnauthorizedError("Authentication required"))
			return
		}

		allowed, remaining, retryAfter, err := limiter.CheckRateLimit(r.Context(), scope, claims.UserID)
		if err != nil {
			logger.Warn("Rate limit check failed, allowing request", slog.String("scope", scope), slog.String("error", err.Error()))
			next.ServeHTTP(w, r)
			return
		}

		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			response.Error(w, errors.RateLimitedError("Too many requests. Please try again later.").
				WithDetail("retry after "+strconv.Itoa(retryAfter)+"s"))
			return
		}

		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		next.ServeHTTP(w, r)
	}
}
