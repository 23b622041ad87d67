package middleware

import (
	"errors"
	"net"
	"net/http"

	"github.com/talentops/pipetrack/internal/httputil"
	"github.com/talentops/pipetrack/internal/metrics"
	"github.com/talentops/pipetrack/internal/ratelimit"
)

// RateLimitMiddleware rejects callers whose fixed window is exhausted
// with a 429 carrying a retryAfter hint in seconds. Caller identity is
// the workspaceId query parameter when present, falling back to the
// remote IP for unscoped routes.
func RateLimitMiddleware(limiter *ratelimit.Limiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := normalizeEndpoint(r.URL.Path)

		retryAfter, err := limiter.Allow(r.Context(), route, callerIdentity(r))
		if errors.Is(err, ratelimit.ErrLimitExceeded) {
			metrics.RecordRateLimited(route)
			httputil.WriteRateLimited(w, retryAfter)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func callerIdentity(r *http.Request) string {
	if ws := r.URL.Query().Get("workspaceId"); ws != "" {
		return ws
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
