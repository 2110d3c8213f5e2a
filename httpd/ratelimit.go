package httpd

import (
	"math"
	"net/http"
	"strconv"

	authcore "github.com/tripcents/authcore"
	"github.com/tripcents/authcore/internal/rate"
)

// rateLimit enforces a per-route policy keyed by client IP. It sits in
// front of the engine's own per-identity limits and catches abusive
// sources before a request body is even read.
func (s *Server) rateLimit(p rate.Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := authcore.ClientIPFromContext(r.Context())
			if key == "" {
				key = r.RemoteAddr
			}

			res, err := s.limiter.Check(r.Context(), key, p)
			if err != nil {
				// Fail-open: a dead limiter backend must not take auth down.
				s.log.Warn().Err(err).Str("route", r.URL.Path).Msg("route rate limiter unavailable, allowing request")
			}
			if !res.Allowed {
				secs := int(math.Ceil(res.RetryAfter.Seconds()))
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				s.writeErrorKind(w, http.StatusTooManyRequests, "rate_limited", "rate_limited")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
