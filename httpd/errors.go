package httpd

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	authcore "github.com/tripcents/authcore"
	"github.com/tripcents/authcore/pgpool"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// writeError maps engine sentinels to machine-readable error kinds. Body
// messages stay generic; detail goes to the log, not the wire.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := classifyError(err)

	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	if errors.Is(err, authcore.ErrRateLimited) {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(err)))
	}

	s.writeErrorKind(w, status, kind, kind)
}

// retryAfterSeconds surfaces the limiter's remaining-window hint. The
// header is rounded up so clients never retry inside the hot window.
func retryAfterSeconds(err error) int {
	var rl *authcore.RateLimitedError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		if secs := int(math.Ceil(rl.RetryAfter.Seconds())); secs > 0 {
			return secs
		}
	}
	return 1
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, authcore.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, authcore.ErrTokenExpired):
		return http.StatusUnauthorized, "token_expired"
	case errors.Is(err, authcore.ErrTokenWrongType):
		return http.StatusUnauthorized, "token_wrong_type"
	case errors.Is(err, authcore.ErrTokenMalformed):
		return http.StatusUnauthorized, "token_malformed"
	case errors.Is(err, authcore.ErrSessionAlreadyRotated):
		return http.StatusUnauthorized, "session_already_rotated"
	case errors.Is(err, authcore.ErrSessionNotFound):
		return http.StatusUnauthorized, "session_not_found"
	case errors.Is(err, authcore.ErrUserExists):
		return http.StatusConflict, "user_exists"
	case errors.Is(err, authcore.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, pgpool.ErrPoolExhausted):
		return http.StatusServiceUnavailable, "pool_exhausted"
	case errors.Is(err, pgpool.ErrAcquireTimeout):
		return http.StatusServiceUnavailable, "pool_acquire_timeout"
	case errors.Is(err, authcore.ErrBackingStoreUnavailable):
		return http.StatusServiceUnavailable, "backing_store_unavailable"
	case errors.Is(err, authcore.ErrEngineNotReady):
		return http.StatusServiceUnavailable, "engine_not_ready"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Server) writeErrorKind(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := errorBody{Error: errorDetail{Kind: kind, Message: message}}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Warn().Err(err).Msg("error response encode failed")
	}
}
