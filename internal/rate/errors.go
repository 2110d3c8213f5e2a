package rate

import "errors"

// ErrRedisUnavailable is an exported constant or variable used by the
// authentication engine.
var ErrRedisUnavailable = errors.New("rate limiter backing store unavailable")
