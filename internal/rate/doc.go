// Package rate implements fixed-window request limiting for
// authentication-sensitive routes.
//
// # Failure mode
//
// Both limiters are fail-open: if the backing store cannot be reached the
// check returns an allowed Result together with the error. Callers log the
// error and continue. Login must stay reachable when Redis is down; an
// attacker who can take Redis down should not also get a denial-of-service
// lever over authentication.
//
// # What this package must NOT do
//
//   - It must not read route metadata; policies arrive as explicit
//     [Policy] values attached when routes are registered.
//   - It must not block or retry on backing store failure.
//   - It must not derive client identity; callers supply the key.
package rate
