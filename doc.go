// Package authcore provides the credential and session lifecycle subsystem
// for a travel-expense backend: JWT access tokens, rotating refresh tokens
// with single-use detection, a Postgres-backed session store over a bounded
// connection pool, and fixed-window rate limiting on authentication routes.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config], and value types
// (TokenPair, SessionInfo, MetricsSnapshot, etc.). Flow orchestration and rate limiting
// live under internal/ and are never exported.
//
// # What this package must NOT do
//
//   - Expose database handles, internal stores, or refresh hashes in its public API.
//   - Store or compare passwords; credential verification belongs to the caller's
//     [UserProvider].
//   - Import any sub-package that re-imports authcore (no import cycles).
//
// # Performance contract
//
// ValidateAccess is the hot path. It must complete without any store round-trip.
// Refresh, Login, and Signup are allowed one store round-trip per call plus the
// conditional rotation write.
package authcore
