// Package pgpool provides the bounded backing-store connection pool that
// session and credential persistence depend on.
//
// # Lifecycle
//
// The pool is an explicitly constructed, dependency-injected resource owned
// by the process composition root: New → Warmup → (Acquire/Release)* →
// Close. Nothing in this package is created lazily from global state.
//
// # Degradation
//
// Warmup failures degrade to dial-on-demand instead of aborting. A
// saturated pool fails an acquire within the configured timeout with
// [ErrPoolExhausted]; the pool never retries internally; retry policy
// belongs to the caller so outages are not amplified.
//
// # What this package must NOT do
//
//   - Interpret SQL results or own any schema knowledge.
//   - Import authcore or session (no upward imports).
//   - Return a connection to the pool after it errored during use.
package pgpool
