// Package session provides durable session persistence and the atomic
// refresh-rotation primitive for authentication hot paths.
//
// # Rotation invariant
//
// For every live session there is exactly one currently-valid refresh
// digest. [Store.RotateRefreshHash] swaps it with a single conditional
// update, so N concurrent rotations of the same token produce exactly one
// winner; the losers observe a replay and the chain is destroyed.
//
// # Architecture boundaries
//
// This package owns the [Store] implementations ([PGStore] over pgpool,
// [MemStore] in-process) and the [Session] model. It does NOT interpret
// JWT tokens or enforce authentication policy; those responsibilities
// belong to the Engine.
//
// # What this package must NOT do
//
//   - Import authcore or jwt (no upward imports).
//   - Persist refresh-token plaintext in [Session] fields.
//   - Distinguish expired from absent sessions in its results.
package session
