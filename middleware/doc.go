// Package middleware exposes HTTP middleware adapters built on top of
// authcore.Engine validation.
//
// # Guards
//
//   - [Guard]: bearer access-token enforcement; injects [authcore.AuthResult]
//     into the request context.
//   - [ClientIP]: resolves the caller address into the context for rate
//     limit keying.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself; all decisions are delegated to
// Engine.ValidateAccess.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Touch the session store (Engine handles I/O).
//   - Make authorization decisions beyond pass/reject from ValidateAccess.
package middleware
