// Package jwt provides signed access and refresh token creation and
// verification for the authcore engine.
//
// # Token discrimination
//
// Both token kinds are HS256 JWTs signed with a single symmetric key and
// carry an explicit token_type claim ("access" or "refresh"). Verification
// for one kind rejects the other; an access token can never be replayed as
// a refresh token.
//
// # What this package must NOT do
//
//   - Persist tokens or talk to any store (tokens are stateless by design).
//   - Import authcore, session, or pgpool (no upward imports).
//   - Accept asymmetric or unvalidated signing algorithms.
package jwt
