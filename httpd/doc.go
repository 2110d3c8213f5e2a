// Package httpd exposes the authentication engine over HTTP for the
// tripcents mobile clients.
//
// Routes:
//
//   - POST /auth/login   : password login, returns a token pair
//   - POST /auth/signup  : account creation, returns a token pair
//   - POST /auth/refresh : refresh token rotation
//   - POST /auth/logout  : invalidates the caller's session
//   - GET  /session      : inspects the caller's session
//   - GET  /sessions     : lists the caller's live sessions
//   - GET  /healthz      : store and pool health
//   - GET  /metrics      : optional metrics exposition
//
// # Architecture boundaries
//
// httpd depends on authcore, middleware, and internal/rate. It owns DTO
// shapes and status-code mapping; all authentication decisions live in
// the engine. Route-level rate limits are attached at registration via
// [RouteConfig] and run before request bodies are read.
//
// # What this package must NOT do
//
//   - It must not inspect or validate tokens itself.
//   - It must not reach past the engine into session or pool internals.
//   - It must not leak sentinel error text to clients; only error kinds
//     cross the wire.
package httpd
