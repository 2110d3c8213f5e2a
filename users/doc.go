// Package users provides [authcore.UserProvider] implementations.
//
// [MemProvider] keeps accounts in process memory with Argon2id password
// hashes. It backs development deployments of the auth service and the
// engine's own end-to-end tests. Production deployments are expected to
// supply a provider over the application's user database instead.
//
// # What this package must NOT do
//
//   - Return password hashes to callers.
//   - Import the session, jwt, or httpd packages.
package users
