// Package middleware adapts the authcore engine to net/http.
//
// # Handlers
//
//   - [Guard] authenticates the bearer token and attaches the principal to
//     the request context.
//   - [Require] enforces one (resource, action) permission; must run inside
//     Guard.
//
// Guard collapses every authentication failure into a single 401 "invalid
// credentials" response so callers cannot distinguish an unknown user from a
// wrong password, an expired token from a revoked one. The specific reason is
// recorded on the engine's audit sink only. Backend unavailability is the one
// exception: it maps to 503 because the request might succeed on retry.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does not
// implement authentication logic itself; all decisions are delegated to
// Engine.Authenticate and Engine.Authorize.
package middleware
