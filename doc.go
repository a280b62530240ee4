// Package authcore is the authentication, session, and authorization core of
// a business time-tracking backend: Argon2id password verification with a
// strict composition policy, typed JWT access/refresh pairs with rotation and
// server-side revocation, automatic lockout after repeated failures, and
// live-fetch role-based authorization over a closed resource vocabulary.
//
// The package owns no persistence. Credential records, role definitions, and
// lockout notifications are reached through the [CredentialStore], [RoleStore],
// and [Notifier] interfaces supplied by the embedding application; revocation
// state and failure counters live in Redis when a client is provided and in
// process memory otherwise.
//
// # Architecture boundaries
//
// authcore is the public surface: [Engine], [Builder], [Config], the error
// sentinels, and the audit/metrics value types. The password, token,
// revocation, and permission sub-packages are usable on their own but are
// normally wired together by [Builder.Build]. Engine methods are safe for
// concurrent use once Build returns.
//
// # Failure discipline
//
// Callers see a deliberately small error set: matching is by errors.Is against
// the Err... sentinels, and everything an attacker could use to enumerate
// accounts collapses into [ErrInvalidCredentials]. The precise reasons (user
// unknown, password mismatch, token expired vs revoked) are recorded only on
// the audit trail. When a collaborator store is down the engine fails closed
// with [ErrStoreUnavailable] after a single retry; it never falls back to
// cached authentication state beyond the signed claims themselves.
//
// # Hot path
//
// Authenticate is the per-request path: one signature verification, one
// revocation lookup, one principal fetch. Disabled metrics and audit cost
// nothing there; enabling them adds atomic counters and a non-blocking channel
// send.
package authcore
