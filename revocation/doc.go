// Package revocation tracks issued token IDs and deny-lists revoked ones.
//
// The registry owns the forward index from subject to active token IDs, so
// bulk invalidation (password change, admin lock, refresh reuse) never has to
// consult token contents. Entries carry the token expiry and are evicted once
// they could no longer validate anyway.
//
// Two implementations are provided: [MemoryRegistry] for single-process
// deployments (revocations are lost on restart, which re-validates still-live
// tokens; the accepted tradeoff), and [RedisRegistry] for shared state, where
// eviction is delegated to Redis key TTLs.
package revocation
