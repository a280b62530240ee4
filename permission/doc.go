// Package permission decides what a role may do.
//
// Grants are Resource:Action pairs over a closed action set; MANAGE on a
// resource implies its full CRUD set. The [Engine] fetches role definitions
// live on every check (token claims are never consulted) and caches the
// expanded grant set in immutable per-role snapshots that are swapped, never
// mutated, when a definition changes. A role edit is therefore effective on
// the very next check without any token reissue.
//
// Resources are free-form uppercase identifiers validated against a frozen
// [Vocabulary] when one is configured, so a typo in a role definition can
// drop a grant but never invent one.
package permission
