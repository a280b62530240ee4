// Package password implements candidate-password policy validation and
// Argon2id hashing.
//
// # Policy
//
// [Policy.Validate] evaluates every rule and reports the complete violation
// set; rules are never short-circuited, so callers and UIs always see the
// full list. Comparisons against the current hash and the history delegate to
// an injected verify function, keeping the policy itself pure.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// The [Hasher] supports transparent parameter upgrades: if the stored hash was
// produced with weaker parameters, [Hasher.NeedsRehash] returns true so the
// caller can re-hash on the next successful login.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords; callers supply plaintext and receive hashes.
//   - Import any other authcore package.
//   - Log plaintext passwords or hash parameters at runtime.
package password
