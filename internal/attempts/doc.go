// Package attempts counts consecutive failed logins per principal.
//
// Counters never decay on their own: only a successful login or an
// administrative unlock resets them. A seed primes a fresh counter from the
// persisted failure count so a restart does not hand back a clean slate.
package attempts
