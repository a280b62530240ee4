package revocation

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps backend failures. Callers treat any lookup error as
// fatal for the request rather than assuming the token is still good.
var ErrUnavailable = errors.New("revocation store unavailable")

// Registry records issued token IDs and answers revocation queries.
//
// Revoke is linearizable: once a call returns, every subsequent IsRevoked
// observes the revocation.
type Registry interface {
	// Track records an issued token in the subject's active index.
	Track(ctx context.Context, jti, subject string, expiresAt time.Time) error

	// Revoke deny-lists a token ID and drops it from the subject's active
	// index. It reports whether this call newly revoked the ID; false means
	// some other call got there first.
	Revoke(ctx context.Context, jti, subject string, expiresAt time.Time) (bool, error)

	// IsRevoked reports whether the token ID has been revoked.
	IsRevoked(ctx context.Context, jti string) (bool, error)

	// RevokeSubject revokes every tracked active token for the subject and
	// returns how many it newly revoked.
	RevokeSubject(ctx context.Context, subject string) (int, error)

	// Close stops background work. Idempotent.
	Close()
}
