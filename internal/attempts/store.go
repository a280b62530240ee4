package attempts

import (
	"context"
	"errors"
)

// ErrUnavailable wraps backend failures. Callers must treat a failed bump as
// if the threshold had been reached rather than granting a free attempt.
var ErrUnavailable = errors.New("attempt store unavailable")

// Store tracks consecutive authentication failures.
type Store interface {
	// Bump records one failure and returns the new count. When no live
	// counter exists, counting starts from seed.
	Bump(ctx context.Context, key string, seed int) (int, error)

	// Reset clears the counter.
	Reset(ctx context.Context, key string) error

	// Count returns the live counter, zero when absent.
	Count(ctx context.Context, key string) (int, error)
}
