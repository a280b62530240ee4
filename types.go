package authcore

import (
	"context"
	"time"

	"github.com/timetrax/authcore/permission"
)

// Principal is the identity record consumed by the engine. It is owned by the
// embedding application's credential store; the engine reads it on every
// authenticated request and writes back only lockout state and password
// changes through the CredentialStore interface.
type Principal struct {
	ID       string
	Username string

	// PasswordHash is the current hash in PHC string format.
	PasswordHash string
	// PasswordHistory holds prior hashes, newest first, bounded at the
	// configured history depth (default 5).
	PasswordHistory []string
	// PasswordExpiresAt is the moment the password stops being accepted for
	// login. Nil means the password never expires.
	PasswordExpiresAt *time.Time

	Role    string
	Enabled bool
	Locked  bool
	// FailedAttempts is the persisted failed-login counter. It seeds the live
	// counter after a restart so progress toward lockout is not forgotten.
	FailedAttempts int
}

// RoleDefinition is what the role store returns for a role name: the
// permission grants plus the capabilities the engine needs at login time.
type RoleDefinition = permission.Definition

// CredentialStore is the principal collaborator. Implementations may be backed
// by any persistence; the engine retries a failed fetch once and otherwise
// fails closed.
type CredentialStore interface {
	// FetchByUsername returns the principal for a username, or
	// ErrPrincipalNotFound when no such principal exists.
	FetchByUsername(ctx context.Context, username string) (*Principal, error)

	// PersistPasswordChange stores a new password hash together with the
	// updated history (newest first, already trimmed by the engine). The store
	// is expected to clear or extend the password expiry according to its own
	// rotation policy.
	PersistPasswordChange(ctx context.Context, principal *Principal, newHash string, history []string) error

	// PersistLockoutState stores the lock flag and failed-attempt counter.
	PersistLockoutState(ctx context.Context, principal *Principal, locked bool, attempts int) error
}

// RoleStore resolves role names to their definitions. The authorization engine
// calls it on every permission check; implementations should be fast but the
// engine never caches results beyond the immutable expansion snapshot.
type RoleStore interface {
	// FetchPermissions returns the definition for a role name, or
	// ErrRoleNotFound when the role does not exist.
	FetchPermissions(ctx context.Context, roleName string) (RoleDefinition, error)
}

// Notifier receives best-effort lockout notifications. Failures are audited
// and swallowed; they never block or reverse the lock transition.
type Notifier interface {
	NotifyLockout(ctx context.Context, principal *Principal, attemptCount int, sourceAddress string, at time.Time) error
}

// TokenPair is the result of a successful login, refresh, or expired-password
// renewal.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	// ExpiresIn is the access-token lifetime in seconds.
	ExpiresIn int64 `json:"expires_in"`
}

// Decision is the result of an authorization check. Reason is empty on allow
// and carries the denial class otherwise; specifics go to the audit sink.
type Decision struct {
	Allowed bool
	Reason  string
}

// Deny reasons reported in Decision.Reason.
const (
	DenyMissingPermission = "missing_permission"
	DenyRoleNotFound      = "role_not_found"
	DenyStoreUnavailable  = "store_unavailable"
)

// Allow is the affirmative decision.
func Allow() Decision { return Decision{Allowed: true} }

// Deny builds a negative decision with the given reason class.
func Deny(reason string) Decision { return Decision{Allowed: false, Reason: reason} }
