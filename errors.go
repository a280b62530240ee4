package authcore

import (
	"errors"

	"github.com/timetrax/authcore/permission"
	"github.com/timetrax/authcore/token"
)

var (
	// ErrInvalidCredentials covers every authentication failure that must stay
	// indistinguishable to the caller: unknown username, wrong password, empty input.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked rejects login for a locked principal regardless of
	// password correctness. Cleared only by UnlockAccount.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountDisabled rejects authentication for a disabled principal.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrPasswordExpired rejects login when the password has expired and the
	// principal's role cannot self-service a change; an administrator must
	// update the principal record.
	ErrPasswordExpired = errors.New("password expired")
	// ErrPasswordChangeRequired redirects login into the forced-change flow:
	// the password has expired but the role may renew it via RenewExpiredPassword.
	ErrPasswordChangeRequired = errors.New("password change required")

	// ErrTokenMalformed reports a token that is not a structurally valid JWT.
	ErrTokenMalformed = token.ErrMalformed
	// ErrTokenExpired reports a token past its expiry.
	ErrTokenExpired = token.ErrExpired
	// ErrTokenSignature reports a signature that does not verify against the
	// configured key material.
	ErrTokenSignature = token.ErrSignature
	// ErrTokenWrongType reports an access token presented where a refresh token
	// is expected, or vice versa.
	ErrTokenWrongType = token.ErrWrongType
	// ErrTokenRevoked reports a token whose jti is present in the revocation
	// registry, including a refresh token replayed after rotation.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrPermissionDenied reports an authorization (not authentication) failure.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrRoleNotFound reports a role name the role store does not know.
	ErrRoleNotFound = permission.ErrRoleNotFound

	// ErrPrincipalNotFound is returned by CredentialStore implementations when
	// no principal exists for a username. The engine never surfaces it to
	// callers; it collapses into ErrInvalidCredentials.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrPasswordPolicy wraps a password.PolicyError; use errors.As to read the
	// individual violations.
	ErrPasswordPolicy = errors.New("password policy violation")

	// ErrStoreUnavailable wraps transient or persistent collaborator failures.
	// The gateway retries once and then fails closed.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrEngineNotReady guards engine methods called before Build wired the
	// required collaborators.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrNotBuilt is returned by Builder.Build on invalid or incomplete input.
	ErrNotBuilt = errors.New("engine build failed")
)
