package authcore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/timetrax/authcore/internal/attempts"
	"github.com/timetrax/authcore/password"
	"github.com/timetrax/authcore/permission"
	"github.com/timetrax/authcore/revocation"
	"github.com/timetrax/authcore/token"
)

// Engine is the authentication and authorization core. Build one with the
// Builder, share it across request handlers, and Close it at shutdown. All
// methods are safe for concurrent use.
type Engine struct {
	config      Config
	credentials CredentialStore
	roles       RoleStore
	notifier    Notifier

	hasher    *password.Hasher
	policy    *password.Policy
	authority *token.Authority
	registry  revocation.Registry
	permits   *permission.Engine
	attempts  attempts.Store

	audit   *auditDispatcher
	metrics *Metrics
	now     func() time.Time

	closeOnce sync.Once
}

// Close stops the revocation sweeper and drains the audit dispatcher.
// Idempotent; in-flight calls finish normally.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		if e.registry != nil {
			e.registry.Close()
		}
		if e.audit != nil {
			e.audit.Close()
		}
	})
}

// AuditDropped reports how many audit events were discarded because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of every counter.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Login authenticates a username/password pair and returns a fresh token
// pair. Unknown usernames and wrong passwords are indistinguishable to the
// caller; locked, disabled, and password-expired accounts each fail with
// their own sentinel so the embedding layer can route the user.
func (e *Engine) Login(ctx context.Context, username, pass string) (*TokenPair, error) {
	if e.credentials == nil {
		return nil, ErrEngineNotReady
	}
	if username == "" || pass == "" {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", username, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "empty_input"}
		})
		return nil, ErrInvalidCredentials
	}

	p, err := e.fetchPrincipal(ctx, username)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, "", username, "", ErrInvalidCredentials, func() map[string]string {
				return map[string]string{"reason": "principal_not_found"}
			})
			return nil, ErrInvalidCredentials
		}
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", username, "", err, nil)
		return nil, err
	}

	// Account state gates run before password verification: a locked or
	// disabled account rejects even a correct password.
	if !p.Enabled {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, p.ID, username, "", ErrAccountDisabled, nil)
		return nil, ErrAccountDisabled
	}
	locked, err := e.lockedOut(ctx, p)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, p.ID, username, "", err, nil)
		return nil, err
	}
	if locked {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, p.ID, username, "", ErrAccountLocked, nil)
		return nil, ErrAccountLocked
	}

	ok, verr := e.hasher.Verify(pass, p.PasswordHash)
	if verr != nil || !ok {
		failErr := e.registerFailure(ctx, p)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, p.ID, username, "", failErr, func() map[string]string {
			return map[string]string{"reason": "password_mismatch"}
		})
		return nil, failErr
	}

	// Expiry is evaluated only after the password verified, so an attacker
	// cannot probe expiry state without knowing the password.
	if expired := e.passwordExpired(p); expired {
		e.metricInc(MetricPasswordExpiredLogin)
		expErr := e.expiredPasswordError(ctx, p)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, p.ID, username, "", expErr, func() map[string]string {
			return map[string]string{"reason": "password_expired"}
		})
		return nil, expErr
	}

	if err := e.registerSuccess(ctx, p); err != nil {
		// Counter reset is part of the success transition; losing it only
		// makes the guard stricter, so the login itself proceeds.
		log.Print("authcore: failed-attempt reset failed")
	}

	e.maybeUpgradeHash(ctx, p, pass)
	pass = ""

	pair, accessClaims, err := e.issuePair(ctx, p)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, p.ID, username, "", err, func() map[string]string {
			return map[string]string{"reason": "token_issue_failed"}
		})
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, p.ID, username, accessClaims.ID, nil, nil)
	return pair, nil
}

// Refresh rotates a refresh token: the presented token's jti is revoked
// first, then a fresh pair is minted. Presenting an already-rotated token is
// treated as replay; with Security.RevokeOnRefreshReuse set, every
// outstanding token for the subject is burned.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e.authority == nil || e.registry == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.authority.Validate(refreshToken, token.TypeRefresh)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", "", err, nil)
		return nil, err
	}
	username := claims.Subject

	revoked, err := e.registry.IsRevoked(ctx, claims.ID)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", username, claims.ID, ErrStoreUnavailable, nil)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if revoked {
		return nil, e.handleRefreshReuse(ctx, claims)
	}

	// Revoke-then-mint: once the old jti is dead, a failure further down
	// forces a re-login instead of leaving a replayable token behind.
	first, err := e.registry.Revoke(ctx, claims.ID, username, claims.ExpiresAt.Time)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", username, claims.ID, ErrStoreUnavailable, nil)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !first {
		// A concurrent call rotated this token between the IsRevoked read
		// and our Revoke. Same replay handling as the cold path.
		return nil, e.handleRefreshReuse(ctx, claims)
	}

	p, err := e.fetchPrincipal(ctx, username)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		if errors.Is(err, ErrPrincipalNotFound) {
			e.emitAudit(ctx, auditEventRefreshInvalid, false, "", username, claims.ID, ErrInvalidCredentials, func() map[string]string {
				return map[string]string{"reason": "principal_not_found"}
			})
			return nil, ErrInvalidCredentials
		}
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", username, claims.ID, err, nil)
		return nil, err
	}
	if stateErr := e.accountUsable(ctx, p); stateErr != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, p.ID, username, claims.ID, stateErr, nil)
		return nil, stateErr
	}

	pair, accessClaims, err := e.issuePair(ctx, p)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, p.ID, username, claims.ID, err, func() map[string]string {
			return map[string]string{"reason": "token_issue_failed"}
		})
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, p.ID, username, accessClaims.ID, nil, nil)
	return pair, nil
}

func (e *Engine) handleRefreshReuse(ctx context.Context, claims *token.Claims) error {
	e.metricInc(MetricRefreshReuseDetected)
	e.metricInc(MetricRefreshFailure)
	burned := 0
	if e.config.Security.RevokeOnRefreshReuse {
		n, err := e.registry.RevokeSubject(ctx, claims.Subject)
		if err != nil {
			log.Print("authcore: revoking token family after refresh reuse failed")
		}
		burned = n
	}
	e.emitAudit(ctx, auditEventRefreshReuse, false, "", claims.Subject, claims.ID, ErrTokenRevoked, func() map[string]string {
		return map[string]string{"tokens_burned": fmt.Sprintf("%d", burned)}
	})
	return ErrTokenRevoked
}

// Logout revokes the presented access token. Revoking a token that was
// already revoked is not an error.
func (e *Engine) Logout(ctx context.Context, accessToken string) error {
	if e.authority == nil || e.registry == nil {
		return ErrEngineNotReady
	}

	claims, err := e.authority.Validate(accessToken, token.TypeAccess)
	if err != nil {
		return err
	}
	if _, err := e.registry.Revoke(ctx, claims.ID, claims.Subject, claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, "", claims.Subject, claims.ID, nil, nil)
	return nil
}

// Authenticate runs the per-request gateway pipeline: token validation,
// revocation lookup, a live principal re-load, and the mandatory account
// state check. A token stays cryptographically valid after an account is
// locked or disabled, so the live check rejects regardless of signature.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (*Principal, error) {
	if e.metrics != nil && e.metrics.LatencyEnabled() {
		start := e.now()
		defer e.auditLatency(start)
	}
	if e.authority == nil || e.registry == nil || e.credentials == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.authority.Validate(accessToken, token.TypeAccess)
	if err != nil {
		e.metricInc(MetricAuthenticateFailure)
		e.emitAudit(ctx, auditEventTokenRejected, false, "", "", "", err, nil)
		return nil, err
	}

	revoked, err := e.registry.IsRevoked(ctx, claims.ID)
	if err != nil {
		e.metricInc(MetricAuthenticateFailure)
		e.emitAudit(ctx, auditEventTokenRejected, false, "", claims.Subject, claims.ID, ErrStoreUnavailable, nil)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if revoked {
		e.metricInc(MetricTokenRevokedRejection)
		e.metricInc(MetricAuthenticateFailure)
		e.emitAudit(ctx, auditEventTokenRejected, false, "", claims.Subject, claims.ID, ErrTokenRevoked, nil)
		return nil, ErrTokenRevoked
	}

	p, err := e.fetchPrincipal(ctx, claims.Subject)
	if err != nil {
		e.metricInc(MetricAuthenticateFailure)
		if errors.Is(err, ErrPrincipalNotFound) {
			e.emitAudit(ctx, auditEventTokenRejected, false, "", claims.Subject, claims.ID, ErrInvalidCredentials, func() map[string]string {
				return map[string]string{"reason": "principal_not_found"}
			})
			return nil, ErrInvalidCredentials
		}
		e.emitAudit(ctx, auditEventTokenRejected, false, "", claims.Subject, claims.ID, err, nil)
		return nil, err
	}

	if stateErr := e.accountUsable(ctx, p); stateErr != nil {
		e.metricInc(MetricAuthenticateFailure)
		e.emitAudit(ctx, auditEventTokenRejected, false, p.ID, claims.Subject, claims.ID, stateErr, nil)
		return nil, stateErr
	}

	e.metricInc(MetricAuthenticateSuccess)
	return p, nil
}

// Authorize decides whether the principal's role currently grants the
// (resource, action) permission. The role definition is fetched live, so an
// administrative edit takes effect on the very next check without touching
// any issued token.
func (e *Engine) Authorize(ctx context.Context, p *Principal, resource permission.Resource, action permission.Action) (Decision, error) {
	if e.permits == nil {
		return Deny(DenyStoreUnavailable), ErrEngineNotReady
	}
	if p == nil {
		e.metricInc(MetricAuthorizeDeny)
		return Deny(DenyMissingPermission), ErrPermissionDenied
	}

	allowed, err := e.permits.Check(ctx, p.Role, resource, action)
	if err != nil {
		e.metricInc(MetricAuthorizeDeny)
		if errors.Is(err, ErrRoleNotFound) {
			e.emitAudit(ctx, auditEventAuthorizeDenied, false, p.ID, p.Username, "", ErrRoleNotFound, func() map[string]string {
				return map[string]string{"role": p.Role, "resource": string(resource), "action": action.String()}
			})
			return Deny(DenyRoleNotFound), ErrRoleNotFound
		}
		e.emitAudit(ctx, auditEventAuthorizeDenied, false, p.ID, p.Username, "", ErrStoreUnavailable, func() map[string]string {
			return map[string]string{"role": p.Role, "resource": string(resource), "action": action.String()}
		})
		return Deny(DenyStoreUnavailable), fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !allowed {
		e.metricInc(MetricAuthorizeDeny)
		e.emitAudit(ctx, auditEventAuthorizeDenied, false, p.ID, p.Username, "", ErrPermissionDenied, func() map[string]string {
			return map[string]string{"role": p.Role, "resource": string(resource), "action": action.String()}
		})
		return Deny(DenyMissingPermission), nil
	}

	e.metricInc(MetricAuthorizeAllow)
	return Allow(), nil
}

// fetchPrincipal loads a principal with one retry after a short pause; a
// second failure is reported as store unavailability and the caller fails
// closed. ErrPrincipalNotFound is definitive and never retried.
func (e *Engine) fetchPrincipal(ctx context.Context, username string) (*Principal, error) {
	p, err := e.credentials.FetchByUsername(ctx, username)
	if err == nil {
		return p, nil
	}
	if errors.Is(err, ErrPrincipalNotFound) {
		return nil, err
	}

	e.metricInc(MetricStoreRetry)
	e.emitAudit(ctx, auditEventStoreRetry, false, "", username, "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err), nil)
	if backoff := e.config.Store.RetryBackoff; backoff > 0 {
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, ctx.Err())
		case <-timer.C:
		}
	}

	p, err = e.credentials.FetchByUsername(ctx, username)
	if err == nil {
		return p, nil
	}
	if errors.Is(err, ErrPrincipalNotFound) {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// accountUsable is the gateway-stage state check shared by Authenticate and
// Refresh. Password expiry rejects here without the self-service split; the
// split only matters at login, where the user can be routed into the
// forced-change flow.
func (e *Engine) accountUsable(_ context.Context, p *Principal) error {
	if !p.Enabled {
		return ErrAccountDisabled
	}
	if p.Locked {
		return ErrAccountLocked
	}
	if e.passwordExpired(p) {
		return ErrPasswordExpired
	}
	return nil
}

func (e *Engine) passwordExpired(p *Principal) bool {
	if p.PasswordExpiresAt == nil {
		return false
	}
	return !e.now().Before(*p.PasswordExpiresAt)
}

// expiredPasswordError resolves the per-role capability split: roles that can
// self-service their password are redirected into the forced-change flow,
// everyone else stays blocked until an administrator intervenes.
func (e *Engine) expiredPasswordError(ctx context.Context, p *Principal) error {
	def, err := e.roles.FetchPermissions(ctx, p.Role)
	if err != nil {
		if errors.Is(err, ErrRoleNotFound) {
			// Unknown role cannot self-service anything.
			return ErrPasswordExpired
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if def.CanSelfServicePassword {
		return ErrPasswordChangeRequired
	}
	return ErrPasswordExpired
}

// maybeUpgradeHash rehashes a verified password when the stored hash uses
// weaker parameters than configured. Best-effort: a failure never blocks the
// login that triggered it.
func (e *Engine) maybeUpgradeHash(ctx context.Context, p *Principal, pass string) {
	if !e.config.Password.UpgradeOnLogin {
		return
	}
	needs, err := e.hasher.NeedsRehash(p.PasswordHash)
	if err != nil || !needs {
		return
	}
	upgraded, err := e.hasher.Hash(pass)
	if err != nil {
		log.Print("authcore: password hash upgrade generation failed")
		return
	}
	if err := e.credentials.PersistPasswordChange(ctx, p, upgraded, p.PasswordHistory); err != nil {
		log.Print("authcore: password hash upgrade update failed")
	}
}

// issuePair mints and tracks a fresh access/refresh pair. Tracking feeds the
// subject index used by bulk revocation; a tracking failure fails the whole
// issuance so no untracked token escapes.
func (e *Engine) issuePair(ctx context.Context, p *Principal) (*TokenPair, *token.Claims, error) {
	access, accessClaims, err := e.authority.IssueAccess(p.Username, p.Role)
	if err != nil {
		return nil, nil, err
	}
	refresh, refreshClaims, err := e.authority.IssueRefresh(p.Username, p.Role)
	if err != nil {
		return nil, nil, err
	}
	if err := e.registry.Track(ctx, accessClaims.ID, p.Username, accessClaims.ExpiresAt.Time); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := e.registry.Track(ctx, refreshClaims.ID, p.Username, refreshClaims.ExpiresAt.Time); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	pair := &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(e.config.Token.AccessTTL / time.Second),
	}
	return pair, accessClaims, nil
}
