package authcore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/timetrax/authcore/password"
)

// ChangePassword verifies the current password, validates the replacement
// against the full policy, persists it with the updated history, and revokes
// every outstanding token for the principal.
func (e *Engine) ChangePassword(ctx context.Context, username, currentPassword, newPassword string) error {
	if e.credentials == nil || e.hasher == nil || e.policy == nil {
		return ErrEngineNotReady
	}
	if username == "" || currentPassword == "" || newPassword == "" {
		e.metricInc(MetricPasswordChangeRejected)
		e.emitAudit(ctx, auditEventPasswordRejected, false, "", username, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "empty_input"}
		})
		return ErrInvalidCredentials
	}

	p, err := e.fetchPrincipal(ctx, username)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			err = ErrInvalidCredentials
		}
		e.metricInc(MetricPasswordChangeRejected)
		e.emitAudit(ctx, auditEventPasswordRejected, false, "", username, "", err, nil)
		return err
	}
	if !p.Enabled {
		e.metricInc(MetricPasswordChangeRejected)
		e.emitAudit(ctx, auditEventPasswordRejected, false, p.ID, username, "", ErrAccountDisabled, nil)
		return ErrAccountDisabled
	}
	if p.Locked {
		e.metricInc(MetricPasswordChangeRejected)
		e.emitAudit(ctx, auditEventPasswordRejected, false, p.ID, username, "", ErrAccountLocked, nil)
		return ErrAccountLocked
	}

	ok, verr := e.hasher.Verify(currentPassword, p.PasswordHash)
	if verr != nil || !ok {
		e.metricInc(MetricPasswordChangeRejected)
		e.emitAudit(ctx, auditEventPasswordRejected, false, p.ID, username, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "current_password_mismatch"}
		})
		return ErrInvalidCredentials
	}

	if err := e.applyPasswordChange(ctx, p, newPassword); err != nil {
		e.metricInc(MetricPasswordChangeRejected)
		e.emitAudit(ctx, auditEventPasswordRejected, false, p.ID, username, "", err, nil)
		return err
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChanged, true, p.ID, username, "", nil, nil)
	return nil
}

// RenewExpiredPassword is the forced-change flow a self-service role lands in
// when its password expires: it authenticates with the expired password,
// applies the full policy to the replacement, and completes into a fresh
// token pair. Roles without the self-service capability are rejected with
// ErrPasswordExpired; only an administrator can move them forward.
func (e *Engine) RenewExpiredPassword(ctx context.Context, username, currentPassword, newPassword string) (*TokenPair, error) {
	if e.credentials == nil || e.hasher == nil || e.policy == nil {
		return nil, ErrEngineNotReady
	}
	if username == "" || currentPassword == "" || newPassword == "" {
		e.metricInc(MetricPasswordChangeRejected)
		e.emitAudit(ctx, auditEventPasswordRejected, false, "", username, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "empty_input"}
		})
		return nil, ErrInvalidCredentials
	}

	p, err := e.fetchPrincipal(ctx, username)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			err = ErrInvalidCredentials
		}
		e.metricInc(MetricPasswordChangeRejected)
		e.emitAudit(ctx, auditEventPasswordRejected, false, "", username, "", err, nil)
		return nil, err
	}
	if !p.Enabled {
		e.metricInc(MetricPasswordChangeRejected)
		e.emitAudit(ctx, auditEventPasswordRejected, false, p.ID, username, "", ErrAccountDisabled, nil)
		return nil, ErrAccountDisabled
	}
	locked, err := e.lockedOut(ctx, p)
	if err != nil {
		e.metricInc(MetricPasswordChangeRejected)
		e.emitAudit(ctx, auditEventPasswordRejected, false, p.ID, username, "", err, nil)
		return nil, err
	}
	if locked {
		e.metricInc(MetricPasswordChangeRejected)
		e.emitAudit(ctx, auditEventPasswordRejected, false, p.ID, username, "", ErrAccountLocked, nil)
		return nil, ErrAccountLocked
	}

	// This flow is reached from a failed login, so a wrong current password
	// here counts toward lockout exactly like a wrong login password.
	ok, verr := e.hasher.Verify(currentPassword, p.PasswordHash)
	if verr != nil || !ok {
		failErr := e.registerFailure(ctx, p)
		e.metricInc(MetricPasswordChangeRejected)
		e.emitAudit(ctx, auditEventPasswordRejected, false, p.ID, username, "", failErr, func() map[string]string {
			return map[string]string{"reason": "current_password_mismatch"}
		})
		return nil, failErr
	}

	def, err := e.roles.FetchPermissions(ctx, p.Role)
	if err != nil {
		if errors.Is(err, ErrRoleNotFound) {
			e.metricInc(MetricPasswordChangeRejected)
			e.emitAudit(ctx, auditEventPasswordRejected, false, p.ID, username, "", ErrPasswordExpired, func() map[string]string {
				return map[string]string{"reason": "role_not_found"}
			})
			return nil, ErrPasswordExpired
		}
		e.metricInc(MetricPasswordChangeRejected)
		wrapped := fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		e.emitAudit(ctx, auditEventPasswordRejected, false, p.ID, username, "", wrapped, nil)
		return nil, wrapped
	}
	if !def.CanSelfServicePassword {
		e.metricInc(MetricPasswordChangeRejected)
		e.emitAudit(ctx, auditEventPasswordRejected, false, p.ID, username, "", ErrPasswordExpired, func() map[string]string {
			return map[string]string{"reason": "self_service_not_permitted"}
		})
		return nil, ErrPasswordExpired
	}

	if err := e.applyPasswordChange(ctx, p, newPassword); err != nil {
		e.metricInc(MetricPasswordChangeRejected)
		e.emitAudit(ctx, auditEventPasswordRejected, false, p.ID, username, "", err, nil)
		return nil, err
	}

	pair, accessClaims, err := e.issuePair(ctx, p)
	if err != nil {
		e.emitAudit(ctx, auditEventPasswordRenewed, true, p.ID, username, "", nil, func() map[string]string {
			return map[string]string{"token_issue": "failed"}
		})
		return nil, err
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventPasswordRenewed, true, p.ID, username, accessClaims.ID, nil, nil)
	return pair, nil
}

// applyPasswordChange runs the policy, persists the new hash with the
// current hash pushed onto the history, revokes every outstanding token, and
// clears the failure counter. The policy sees the candidate before any
// hashing so every violated rule is reported at once.
func (e *Engine) applyPasswordChange(ctx context.Context, p *Principal, newPassword string) error {
	result := e.policy.Validate(newPassword, p.Username, p.PasswordHash, p.PasswordHistory)
	if !result.OK {
		return fmt.Errorf("%w: %w", ErrPasswordPolicy, &password.PolicyError{Violations: result.Violations})
	}

	newHash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
	}

	history := make([]string, 0, len(p.PasswordHistory)+1)
	history = append(history, p.PasswordHash)
	history = append(history, p.PasswordHistory...)
	if depth := e.config.Password.HistoryDepth; len(history) > depth {
		history = history[:depth]
	}

	if err := e.credentials.PersistPasswordChange(ctx, p, newHash, history); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	p.PasswordHash = newHash
	p.PasswordHistory = history

	// Every outstanding token dies with the old password. The change is
	// already persisted at this point, so a revocation failure is surfaced
	// loudly instead of silently leaving live sessions behind.
	if n, err := e.registry.RevokeSubject(ctx, p.Username); err != nil {
		log.Print("authcore: token revocation after password change failed")
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	} else if n > 0 {
		e.emitAudit(ctx, auditEventLogoutAll, true, p.ID, p.Username, "", nil, func() map[string]string {
			return map[string]string{"tokens_revoked": strconv.Itoa(n), "trigger": "password_change"}
		})
	}

	if err := e.registerSuccess(ctx, p); err != nil {
		log.Print("authcore: failed-attempt reset after password change failed")
	}
	return nil
}
