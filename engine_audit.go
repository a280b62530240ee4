package authcore

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess        = "login_success"
	auditEventLoginFailure        = "login_failure"
	auditEventAccountLocked       = "account_locked"
	auditEventAccountUnlocked     = "account_unlocked"
	auditEventLockoutNotifyFailed = "lockout_notify_failed"
	auditEventRefreshSuccess      = "refresh_success"
	auditEventRefreshInvalid      = "refresh_invalid"
	auditEventRefreshReuse        = "refresh_reuse_detected"
	auditEventLogout              = "logout"
	auditEventLogoutAll           = "logout_all"
	auditEventTokenRejected       = "token_rejected"
	auditEventAuthorizeDenied     = "authorize_denied"
	auditEventPasswordChanged     = "password_changed"
	auditEventPasswordRejected    = "password_change_rejected"
	auditEventPasswordRenewed     = "password_renewed"
	auditEventGrantDiscarded      = "role_grant_discarded"
	auditEventStoreRetry          = "store_retry"
)

// AuditErrorCode is the stable failure token recorded on audit events. The
// external response may collapse several of these into one vague answer; the
// trail keeps them distinct.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrAccountDisabled    AuditErrorCode = "account_disabled"
	auditErrPasswordExpired    AuditErrorCode = "password_expired"
	auditErrChangeRequired     AuditErrorCode = "password_change_required"
	auditErrTokenMalformed     AuditErrorCode = "token_malformed"
	auditErrTokenExpired       AuditErrorCode = "token_expired"
	auditErrTokenSignature     AuditErrorCode = "token_signature"
	auditErrTokenWrongType     AuditErrorCode = "token_wrong_type"
	auditErrTokenRevoked       AuditErrorCode = "token_revoked"
	auditErrPermissionDenied   AuditErrorCode = "permission_denied"
	auditErrRoleNotFound       AuditErrorCode = "role_not_found"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	subject string,
	username string,
	tokenID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:     e.now().UTC(),
		EventType:     eventType,
		Subject:       subject,
		Username:      username,
		TokenID:       tokenID,
		SourceAddress: sourceAddressFromContext(ctx),
		Success:       success,
		Metadata:      metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrAccountDisabled):
		return auditErrAccountDisabled
	case errors.Is(err, ErrPasswordExpired):
		return auditErrPasswordExpired
	case errors.Is(err, ErrPasswordChangeRequired):
		return auditErrChangeRequired
	case errors.Is(err, ErrTokenRevoked):
		return auditErrTokenRevoked
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrTokenSignature):
		return auditErrTokenSignature
	case errors.Is(err, ErrTokenWrongType):
		return auditErrTokenWrongType
	case errors.Is(err, ErrTokenMalformed):
		return auditErrTokenMalformed
	case errors.Is(err, ErrPermissionDenied):
		return auditErrPermissionDenied
	case errors.Is(err, ErrRoleNotFound):
		return auditErrRoleNotFound
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}

// auditLatency reports how long an authenticate pass took; only wired when
// latency histograms are enabled.
func (e *Engine) auditLatency(start time.Time) {
	if e == nil || !e.metrics.LatencyEnabled() {
		return
	}
	e.metrics.Observe(MetricAuthenticateLatency, e.now().Sub(start))
}
