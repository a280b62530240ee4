package authcore

import (
	"context"
	"fmt"
	"log"
	"strconv"
)

// lockedOut reports whether the principal is locked. The persisted flag and
// the live counter are both authoritative: if persisting a lock transition
// failed, the counter alone keeps the account rejected.
func (e *Engine) lockedOut(ctx context.Context, p *Principal) (bool, error) {
	if p.Locked {
		return true, nil
	}
	count, err := e.attempts.Count(ctx, p.Username)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return count >= e.config.Guard.MaxFailedAttempts, nil
}

// registerFailure advances the failure counter and returns the error the
// login should surface: ErrInvalidCredentials below the threshold,
// ErrAccountLocked on the attempt that crosses it. The live counter is
// seeded from the persisted count so progress toward lockout survives a
// restart.
func (e *Engine) registerFailure(ctx context.Context, p *Principal) error {
	count, err := e.attempts.Bump(ctx, p.Username, p.FailedAttempts)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if count < e.config.Guard.MaxFailedAttempts {
		return ErrInvalidCredentials
	}

	// Threshold reached: lock. The persist is best-effort; the counter
	// already rejects further attempts if the store write is lost.
	if err := e.credentials.PersistLockoutState(ctx, p, true, count); err != nil {
		log.Print("authcore: persisting lockout state failed")
	}
	e.metricInc(MetricAccountLockout)
	e.emitAudit(ctx, auditEventAccountLocked, false, p.ID, p.Username, "", ErrAccountLocked, func() map[string]string {
		return map[string]string{"attempts": strconv.Itoa(count)}
	})
	e.notifyLockout(ctx, p, count)
	return ErrAccountLocked
}

// registerSuccess resets the failure counter after a successful login.
func (e *Engine) registerSuccess(ctx context.Context, p *Principal) error {
	if err := e.attempts.Reset(ctx, p.Username); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if p.FailedAttempts > 0 {
		if err := e.credentials.PersistLockoutState(ctx, p, false, 0); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	return nil
}

// notifyLockout dispatches the lockout notification without blocking the
// login path. A notifier failure is audited and swallowed; it never reverses
// the lock transition.
func (e *Engine) notifyLockout(ctx context.Context, p *Principal, count int) {
	if e.notifier == nil {
		return
	}
	source := sourceAddressFromContext(ctx)
	at := e.now()
	go func() {
		if err := e.notifier.NotifyLockout(context.Background(), p, count, source, at); err != nil {
			e.metricInc(MetricNotifyFailure)
			e.emitAudit(context.Background(), auditEventLockoutNotifyFailed, false, p.ID, p.Username, "", err, func() map[string]string {
				return map[string]string{"attempts": strconv.Itoa(count)}
			})
			log.Print("authcore: lockout notification failed")
		}
	}()
}
