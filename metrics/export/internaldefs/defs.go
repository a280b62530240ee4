package internaldefs

import (
	authcore "github.com/timetrax/authcore"
)

// CounterDef binds a core MetricID to its published name.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef binds a histogram-backed MetricID to its published name.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in publication order.
var CounterDefs = []CounterDef{
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Successful login attempts."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Failed login attempts."},
	{ID: authcore.MetricAccountLockout, Name: "authcore_account_lockout_total", Help: "Accounts transitioned to locked."},
	{ID: authcore.MetricAccountUnlock, Name: "authcore_account_unlock_total", Help: "Administrative account unlocks."},
	{ID: authcore.MetricRefreshSuccess, Name: "authcore_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: authcore.MetricRefreshFailure, Name: "authcore_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: authcore.MetricRefreshReuseDetected, Name: "authcore_refresh_reuse_detected_total", Help: "Rotated refresh tokens presented again."},
	{ID: authcore.MetricLogout, Name: "authcore_logout_total", Help: "Single-token logout operations."},
	{ID: authcore.MetricLogoutAll, Name: "authcore_logout_all_total", Help: "Bulk subject revocations."},
	{ID: authcore.MetricAuthenticateSuccess, Name: "authcore_authenticate_success_total", Help: "Requests passing the gateway pipeline."},
	{ID: authcore.MetricAuthenticateFailure, Name: "authcore_authenticate_failure_total", Help: "Requests rejected by the gateway pipeline."},
	{ID: authcore.MetricTokenRevokedRejection, Name: "authcore_token_revoked_rejection_total", Help: "Requests rejected for a revoked token."},
	{ID: authcore.MetricAuthorizeAllow, Name: "authcore_authorize_allow_total", Help: "Permission checks answered allow."},
	{ID: authcore.MetricAuthorizeDeny, Name: "authcore_authorize_deny_total", Help: "Permission checks answered deny."},
	{ID: authcore.MetricPasswordChangeSuccess, Name: "authcore_password_change_success_total", Help: "Successful password changes."},
	{ID: authcore.MetricPasswordChangeRejected, Name: "authcore_password_change_rejected_total", Help: "Rejected password change attempts."},
	{ID: authcore.MetricPasswordExpiredLogin, Name: "authcore_password_expired_login_total", Help: "Logins blocked by an expired password."},
	{ID: authcore.MetricNotifyFailure, Name: "authcore_lockout_notify_failure_total", Help: "Failed lockout notifications."},
	{ID: authcore.MetricStoreRetry, Name: "authcore_store_retry_total", Help: "Credential store fetches that needed a retry."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricAuthenticateLatency, Name: "authcore_authenticate_latency_seconds", Help: "Authenticate latency histogram."},
}

// HistogramBounds are the upper bucket bounds in seconds, Prometheus "le"
// label form.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// NormalizeBuckets pads or truncates a raw snapshot slice to the fixed
// bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into the cumulative form
// Prometheus histograms expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
