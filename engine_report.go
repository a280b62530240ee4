package authcore

import (
	"time"

	"github.com/timetrax/authcore/revocation"
)

// SecurityReport is a point-in-time readout of the engine's active security
// posture, suitable for an admin endpoint or a startup log line. It contains
// no secrets.
type SecurityReport struct {
	SigningAlgorithm string
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	TokenLeeway      time.Duration

	Argon2             PasswordHashingReport
	PolicyMinLength    int
	PasswordHistory    int
	HashUpgradeOnLogin bool

	LockoutThreshold        int
	RefreshReuseBurnsFamily bool

	// RedisBacked reports whether revocation and failure counters survive a
	// process restart.
	RedisBacked bool

	AuditEnabled      bool
	MetricsEnabled    bool
	LatencyHistograms bool
}

// PasswordHashingReport mirrors the active Argon2id cost parameters.
type PasswordHashingReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// SecurityReport summarizes the configuration the engine is actually running
// with, after defaulting and validation.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	_, redisBacked := e.registry.(*revocation.RedisRegistry)

	return SecurityReport{
		SigningAlgorithm: e.config.Token.SigningMethod,
		AccessTTL:        e.config.Token.AccessTTL,
		RefreshTTL:       e.config.Token.RefreshTTL,
		TokenLeeway:      e.config.Token.Leeway,
		Argon2: PasswordHashingReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
		},
		PolicyMinLength:         e.config.Password.MinLength,
		PasswordHistory:         e.config.Password.HistoryDepth,
		HashUpgradeOnLogin:      e.config.Password.UpgradeOnLogin,
		LockoutThreshold:        e.config.Guard.MaxFailedAttempts,
		RefreshReuseBurnsFamily: e.config.Security.RevokeOnRefreshReuse,
		RedisBacked:             redisBacked,
		AuditEnabled:            e.config.Audit.Enabled,
		MetricsEnabled:          e.config.Metrics.Enabled,
		LatencyHistograms:       e.config.Metrics.Enabled && e.config.Metrics.EnableLatencyHistograms,
	}
}
