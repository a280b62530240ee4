package authcore

import (
	"errors"
	"time"

	"github.com/timetrax/authcore/password"
)

// Config collects every tunable of the engine. Zero values are not usable;
// start from DefaultConfig and override.
type Config struct {
	Token    TokenConfig
	Password PasswordConfig
	Guard    GuardConfig
	Registry RegistryConfig
	Store    StoreConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
	Security SecurityConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig drives the token authority.
type TokenConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig carries both the Argon2id hashing parameters and the policy
// rules applied to candidate passwords.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	// MinLength is the minimum candidate length in bytes.
	MinLength int
	// MaxRunLength is the longest permitted run of identical consecutive
	// characters; runs longer than this are a violation.
	MaxRunLength int
	// SpecialChars is the closed set of accepted special characters; a
	// candidate must contain at least one of them.
	SpecialChars string
	// HistoryDepth bounds the password history kept per principal. A new
	// password must differ from the current hash and every history entry.
	HistoryDepth int

	// UpgradeOnLogin transparently rehashes a verified password when the
	// stored hash uses weaker parameters than configured.
	UpgradeOnLogin bool
}

/*
====================================
GUARD CONFIG
====================================
*/

// GuardConfig drives the account lockout state machine.
type GuardConfig struct {
	// MaxFailedAttempts is the failure count at which a principal locks.
	// The counter decays only on successful login or administrative unlock,
	// never with time.
	MaxFailedAttempts int
}

// RegistryConfig drives the revocation registry.
type RegistryConfig struct {
	// SweepInterval is the cadence of the background eviction pass in the
	// in-memory registry.
	SweepInterval time.Duration
	// KeyPrefix namespaces the Redis-backed registry's keys.
	KeyPrefix string
}

// StoreConfig tunes how collaborator failures are handled.
type StoreConfig struct {
	// RetryBackoff is the pause before the single retry after a transient
	// credential-store failure.
	RetryBackoff time.Duration
}

// AuditConfig drives the buffered audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig drives the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// SecurityConfig collects hardening toggles.
type SecurityConfig struct {
	// RevokeOnRefreshReuse revokes every outstanding token for a subject when
	// an already-rotated refresh token is presented again.
	RevokeOnRefreshReuse bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultSpecialChars is the accepted special-character set for password
// complexity checks.
const DefaultSpecialChars = password.DefaultSpecialChars

// DefaultConfig returns the production defaults. Signing keys must still be
// provided by the caller.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "ed25519",
			Leeway:        30 * time.Second,
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			MinLength:      10,
			MaxRunLength:   2,
			SpecialChars:   DefaultSpecialChars,
			HistoryDepth:   5,
			UpgradeOnLogin: true,
		},
		Guard: GuardConfig{
			MaxFailedAttempts: 5,
		},
		Registry: RegistryConfig{
			SweepInterval: time.Minute,
			KeyPrefix:     "ar",
		},
		Store: StoreConfig{
			RetryBackoff: 100 * time.Millisecond,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Security: SecurityConfig{
			RevokeOnRefreshReuse: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks the configuration and returns the first violated rule.
func (c *Config) Validate() error {
	// Token
	if c.Token.AccessTTL <= 0 {
		return errors.New("Token AccessTTL must be > 0")
	}
	if c.Token.RefreshTTL <= 0 {
		return errors.New("Token RefreshTTL must be > 0")
	}
	if c.Token.AccessTTL >= c.Token.RefreshTTL {
		return errors.New("Token AccessTTL must be strictly shorter than RefreshTTL")
	}
	if c.Token.SigningMethod != "ed25519" && c.Token.SigningMethod != "hs256" {
		return errors.New("unsupported token signing method")
	}
	if c.Token.SigningMethod == "ed25519" && len(c.Token.PrivateKey) == 0 {
		return errors.New("ed25519 requires PrivateKey")
	}
	if c.Token.SigningMethod == "ed25519" && len(c.Token.PublicKey) == 0 {
		return errors.New("ed25519 requires PublicKey")
	}
	if c.Token.SigningMethod == "hs256" && len(c.Token.PrivateKey) == 0 {
		return errors.New("hs256 requires PrivateKey")
	}
	if c.Token.Leeway < 0 {
		return errors.New("Token Leeway must be >= 0")
	}
	if c.Token.Leeway > 2*time.Minute {
		return errors.New("Token Leeway must be <= 2m")
	}

	// Password hashing
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Password policy
	if c.Password.MinLength < 10 {
		return errors.New("Password MinLength must be >= 10")
	}
	if c.Password.MaxRunLength < 1 {
		return errors.New("Password MaxRunLength must be >= 1")
	}
	if c.Password.SpecialChars == "" {
		return errors.New("Password SpecialChars must not be empty")
	}
	if c.Password.HistoryDepth < 1 {
		return errors.New("Password HistoryDepth must be >= 1")
	}

	// Guard
	if c.Guard.MaxFailedAttempts <= 0 {
		return errors.New("Guard MaxFailedAttempts must be > 0")
	}

	// Registry
	if c.Registry.SweepInterval <= 0 {
		return errors.New("Registry SweepInterval must be > 0")
	}
	if c.Registry.KeyPrefix == "" {
		return errors.New("Registry KeyPrefix must not be empty")
	}

	// Store
	if c.Store.RetryBackoff < 0 {
		return errors.New("Store RetryBackoff must be >= 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
