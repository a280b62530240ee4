package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/timetrax/authcore/internal/attempts"
	"github.com/timetrax/authcore/password"
	"github.com/timetrax/authcore/permission"
	"github.com/timetrax/authcore/revocation"
	"github.com/timetrax/authcore/token"
)

// Builder assembles an Engine. Configure it with the With* methods, then call
// Build exactly once. Builders are not safe for concurrent use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	resources []permission.Resource

	credentials CredentialStore
	roles       RoleStore
	notifier    Notifier
	auditSink   AuditSink
	clock       func() time.Time

	built bool
}

// New returns a Builder preloaded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration. The config is cloned; later edits
// to the caller's copy do not reach the engine.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis switches the revocation registry and the failure counters to
// Redis, which shares both across processes. Without it the engine keeps
// them in memory, scoped to this process.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithResources registers the closed vocabulary of protected resources.
// Grants on resources outside this set are discarded at role load, so a typo
// in a role definition can never turn into an authorization bypass.
func (b *Builder) WithResources(resources ...permission.Resource) *Builder {
	b.resources = append(b.resources, resources...)
	return b
}

// WithCredentialStore wires the principal store. Required.
func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.credentials = store
	return b
}

// WithRoleStore wires the role store. Required.
func (b *Builder) WithRoleStore(store RoleStore) *Builder {
	b.roles = store
	return b
}

// WithNotifier wires the lockout notifier. Optional.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithAuditSink wires the audit destination. Only read when audit is enabled
// in the config.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock overrides the time source for token issuance, expiry checks, and
// registry eviction. Meant for tests.
func (b *Builder) WithClock(clock func() time.Time) *Builder {
	b.clock = clock
	return b
}

// WithMetricsEnabled toggles the counter set.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the authenticate latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, wires every component, and returns the
// ready Engine. A Builder can build only once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.credentials == nil {
		return nil, errors.New("credential store required")
	}
	if b.roles == nil {
		return nil, errors.New("role store required")
	}
	if len(b.resources) == 0 {
		return nil, errors.New("at least one protected resource must be registered")
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	/*==== PASSWORD ====*/

	hasher, err := password.NewHasher(password.Params{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	policy, err := password.NewPolicy(password.PolicyConfig{
		MinLength:    cfg.Password.MinLength,
		MaxRunLength: cfg.Password.MaxRunLength,
		SpecialChars: cfg.Password.SpecialChars,
		HistoryDepth: cfg.Password.HistoryDepth,
	}, hasher.Verify)
	if err != nil {
		return nil, err
	}

	/*==== TOKENS ====*/

	authority, err := token.NewAuthority(token.Config{
		AccessTTL:     cfg.Token.AccessTTL,
		RefreshTTL:    cfg.Token.RefreshTTL,
		SigningMethod: token.SigningMethod(cfg.Token.SigningMethod),
		PrivateKey:    cloneBytes(cfg.Token.PrivateKey),
		PublicKey:     cloneBytes(cfg.Token.PublicKey),
		Issuer:        cfg.Token.Issuer,
		Audience:      cfg.Token.Audience,
		Leeway:        cfg.Token.Leeway,
		Clock:         clock,
	})
	if err != nil {
		return nil, err
	}

	/*==== REVOCATION & FAILURE COUNTERS ====*/

	var registry revocation.Registry
	var counter attempts.Store
	if b.redis != nil {
		registry = revocation.NewRedisRegistry(b.redis, revocation.RedisConfig{
			KeyPrefix: cfg.Registry.KeyPrefix,
			Clock:     clock,
		})
		counter = attempts.NewRedis(b.redis)
	} else {
		registry = revocation.NewMemoryRegistry(revocation.MemoryConfig{
			SweepInterval: cfg.Registry.SweepInterval,
			Clock:         clock,
		})
		counter = attempts.NewMemory()
	}

	/*==== VOCABULARY ====*/

	vocabulary := permission.NewVocabulary()
	for _, r := range b.resources {
		if err := vocabulary.Register(r); err != nil {
			registry.Close()
			return nil, err
		}
	}
	vocabulary.Freeze()

	engine := &Engine{
		config:      cfg,
		credentials: b.credentials,
		roles:       b.roles,
		notifier:    b.notifier,
		hasher:      hasher,
		policy:      policy,
		authority:   authority,
		registry:    registry,
		attempts:    counter,
		audit:       newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:     NewMetrics(cfg.Metrics),
		now:         clock,
	}

	permits, err := permission.NewEngine(permission.EngineConfig{
		Fetch:      b.roles.FetchPermissions,
		Vocabulary: vocabulary,
		OnDiscard: func(role string, perm permission.Permission) {
			engine.emitAudit(context.Background(), auditEventGrantDiscarded, false, "", "", "", nil, func() map[string]string {
				return map[string]string{
					"role":     role,
					"resource": string(perm.Resource),
					"action":   perm.Action.String(),
				}
			})
		},
	})
	if err != nil {
		engine.Close()
		return nil, err
	}
	engine.permits = permits

	b.built = true

	return engine, nil
}
