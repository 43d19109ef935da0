package authcore

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/vantorre/authcore/internal/stores"
	"github.com/vantorre/authcore/session"
	"github.com/vantorre/authcore/tag"
	"github.com/vantorre/authcore/token"
)

// Builder assembles an Engine. Construction is allocation-only; no I/O
// happens until the first Engine method call.
type Builder struct {
	config    Config
	hasConfig bool
	redis     redis.UniversalClient

	accounts AccountStore
	hasher   PasswordHasher
	delivery DeliveryService
	sink     AuditSink

	built bool
}

// New returns a Builder preloaded with defaults.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration. Zero-valued fields are filled from
// defaults at Build time.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	b.hasConfig = true
	return b
}

// WithRedis sets the cache client shared by the tag registry, session store,
// and one-time token store.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAccountStore sets the external account database collaborator.
func (b *Builder) WithAccountStore(accounts AccountStore) *Builder {
	b.accounts = accounts
	return b
}

// WithPasswordHasher sets the password hashing collaborator.
func (b *Builder) WithPasswordHasher(hasher PasswordHasher) *Builder {
	b.hasher = hasher
	return b
}

// WithDelivery sets the out-of-band delivery collaborator. Optional: without
// it, Request* operations still issue tokens but log that nothing was sent.
func (b *Builder) WithDelivery(delivery DeliveryService) *Builder {
	b.delivery = delivery
	return b
}

// WithAuditSink sets the destination for audit events.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

// Build validates the configuration and wires the engine. A Builder can
// build at most once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}
	if b.accounts == nil {
		return nil, errors.New("account store is required")
	}
	if b.hasher == nil {
		return nil, errors.New("password hasher is required")
	}

	cfg := b.config
	fillConfigDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	codec, err := token.NewCodec(token.Config{
		SigningMethod: cfg.Signing.Method,
		PrivateKey:    cfg.Signing.PrivateKey,
		PublicKey:     cfg.Signing.PublicKey,
		Issuer:        cfg.Signing.Issuer,
		Audience:      cfg.Signing.Audience,
		Leeway:        cfg.Signing.Leeway,
		KeyID:         cfg.Signing.KeyID,
		VerifyKeys:    cfg.Signing.VerifyKeys,
	})
	if err != nil {
		return nil, err
	}

	var metrics *Metrics
	if cfg.Metrics.Enabled {
		metrics = newMetrics()
	}

	prefix := cfg.Cache.KeyPrefix
	engine := &Engine{
		config:   cfg,
		codec:    codec,
		tags:     tag.NewRegistry(b.redis, prefix+"t"),
		sessions: session.NewStore(b.redis, prefix+"s"),
		onetime:  stores.NewOneTimeStore(b.redis, prefix+"o"),
		accounts: b.accounts,
		hasher:   b.hasher,
		delivery: b.delivery,
		audit:    newAuditDispatcher(cfg.Audit, b.sink),
		metrics:  metrics,
	}

	b.built = true
	return engine, nil
}
