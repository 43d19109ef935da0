package authcore

import (
	"errors"
	"time"

	"github.com/vantorre/authcore/token"
)

// SigningConfig carries the codec's key material and claim policy. The
// secret is injected by the embedding service and rotated out of band.
type SigningConfig struct {
	Method     token.SigningMethod
	PrivateKey []byte
	PublicKey  []byte
	Issuer     string
	Audience   string
	Leeway     time.Duration
	KeyID      string
	VerifyKeys map[string][]byte
}

// OneTimeConfig sets the lifetime of each one-time token purpose.
// ConsumedGrace is how long a consumed or logically expired record stays in
// the cache so late redemptions get a precise error instead of "not found".
type OneTimeConfig struct {
	VerificationTTL time.Duration
	SetPasswordTTL  time.Duration
	ChangeEmailTTL  time.Duration
	ConsumedGrace   time.Duration
}

// CacheConfig bounds every Redis operation. Timeout applies per operation;
// RetryAttempts is the total number of tries for transient cache failures
// (all other error kinds are terminal and never retried).
type CacheConfig struct {
	Timeout       time.Duration
	RetryAttempts int
	KeyPrefix     string
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// Config is the full engine configuration. Zero values are filled from
// defaultConfig by the Builder; Build rejects inconsistent settings.
type Config struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	SessionTTL time.Duration

	Signing SigningConfig
	OneTime OneTimeConfig
	Cache   CacheConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

// DefaultConfig returns the recommended settings. Callers mutate what they
// need and pass the result to [Builder.WithConfig]; boolean toggles such as
// Audit.Enabled are only honored as set, so starting from DefaultConfig is
// the way to keep auditing and metrics on.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		AccessTTL:  10 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		SessionTTL: 7 * 24 * time.Hour,
		Signing: SigningConfig{
			Method: token.MethodHS256,
		},
		OneTime: OneTimeConfig{
			VerificationTTL: 24 * time.Hour,
			SetPasswordTTL:  15 * time.Minute,
			ChangeEmailTTL:  24 * time.Hour,
			ConsumedGrace:   time.Hour,
		},
		Cache: CacheConfig{
			Timeout:       3 * time.Second,
			RetryAttempts: 3,
			KeyPrefix:     "ac",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func fillConfigDefaults(cfg *Config) {
	def := defaultConfig()

	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = def.AccessTTL
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = def.RefreshTTL
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = def.SessionTTL
	}
	if cfg.Signing.Method == "" {
		cfg.Signing.Method = def.Signing.Method
	}
	if cfg.OneTime.VerificationTTL == 0 {
		cfg.OneTime.VerificationTTL = def.OneTime.VerificationTTL
	}
	if cfg.OneTime.SetPasswordTTL == 0 {
		cfg.OneTime.SetPasswordTTL = def.OneTime.SetPasswordTTL
	}
	if cfg.OneTime.ChangeEmailTTL == 0 {
		cfg.OneTime.ChangeEmailTTL = def.OneTime.ChangeEmailTTL
	}
	if cfg.OneTime.ConsumedGrace == 0 {
		cfg.OneTime.ConsumedGrace = def.OneTime.ConsumedGrace
	}
	if cfg.Cache.Timeout == 0 {
		cfg.Cache.Timeout = def.Cache.Timeout
	}
	if cfg.Cache.RetryAttempts == 0 {
		cfg.Cache.RetryAttempts = def.Cache.RetryAttempts
	}
	if cfg.Cache.KeyPrefix == "" {
		cfg.Cache.KeyPrefix = def.Cache.KeyPrefix
	}
	if cfg.Audit.BufferSize == 0 {
		cfg.Audit.BufferSize = def.Audit.BufferSize
	}
}

func validateConfig(cfg Config) error {
	if cfg.AccessTTL <= 0 {
		return errors.New("AccessTTL must be positive")
	}
	if cfg.RefreshTTL <= cfg.AccessTTL {
		return errors.New("RefreshTTL must exceed AccessTTL")
	}
	if cfg.SessionTTL < cfg.RefreshTTL {
		return errors.New("SessionTTL must be at least RefreshTTL")
	}
	if cfg.OneTime.VerificationTTL <= 0 ||
		cfg.OneTime.SetPasswordTTL <= 0 ||
		cfg.OneTime.ChangeEmailTTL <= 0 {
		return errors.New("one-time token TTLs must be positive")
	}
	if cfg.OneTime.ConsumedGrace < 0 {
		return errors.New("ConsumedGrace must not be negative")
	}
	if cfg.Cache.Timeout <= 0 {
		return errors.New("cache timeout must be positive")
	}
	if cfg.Cache.RetryAttempts < 1 {
		return errors.New("cache retry attempts must be at least 1")
	}
	return nil
}

func (c Config) oneTimeTTL(purpose Purpose) time.Duration {
	switch purpose {
	case PurposeSetPassword:
		return c.OneTime.SetPasswordTTL
	case PurposeChangeEmail:
		return c.OneTime.ChangeEmailTTL
	default:
		return c.OneTime.VerificationTTL
	}
}
