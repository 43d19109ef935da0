package authcore

import (
	"testing"
	"time"
)

func TestFillConfigDefaults(t *testing.T) {
	cfg := Config{}
	fillConfigDefaults(&cfg)

	if cfg.AccessTTL != 10*time.Minute {
		t.Errorf("AccessTTL = %v", cfg.AccessTTL)
	}
	if cfg.RefreshTTL != 7*24*time.Hour {
		t.Errorf("RefreshTTL = %v", cfg.RefreshTTL)
	}
	if cfg.Cache.KeyPrefix != "ac" {
		t.Errorf("KeyPrefix = %q", cfg.Cache.KeyPrefix)
	}
	if cfg.OneTime.SetPasswordTTL != 15*time.Minute {
		t.Errorf("SetPasswordTTL = %v", cfg.OneTime.SetPasswordTTL)
	}

	if err := validateConfig(cfg); err != nil {
		t.Errorf("defaults failed validation: %v", err)
	}
}

func TestFillConfigDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := Config{
		AccessTTL: 5 * time.Minute,
		Cache:     CacheConfig{KeyPrefix: "custom"},
	}
	fillConfigDefaults(&cfg)

	if cfg.AccessTTL != 5*time.Minute {
		t.Errorf("AccessTTL = %v, want the explicit 5m", cfg.AccessTTL)
	}
	if cfg.Cache.KeyPrefix != "custom" {
		t.Errorf("KeyPrefix = %q, want custom", cfg.Cache.KeyPrefix)
	}
}

func TestValidateConfigRejectsInconsistentTTLs(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"refresh not beyond access", func(c *Config) { c.RefreshTTL = c.AccessTTL }},
		{"session below refresh", func(c *Config) { c.SessionTTL = c.RefreshTTL - time.Second }},
		{"negative grace", func(c *Config) { c.OneTime.ConsumedGrace = -time.Second }},
		{"negative cache timeout", func(c *Config) { c.Cache.Timeout = -time.Second }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if err := validateConfig(cfg); err == nil {
				t.Fatal("expected validation to fail")
			}
		})
	}
}

func TestOneTimeTTLPerPurpose(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.oneTimeTTL(PurposeSetPassword); got != cfg.OneTime.SetPasswordTTL {
		t.Errorf("set-password ttl = %v", got)
	}
	if got := cfg.oneTimeTTL(PurposeChangeEmail); got != cfg.OneTime.ChangeEmailTTL {
		t.Errorf("change-email ttl = %v", got)
	}
	if got := cfg.oneTimeTTL(PurposeAccountVerification); got != cfg.OneTime.VerificationTTL {
		t.Errorf("verification ttl = %v", got)
	}
}

func TestPurposeString(t *testing.T) {
	if PurposeSetPassword.String() != "SET_PASSWORD" {
		t.Errorf("SET_PASSWORD name = %q", PurposeSetPassword.String())
	}
	if Purpose(99).String() != "UNKNOWN" {
		t.Errorf("unknown purpose name = %q", Purpose(99).String())
	}
}
