package authcore

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.SigningKey = []byte("0123456789abcdef0123456789abcdef")
	return cfg
}

func TestDefaultConfigValidatesWithKey(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config with key should validate: %v", err)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			name:    "zero access ttl",
			mutate:  func(c *Config) { c.JWT.AccessTTL = 0 },
			wantMsg: "AccessTTL",
		},
		{
			name:    "zero refresh ttl",
			mutate:  func(c *Config) { c.JWT.RefreshTTL = 0 },
			wantMsg: "RefreshTTL",
		},
		{
			name:    "access ttl not below refresh ttl",
			mutate:  func(c *Config) { c.JWT.AccessTTL = c.JWT.RefreshTTL },
			wantMsg: "AccessTTL must be < RefreshTTL",
		},
		{
			name:    "short signing key",
			mutate:  func(c *Config) { c.JWT.SigningKey = []byte("too-short") },
			wantMsg: "SigningKey",
		},
		{
			name:    "negative leeway",
			mutate:  func(c *Config) { c.JWT.Leeway = -time.Second },
			wantMsg: "Leeway",
		},
		{
			name:    "oversized leeway",
			mutate:  func(c *Config) { c.JWT.Leeway = 3 * time.Minute },
			wantMsg: "Leeway",
		},
		{
			name:    "negative sweep interval",
			mutate:  func(c *Config) { c.Session.SweepInterval = -time.Minute },
			wantMsg: "SweepInterval",
		},
		{
			name: "rate limit enabled without login limit",
			mutate: func(c *Config) {
				c.RateLimit.Enabled = true
				c.RateLimit.LoginLimit = 0
			},
			wantMsg: "LoginLimit",
		},
		{
			name: "rate limit enabled without refresh window",
			mutate: func(c *Config) {
				c.RateLimit.Enabled = true
				c.RateLimit.RefreshWindow = 0
			},
			wantMsg: "RefreshWindow",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Fatalf("expected error to mention %q, got %q", tc.wantMsg, err)
			}
		})
	}
}

func TestRateLimitValidationSkippedWhenDisabled(t *testing.T) {
	cfg := validConfig()
	cfg.RateLimit = RateLimitConfig{Enabled: false}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled rate limiting should not require limits: %v", err)
	}
}

func TestCloneConfigCopiesSigningKey(t *testing.T) {
	cfg := validConfig()
	cloned := cloneConfig(cfg)
	cloned.JWT.SigningKey[0] ^= 0xff
	if cfg.JWT.SigningKey[0] == cloned.JWT.SigningKey[0] {
		t.Fatal("clone shares signing key storage with the original")
	}
}
