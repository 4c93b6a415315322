package config

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Environment != "development" {
		t.Errorf("environment = %q, want development", cfg.Environment)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Auth.OTPTTL != 5*time.Minute {
		t.Errorf("otp ttl = %v, want 5m", cfg.Auth.OTPTTL)
	}
	if cfg.Auth.AttemptThreshold != 5 {
		t.Errorf("attempt threshold = %d, want 5", cfg.Auth.AttemptThreshold)
	}
	if cfg.Auth.LockoutWindow != 15*time.Minute {
		t.Errorf("lockout window = %v, want 15m", cfg.Auth.LockoutWindow)
	}
	// Development falls back to distinct built-in secrets.
	if cfg.JWT.AccessSecret == "" || cfg.JWT.AccessSecret == cfg.JWT.RefreshSecret {
		t.Error("dev secret fallback missing or identical")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("OTP_TTL", "2m")
	t.Setenv("CHALLENGE_BACKEND", "redis")
	t.Setenv("IDENTITY_BACKEND", "memory")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Auth.OTPTTL != 2*time.Minute {
		t.Errorf("otp ttl = %v, want 2m", cfg.Auth.OTPTTL)
	}
	if cfg.Auth.ChallengeBackend != BackendRedis {
		t.Errorf("challenge backend = %q", cfg.Auth.ChallengeBackend)
	}
	if cfg.Auth.IdentityBackend != BackendMemory {
		t.Errorf("identity backend = %q", cfg.Auth.IdentityBackend)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"missing secrets outside development", map[string]string{
			"ENVIRONMENT": "production",
		}},
		{"identical secrets", map[string]string{
			"JWT_SECRET":         "same",
			"JWT_REFRESH_SECRET": "same",
		}},
		{"access outlives refresh", map[string]string{
			"JWT_ACCESS_TTL":  "48h",
			"JWT_REFRESH_TTL": "24h",
		}},
		{"unknown challenge backend", map[string]string{
			"CHALLENGE_BACKEND": "dynamo",
		}},
		{"unknown identity backend", map[string]string{
			"IDENTITY_BACKEND": "postgres",
		}},
		{"zero attempt threshold", map[string]string{
			"ATTEMPT_THRESHOLD": "0",
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := LoadConfig(); err == nil {
				t.Error("LoadConfig accepted invalid configuration")
			}
		})
	}
}
