package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "LISTEN_ADDR", "DATABASE_PATH", "AWARD_MAX_STARS", "AWARD_DEDUP_POLICY", "TOKEN_SECRET", "SESSION_SECRET", "TOKEN_TTL"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("expected listen addr :8080, got %s", cfg.ListenAddr)
	}
	if cfg.DatabasePath != "twogether.db" {
		t.Fatalf("unexpected database path %s", cfg.DatabasePath)
	}
	if cfg.AwardMaxStars != 100 {
		t.Fatalf("expected default award max 100, got %d", cfg.AwardMaxStars)
	}
	if cfg.AwardDedupPolicy != AwardPolicyWeekly {
		t.Fatalf("expected weekly policy, got %s", cfg.AwardDedupPolicy)
	}
	if cfg.TokenSecret != cfg.SessionSecret {
		t.Fatalf("token secret should fall back to session secret")
	}
	if cfg.TokenTTL != 7*24*time.Hour {
		t.Fatalf("unexpected token ttl %s", cfg.TokenTTL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("LISTEN_ADDR", "")
	t.Setenv("AWARD_MAX_STARS", "25")
	t.Setenv("AWARD_DEDUP_POLICY", "DAILY")
	t.Setenv("FUNCTIONS_RATE_LIMIT", "not-a-number")
	t.Setenv("ENABLE_JOBS", "false")
	t.Setenv("TIMEZONE", "Asia/Shanghai")

	cfg := Load()
	if cfg.ListenAddr != ":9000" {
		t.Fatalf("expected :9000, got %s", cfg.ListenAddr)
	}
	if cfg.AwardMaxStars != 25 {
		t.Fatalf("expected 25, got %d", cfg.AwardMaxStars)
	}
	if cfg.AwardDedupPolicy != AwardPolicyDaily {
		t.Fatalf("expected daily policy, got %s", cfg.AwardDedupPolicy)
	}
	if cfg.FunctionsRateLimit != 5 {
		t.Fatalf("invalid float should fall back to default, got %v", cfg.FunctionsRateLimit)
	}
	if cfg.EnableJobs {
		t.Fatalf("expected jobs disabled")
	}
	if cfg.Location().String() != "Asia/Shanghai" {
		t.Fatalf("unexpected location %s", cfg.Location())
	}
}

func TestLoadDotEnvKeepsExistingValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("TWOGETHER_TEST_A=from-file\nTWOGETHER_TEST_B=from-file\n"), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("TWOGETHER_TEST_A", "from-env")
	t.Cleanup(func() { os.Unsetenv("TWOGETHER_TEST_B") })

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("load dotenv: %v", err)
	}
	if got := os.Getenv("TWOGETHER_TEST_A"); got != "from-env" {
		t.Fatalf("existing value overwritten: %s", got)
	}
	if got := os.Getenv("TWOGETHER_TEST_B"); got != "from-file" {
		t.Fatalf("expected value from file, got %s", got)
	}
}

func TestValidateRejectsDevSecretInRelease(t *testing.T) {
	cases := []struct {
		name    string
		cfg     AppConfig
		wantErr bool
	}{
		{"release with defaults", AppConfig{GinMode: "release", SessionSecret: DevSecret, TokenSecret: DevSecret}, true},
		{"release with default token secret", AppConfig{GinMode: "release", SessionSecret: "s3cret", TokenSecret: DevSecret}, true},
		{"release with secrets", AppConfig{GinMode: "release", SessionSecret: "s3cret", TokenSecret: "t0ken"}, false},
		{"debug with defaults", AppConfig{GinMode: "debug", SessionSecret: DevSecret, TokenSecret: DevSecret}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestLoadWithoutSecretsFailsValidationInRelease(t *testing.T) {
	t.Setenv("GIN_MODE", "release")
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("TOKEN_SECRET", "")
	if err := Load().Validate(); err == nil {
		t.Fatalf("expected release config without secrets to be rejected")
	}
}
