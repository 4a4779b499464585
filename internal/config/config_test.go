package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_FallsBackReadAndFraudURLsToWriteURL(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "DB_WRITE_URL", "postgres://write/db")
	unsetEnvWithCleanup(t, "DB_READ_URL")
	unsetEnvWithCleanup(t, "DB_FRAUD_URL")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.DBReadURL != "postgres://write/db" {
		t.Fatalf("expected DBReadURL to fall back to DBWriteURL, got %q", cfg.DBReadURL)
	}
	if cfg.DBFraudURL != "postgres://write/db" {
		t.Fatalf("expected DBFraudURL to fall back to DBWriteURL, got %q", cfg.DBFraudURL)
	}
}

func TestLoadConfig_RequiresDBWriteURL(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "DB_WRITE_URL")

	if _, err := LoadConfig(t.TempDir()); err == nil {
		t.Fatal("expected LoadConfig to error when DB_WRITE_URL is unset")
	}
}

func TestLoadConfig_DefaultIdempotencyTTL(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "DB_WRITE_URL", "postgres://write/db")
	unsetEnvWithCleanup(t, "IDEMPOTENCY_TTL_SECONDS")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.IdempotencyTTLSeconds != 86400 {
		t.Fatalf("expected default IdempotencyTTLSeconds of 86400, got %d", cfg.IdempotencyTTLSeconds)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}
