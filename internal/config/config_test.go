package config

import (
	"strings"
	"testing"
)

func TestLoadServerConfig_DefaultSpeedFromEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("ETA_DEFAULT_SPEED_MPS", "12.5")

	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DefaultSpeedMps != 12.5 {
		t.Fatalf("expected 12.5 m/s, got %f", cfg.DefaultSpeedMps)
	}
}

func TestLoadServerConfig_RejectsBadDefaultSpeed(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	t.Setenv("ETA_DEFAULT_SPEED_MPS", "not-a-number")
	if _, err := LoadServerConfig(); err == nil || !strings.Contains(err.Error(), "ETA_DEFAULT_SPEED_MPS") {
		t.Fatalf("expected a parse error naming the variable, got %v", err)
	}

	t.Setenv("ETA_DEFAULT_SPEED_MPS", "-3")
	if _, err := LoadServerConfig(); err == nil {
		t.Fatal("expected an error for a non-positive speed")
	}
}
