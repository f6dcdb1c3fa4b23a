package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "SCAN_PORT", "SCAN_POLL_MILLIS", "SCAN_DRAIN_LIMIT", "COMPANY_CACHE_TTL_SECONDS"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Address() != ":8090" {
		t.Fatalf("expected api on :8090, got %q", cfg.Address())
	}
	if cfg.ScanAddress() != "0.0.0.0:8080" {
		t.Fatalf("expected scan listener on 0.0.0.0:8080, got %q", cfg.ScanAddress())
	}
	if cfg.ScanPollMillis != 100 {
		t.Fatalf("expected 100ms poll default, got %d", cfg.ScanPollMillis)
	}
	if cfg.ScanDrainLimit != 32 {
		t.Fatalf("expected drain limit 32, got %d", cfg.ScanDrainLimit)
	}
}

func TestLoadRejectsGarbageNumbers(t *testing.T) {
	t.Setenv("SCAN_POLL_MILLIS", "not-a-number")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "-5")

	cfg := Load()
	if cfg.ScanPollMillis != 100 {
		t.Fatalf("expected fallback poll interval, got %d", cfg.ScanPollMillis)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("expected fallback token TTL, got %d", cfg.AccessTokenTTLMinutes)
	}
}
