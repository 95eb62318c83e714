package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"STORE_DRIVER", "SCHEMA_VERSION", "DEFAULT_ALGORITHM_VERSION", "JOB_MAX_ATTEMPTS",
		"JOB_ERROR_MAX_CHARS", "READINESS_TTL_SECONDS", "RULES_PATH", "NATS_SUBJECT",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.StoreDriver != StoreDriverPostgres {
		t.Fatalf("expected default store driver postgres, got %q", cfg.StoreDriver)
	}
	if cfg.SchemaVersion != "1" {
		t.Fatalf("expected default schema version 1, got %q", cfg.SchemaVersion)
	}
	if cfg.DefaultAlgorithmVersion != "v1" {
		t.Fatalf("expected default algorithm v1, got %q", cfg.DefaultAlgorithmVersion)
	}
	if cfg.JobMaxAttempts != 3 {
		t.Fatalf("expected default max attempts 3, got %d", cfg.JobMaxAttempts)
	}
	if cfg.JobErrorMaxChars != 500 {
		t.Fatalf("expected default error max chars 500, got %d", cfg.JobErrorMaxChars)
	}
	if cfg.ReadinessTTL != 30*time.Second {
		t.Fatalf("expected readiness ttl 30s, got %s", cfg.ReadinessTTL)
	}
	if cfg.RulesPath != "" {
		t.Fatalf("expected empty rules path, got %q", cfg.RulesPath)
	}
	if cfg.NATSSubject != "triage.jobs.ready" {
		t.Fatalf("unexpected default subject %q", cfg.NATSSubject)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("JOB_MAX_ATTEMPTS", "5")
	t.Setenv("READINESS_TTL_SECONDS", "0")
	t.Setenv("API_RATE_LIMIT_RPS", "2.5")
	t.Setenv("API_QUEUE_WAIT", "1s")
	t.Setenv("RESILIENCE_BREAKER_ENABLED", "false")

	cfg := Load()
	if cfg.StoreDriver != StoreDriverMemory {
		t.Fatalf("expected memory driver, got %q", cfg.StoreDriver)
	}
	if cfg.JobMaxAttempts != 5 {
		t.Fatalf("expected max attempts 5, got %d", cfg.JobMaxAttempts)
	}
	if cfg.ReadinessTTL != 0 {
		t.Fatalf("expected readiness ttl 0, got %s", cfg.ReadinessTTL)
	}
	if cfg.APIRateLimitRPS != 2.5 {
		t.Fatalf("expected rps 2.5, got %v", cfg.APIRateLimitRPS)
	}
	if cfg.APIQueueWait != time.Second {
		t.Fatalf("expected queue wait 1s, got %s", cfg.APIQueueWait)
	}
	if cfg.ResilienceBreakerEnabled {
		t.Fatalf("expected breaker disabled")
	}
}

func TestLoadFallsBackOnMalformedValues(t *testing.T) {
	t.Setenv("JOB_MAX_ATTEMPTS", "three")
	t.Setenv("API_QUEUE_WAIT", "soon")
	t.Setenv("READINESS_TTL_SECONDS", "-4")

	cfg := Load()
	if cfg.JobMaxAttempts != 3 {
		t.Fatalf("expected fallback max attempts 3, got %d", cfg.JobMaxAttempts)
	}
	if cfg.APIQueueWait != 250*time.Millisecond {
		t.Fatalf("expected fallback queue wait, got %s", cfg.APIQueueWait)
	}
	if cfg.ReadinessTTL != 30*time.Second {
		t.Fatalf("expected fallback ttl, got %s", cfg.ReadinessTTL)
	}
}
