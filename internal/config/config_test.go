package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"RISKLOCK_API_URL", "RISKLOCK_WS_URL", "RISKLOCK_STORAGE", "RISKLOCK_CONNECT_TIMEOUT",
		"RISKLOCK_RECONNECT_MAX_RETRIES", "RISKLOCK_DASHBOARD_POLL", "PORT",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	if cfg.API.WSURL != "ws://localhost:8000/api" {
		t.Fatalf("unexpected ws url: %s", cfg.API.WSURL)
	}
	if cfg.Storage.Backend != StorageMemory {
		t.Fatalf("unexpected storage backend: %s", cfg.Storage.Backend)
	}
	if cfg.Transport.ConnectTimeout != 5*time.Second {
		t.Fatalf("unexpected connect timeout: %s", cfg.Transport.ConnectTimeout)
	}
	if cfg.Transport.MaxRetries != 5 {
		t.Fatalf("unexpected max retries: %d", cfg.Transport.MaxRetries)
	}
	if cfg.Stub.Addr != ":8000" {
		t.Fatalf("unexpected stub addr: %s", cfg.Stub.Addr)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("RISKLOCK_API_URL", "https://risklock.example/api/")
	t.Setenv("RISKLOCK_WS_URL", "")
	t.Setenv("RISKLOCK_CONNECT_TIMEOUT", "1500")
	t.Setenv("RISKLOCK_DASHBOARD_POLL", "2s")
	t.Setenv("RISKLOCK_STORAGE", "Redis")
	t.Setenv("PORT", "127.0.0.1:9000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	if cfg.API.BaseURL != "https://risklock.example/api" {
		t.Fatalf("unexpected base url: %s", cfg.API.BaseURL)
	}
	if cfg.API.WSURL != "wss://risklock.example/api" {
		t.Fatalf("unexpected ws url: %s", cfg.API.WSURL)
	}
	if cfg.Transport.ConnectTimeout != 1500*time.Millisecond {
		t.Fatalf("unexpected connect timeout: %s", cfg.Transport.ConnectTimeout)
	}
	if cfg.Polling.Dashboard != 2*time.Second {
		t.Fatalf("unexpected dashboard poll: %s", cfg.Polling.Dashboard)
	}
	if cfg.Storage.Backend != StorageRedis {
		t.Fatalf("unexpected storage backend: %s", cfg.Storage.Backend)
	}
	if cfg.Stub.Addr != "127.0.0.1:9000" {
		t.Fatalf("unexpected stub addr: %s", cfg.Stub.Addr)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("RISKLOCK_STORAGE", "floppy")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown storage backend")
	}

	t.Setenv("RISKLOCK_STORAGE", "")
	t.Setenv("RISKLOCK_CONNECT_TIMEOUT", "-1s")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for negative timeout")
	}
}
