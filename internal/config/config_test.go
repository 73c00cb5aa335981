package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "KV_BACKEND", "BUS_TRANSPORT", "BUS_FALLBACK", "KAFKA_BROKERS", "STORAGE_POLL_MS", "QUEUE_LOCK_TTL_MS", "ANNOUNCE_ROLE", "QUEUE_TIMEZONE"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Port != "8080" || cfg.KVBackend != BackendMemory || cfg.BusTransport != TransportMemory {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.BusFallback != TransportStorage {
		t.Fatalf("expected storage fallback, got %s", cfg.BusFallback)
	}
	if cfg.StoragePoll != 100*time.Millisecond || cfg.LockTTL != 5*time.Second {
		t.Fatalf("unexpected durations poll=%v lock=%v", cfg.StoragePoll, cfg.LockTTL)
	}
	if cfg.AnnounceRole != "display" || cfg.KafkaBrokers != nil {
		t.Fatalf("unexpected announce/kafka defaults: %+v", cfg)
	}
	if cfg.Location() != time.Local {
		t.Fatalf("expected host zone")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KV_BACKEND", "Redis")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("BUS_TRANSPORT", "kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092, ,k2:9092")
	t.Setenv("STORAGE_POLL_MS", "250")
	t.Setenv("QUEUE_LOCK_ATTEMPTS", "nope")
	t.Setenv("QUEUE_TIMEZONE", "America/Sao_Paulo")

	cfg := Load()

	if cfg.KVBackend != BackendRedis || cfg.RedisDB != 3 {
		t.Fatalf("unexpected redis settings: %+v", cfg)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if cfg.StoragePoll != 250*time.Millisecond {
		t.Fatalf("unexpected poll %v", cfg.StoragePoll)
	}
	if cfg.LockAttempts != 20 {
		t.Fatalf("invalid int should fall back, got %d", cfg.LockAttempts)
	}
	if cfg.Location().String() != "America/Sao_Paulo" {
		t.Fatalf("unexpected location %v", cfg.Location())
	}
}
