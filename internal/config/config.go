package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"

	TransportRedis   = "redis"
	TransportKafka   = "kafka"
	TransportStorage = "storage"
	TransportMemory  = "memory"
	TransportNone    = "none"
)

type Config struct {
	Port         string
	RealtimePort string

	// KVBackend selects the shared medium every context reads and writes.
	KVBackend     string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DatabaseURL   string
	SweepInterval time.Duration

	BusTransport string
	BusFallback  string
	KafkaBrokers []string
	KafkaTopic   string
	StoragePoll  time.Duration

	Timezone       string
	LockTTL        time.Duration
	LockAttempts   int
	LockRetryDelay time.Duration
	CatalogFile    string

	AnnounceRole         string
	AnnounceTarget       string
	AnnounceWebhookToken string
	AnnounceVoices       string

	AllowedOrigin string

	RateLimitPerMinute        int
	RateLimitBurst            int
	StationRateLimitPerMinute int
	StationRateLimitBurst     int
}

func Load() Config {
	return Config{
		Port:         readString("PORT", "8080"),
		RealtimePort: readString("REALTIME_PORT", "8085"),

		KVBackend:     strings.ToLower(readString("KV_BACKEND", BackendMemory)),
		RedisAddr:     readString("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       readInt("REDIS_DB", 0),
		DatabaseURL:   os.Getenv("DB_DSN"),
		SweepInterval: readDurationSeconds("KV_SWEEP_SECONDS", 60),

		BusTransport: strings.ToLower(readString("BUS_TRANSPORT", TransportMemory)),
		BusFallback:  strings.ToLower(readString("BUS_FALLBACK", TransportStorage)),
		KafkaBrokers: readList("KAFKA_BROKERS"),
		KafkaTopic:   readString("KAFKA_TOPIC", "senha-system-channel"),
		StoragePoll:  readDurationMillis("STORAGE_POLL_MS", 100),

		Timezone:       os.Getenv("QUEUE_TIMEZONE"),
		LockTTL:        readDurationMillis("QUEUE_LOCK_TTL_MS", 5000),
		LockAttempts:   readInt("QUEUE_LOCK_ATTEMPTS", 20),
		LockRetryDelay: readDurationMillis("QUEUE_LOCK_RETRY_MS", 50),
		CatalogFile:    os.Getenv("CATALOG_FILE"),

		AnnounceRole:         strings.ToLower(readString("ANNOUNCE_ROLE", "display")),
		AnnounceTarget:       readString("ANNOUNCE_WEBHOOK_URL", "log"),
		AnnounceWebhookToken: os.Getenv("ANNOUNCE_WEBHOOK_TOKEN"),
		AnnounceVoices:       os.Getenv("ANNOUNCE_VOICES"),

		AllowedOrigin: os.Getenv("ORIGIN"),

		RateLimitPerMinute:        readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:            readInt("RATE_LIMIT_BURST", 30),
		StationRateLimitPerMinute: readInt("STATION_RATE_LIMIT_PER_MIN", 60),
		StationRateLimitBurst:     readInt("STATION_RATE_LIMIT_BURST", 10),
	}
}

// Location resolves Timezone, falling back to the host zone.
func (c Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func readString(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func readList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var values []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	return values
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readDurationMillis(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Millisecond
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
