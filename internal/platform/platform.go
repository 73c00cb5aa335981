// Package platform opens the shared medium and the event bus selected by
// configuration and builds the queue engine on top of them.
package platform

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"qms/ticketing/internal/bus"
	"qms/ticketing/internal/bus/transport/kafka"
	"qms/ticketing/internal/bus/transport/memory"
	bustredis "qms/ticketing/internal/bus/transport/redis"
	"qms/ticketing/internal/bus/transport/storage"
	"qms/ticketing/internal/clock"
	"qms/ticketing/internal/config"
	"qms/ticketing/internal/kv"
	kvmemory "qms/ticketing/internal/kv/memory"
	kvpostgres "qms/ticketing/internal/kv/postgres"
	kvredis "qms/ticketing/internal/kv/redis"
	"qms/ticketing/internal/lease"
	"qms/ticketing/internal/queue"
	"qms/ticketing/internal/store/kvstore"
)

type Platform struct {
	Store   kv.Store
	Catalog *kvstore.Store
	Leases  *lease.Manager
	Bus     *bus.Bus
	Clock   clock.Clock

	redis   *goredis.Client
	closers []func()
	cancel  context.CancelFunc
}

// Open connects the configured medium and bus. The bus is started, so
// handlers registered afterwards see remote events.
func Open(ctx context.Context, cfg config.Config, name string) (*Platform, error) {
	p := &Platform{Clock: clock.Real()}
	runCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	if err := p.openStore(ctx, runCtx, cfg); err != nil {
		p.Close()
		return nil, err
	}
	p.Catalog = kvstore.NewStore(p.Store)
	p.Leases = lease.NewManager(p.Store, p.Clock)

	p.openBus(cfg, name)
	if err := p.Bus.Start(runCtx); err != nil {
		p.Close()
		return nil, fmt.Errorf("start bus: %w", err)
	}
	return p, nil
}

func (p *Platform) openStore(ctx, runCtx context.Context, cfg config.Config) error {
	switch cfg.KVBackend {
	case config.BackendMemory:
		p.Store = kvmemory.New(p.Clock)
		log.Printf("kv backend=memory, state is local to this process")
	case config.BackendRedis:
		st := kvredis.New(kvredis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err := st.Ping(ctx); err != nil {
			_ = st.Close()
			return fmt.Errorf("redis connect: %w", err)
		}
		p.Store = st
		p.redis = st.Client()
		p.closers = append(p.closers, func() { _ = st.Close() })
	case config.BackendPostgres:
		if cfg.DatabaseURL == "" {
			return errors.New("postgres backend requires DB_DSN")
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("db connect: %w", err)
		}
		p.closers = append(p.closers, pool.Close)
		st := kvpostgres.NewStore(pool)
		p.Store = st
		if cfg.SweepInterval > 0 {
			go sweep(runCtx, st, cfg.SweepInterval)
		}
	default:
		return fmt.Errorf("unknown kv backend %q", cfg.KVBackend)
	}
	return nil
}

// sweep removes expired rows left behind by lease and frame entries.
func sweep(ctx context.Context, st *kvpostgres.Store, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		sweepCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		count, err := st.Sweep(sweepCtx)
		cancel()
		if err != nil {
			log.Printf("kv sweep error: %v", err)
			continue
		}
		if count > 0 {
			log.Printf("kv sweep removed %d expired entries", count)
		}
	}
}

func (p *Platform) openBus(cfg config.Config, name string) {
	instance := uuid.NewString()

	// A transport that cannot be built leaves its slot empty; the bus then
	// relies on the other one, or on local delivery only.
	primary, err := p.transport(cfg.BusTransport, cfg, name, instance)
	if err != nil {
		log.Printf("bus primary unavailable transport=%s err=%v", cfg.BusTransport, err)
		primary = nil
	}
	fallback, err := p.transport(cfg.BusFallback, cfg, name, instance)
	if err != nil {
		log.Printf("bus fallback unavailable transport=%s err=%v", cfg.BusFallback, err)
		fallback = nil
	}
	p.Bus = bus.New(primary, fallback, bus.WithClock(p.Clock), bus.WithInstanceID(instance))
	p.closers = append(p.closers, func() { _ = p.Bus.Close() })
	log.Printf("bus instance=%s primary=%s fallback=%s", instance, cfg.BusTransport, cfg.BusFallback)
}

func (p *Platform) transport(kind string, cfg config.Config, name, instance string) (bus.Transport, error) {
	switch kind {
	case config.TransportNone, "":
		return nil, nil
	case config.TransportMemory:
		return memory.NewHub().Transport(), nil
	case config.TransportStorage:
		return storage.New(p.Store, p.Clock, cfg.StoragePoll), nil
	case config.TransportRedis:
		client := p.redis
		if client == nil {
			client = goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
			p.redis = client
			p.closers = append(p.closers, func() { _ = client.Close() })
		}
		return bustredis.New(client, bustredis.DefaultChannel), nil
	case config.TransportKafka:
		t, err := kafka.New(kafka.Options{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: name + "-" + instance,
		})
		if err != nil {
			return nil, err
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unknown bus transport %q", kind)
	}
}

// Engine builds a queue engine over the platform's medium and bus.
func (p *Platform) Engine(cfg config.Config) *queue.Engine {
	return queue.New(p.Catalog, p.Catalog, p.Bus, queue.Options{
		Clock:          p.Clock,
		Location:       cfg.Location(),
		Leases:         p.Leases,
		LockTTL:        cfg.LockTTL,
		LockAttempts:   cfg.LockAttempts,
		LockRetryDelay: cfg.LockRetryDelay,
	})
}

// Close stops background work and releases connections in reverse order.
func (p *Platform) Close() {
	if p.cancel != nil {
		p.cancel()
	}
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
	p.closers = nil
}
