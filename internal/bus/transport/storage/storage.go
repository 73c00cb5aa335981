// Package storage fans frames out through the shared medium: each frame is
// written under a unique short-lived key and receivers poll for new keys.
package storage

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"qms/ticketing/internal/clock"
	"qms/ticketing/internal/kv"
)

const (
	KeyPrefix = "senha-event-"

	// Lifetime bounds how long a frame stays in the medium.
	Lifetime = 500 * time.Millisecond

	DefaultPollInterval = 100 * time.Millisecond
)

type Transport struct {
	store    kv.Store
	clock    clock.Clock
	interval time.Duration

	mu      sync.Mutex
	cancels []context.CancelFunc
	wg      sync.WaitGroup
}

func New(store kv.Store, c clock.Clock, interval time.Duration) *Transport {
	if c == nil {
		c = clock.Real()
	}
	if interval <= 0 || interval >= Lifetime {
		interval = DefaultPollInterval
	}
	return &Transport{store: store, clock: c, interval: interval}
}

func (t *Transport) Name() string { return "storage" }

// Publish writes the frame and schedules its removal after Lifetime, for
// media that do not expire keys on their own.
func (t *Transport) Publish(ctx context.Context, frame []byte) error {
	key := KeyPrefix + strconv.FormatInt(t.clock.Now().UnixMilli(), 10) + "-" + uuid.NewString()
	if err := t.store.Set(ctx, key, string(frame), Lifetime); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	t.clock.AfterFunc(Lifetime, func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = t.store.Delete(cleanupCtx, key)
	})
	return nil
}

// Subscribe ignores frames already present and polls for new ones.
func (t *Transport) Subscribe(ctx context.Context, deliver func([]byte)) error {
	r := NewReceiver(t.store, deliver)
	if err := r.Prime(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancels = append(t.cancels, cancel)
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			tick := make(chan struct{})
			timer := t.clock.AfterFunc(t.interval, func() { close(tick) })
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-tick:
			}
			if err := r.Poll(ctx); err != nil && ctx.Err() == nil {
				log.Printf("bus poll failed transport=storage err=%v", err)
			}
		}
	}()
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	for _, cancel := range t.cancels {
		cancel()
	}
	t.cancels = nil
	t.mu.Unlock()
	t.wg.Wait()
	return nil
}

// Receiver delivers each event key once. Keys that vanished from the medium
// are forgotten, so its memory is bounded by the frames alive at a time.
type Receiver struct {
	store   kv.Store
	deliver func([]byte)
	seen    map[string]struct{}
}

func NewReceiver(store kv.Store, deliver func([]byte)) *Receiver {
	return &Receiver{store: store, deliver: deliver, seen: make(map[string]struct{})}
}

// Prime marks every current key as seen without delivering it.
func (r *Receiver) Prime(ctx context.Context) error {
	keys, err := r.store.Keys(ctx, KeyPrefix)
	if err != nil {
		return fmt.Errorf("list %s: %w", KeyPrefix, err)
	}
	for _, key := range keys {
		r.seen[key] = struct{}{}
	}
	return nil
}

func (r *Receiver) Poll(ctx context.Context) error {
	keys, err := r.store.Keys(ctx, KeyPrefix)
	if err != nil {
		return fmt.Errorf("list %s: %w", KeyPrefix, err)
	}
	current := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		current[key] = struct{}{}
		if _, ok := r.seen[key]; ok {
			continue
		}
		// A failed read leaves the key unseen so the next poll retries it.
		value, found, err := r.store.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("read %s: %w", key, err)
		}
		r.seen[key] = struct{}{}
		if !found {
			continue
		}
		r.deliver([]byte(value))
	}
	for key := range r.seen {
		if _, ok := current[key]; !ok {
			delete(r.seen, key)
		}
	}
	return nil
}
