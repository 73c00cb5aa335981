// Package lease implements TTL-bound claims on keys of the shared medium.
//
// A claim stores the acquisition time in unix milliseconds. A claim whose age
// has reached its ttl is stale: it no longer excludes anyone, even when the
// backend has not expired the key yet. Contexts are assumed to have clocks
// close enough that a ttl comfortably outlives the skew between them.
package lease

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"qms/ticketing/internal/clock"
	"qms/ticketing/internal/kv"
)

type Manager struct {
	store kv.Store
	clock clock.Clock
}

func NewManager(store kv.Store, c clock.Clock) *Manager {
	if c == nil {
		c = clock.Real()
	}
	return &Manager{store: store, clock: c}
}

// Lease is a claim held by this context.
type Lease struct {
	manager    *Manager
	key        string
	value      string
	ttl        time.Duration
	acquiredAt time.Time
}

func (l *Lease) Key() string           { return l.key }
func (l *Lease) AcquiredAt() time.Time { return l.acquiredAt }

// Acquire claims key unless another live claim exists. Losing is reported as
// ok=false with a nil error.
func (m *Manager) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, bool, error) {
	now := m.clock.Now()
	value := stamp(now)

	ok, err := m.store.SetNX(ctx, key, value, ttl)
	if err != nil {
		return nil, false, fmt.Errorf("acquire %s: %w", key, err)
	}
	if ok {
		return m.newLease(key, value, ttl, now), true, nil
	}

	current, found, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !found {
		// Expired between SetNX and Get.
		ok, err = m.store.SetNX(ctx, key, value, ttl)
		if err != nil || !ok {
			return nil, false, err
		}
		return m.newLease(key, value, ttl, now), true, nil
	}
	if live(current, now, ttl) {
		return nil, false, nil
	}

	ok, err = m.store.CompareAndSwap(ctx, key, current, value, ttl)
	if err != nil {
		return nil, false, fmt.Errorf("take over %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return m.newLease(key, value, ttl, now), true, nil
}

// Held reports whether someone holds a live claim on key and how old it is.
func (m *Manager) Held(ctx context.Context, key string, ttl time.Duration) (bool, time.Duration, error) {
	current, found, err := m.store.Get(ctx, key)
	if err != nil {
		return false, 0, fmt.Errorf("inspect %s: %w", key, err)
	}
	if !found {
		return false, 0, nil
	}
	acquired, ok := parseStamp(current)
	if !ok {
		return false, 0, nil
	}
	age := m.clock.Now().Sub(acquired)
	return age < ttl, age, nil
}

func (m *Manager) newLease(key, value string, ttl time.Duration, now time.Time) *Lease {
	return &Lease{manager: m, key: key, value: value, ttl: ttl, acquiredAt: now}
}

// Renew restamps the claim, extending it by a full ttl. It fails with
// ErrLost when the claim was taken over.
func (l *Lease) Renew(ctx context.Context) error {
	now := l.manager.clock.Now()
	value := stamp(now)
	if value == l.value {
		value = stamp(now.Add(time.Millisecond))
	}
	ok, err := l.manager.store.CompareAndSwap(ctx, l.key, l.value, value, l.ttl)
	if err != nil {
		return fmt.Errorf("renew %s: %w", l.key, err)
	}
	if !ok {
		return ErrLost
	}
	l.value = value
	l.acquiredAt = now
	return nil
}

// Release removes the claim if it is still ours. A successor's claim is
// never removed.
func (l *Lease) Release(ctx context.Context) error {
	if _, err := l.manager.store.CompareAndDelete(ctx, l.key, l.value); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}

// ReleaseAfter schedules Release once d has elapsed on the manager's clock.
func (l *Lease) ReleaseAfter(d time.Duration) *clock.Timer {
	return l.manager.clock.AfterFunc(d, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.Release(ctx)
	})
}

func stamp(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseStamp(value string) (time.Time, bool) {
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

func live(value string, now time.Time, ttl time.Duration) bool {
	acquired, ok := parseStamp(value)
	if !ok {
		return false
	}
	return now.Sub(acquired) < ttl
}
