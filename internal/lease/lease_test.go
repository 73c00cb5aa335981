package lease

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"qms/ticketing/internal/clock"
	"qms/ticketing/internal/kv/memory"
)

func newTestManager() (*Manager, *memory.Store, *clock.Fake) {
	fake := clock.NewFake(time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC))
	store := memory.New(fake)
	return NewManager(store, fake), store, fake
}

func TestAcquireIsExclusiveUntilTTL(t *testing.T) {
	ctx := context.Background()
	m, _, fake := newTestManager()

	first, ok, err := m.Acquire(ctx, "audio-lock-t1", 2*time.Second)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := m.Acquire(ctx, "audio-lock-t1", 2*time.Second); ok {
		t.Fatalf("second acquire succeeded while the first was live")
	}

	fake.Advance(1999 * time.Millisecond)
	if _, ok, _ := m.Acquire(ctx, "audio-lock-t1", 2*time.Second); ok {
		t.Fatalf("acquire succeeded before ttl elapsed")
	}

	fake.Advance(time.Millisecond)
	second, ok, err := m.Acquire(ctx, "audio-lock-t1", 2*time.Second)
	if err != nil || !ok {
		t.Fatalf("acquire after ttl: ok=%v err=%v", ok, err)
	}
	if second.AcquiredAt().Sub(first.AcquiredAt()) != 2*time.Second {
		t.Fatalf("unexpected acquisition times %v %v", first.AcquiredAt(), second.AcquiredAt())
	}
}

func TestStaleValueIsTakenOver(t *testing.T) {
	ctx := context.Background()
	m, store, fake := newTestManager()

	// Written by a context that never set a backend expiry.
	old := strconv.FormatInt(fake.Now().Add(-5*time.Second).UnixMilli(), 10)
	if err := store.Set(ctx, "audio-lock-t2", old, 0); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if held, _, _ := m.Held(ctx, "audio-lock-t2", 2*time.Second); held {
		t.Fatalf("stale claim reported as held")
	}
	if _, ok, err := m.Acquire(ctx, "audio-lock-t2", 2*time.Second); err != nil || !ok {
		t.Fatalf("take over: ok=%v err=%v", ok, err)
	}
}

func TestUnparsableValueIsNotLive(t *testing.T) {
	ctx := context.Background()
	m, store, _ := newTestManager()
	_ = store.Set(ctx, "audio-lock-t3", "garbage", 0)

	if _, ok, err := m.Acquire(ctx, "audio-lock-t3", time.Second); err != nil || !ok {
		t.Fatalf("acquire over garbage: ok=%v err=%v", ok, err)
	}
}

func TestHeldReportsAge(t *testing.T) {
	ctx := context.Background()
	m, _, fake := newTestManager()

	if held, _, _ := m.Held(ctx, "k", time.Second); held {
		t.Fatalf("absent key reported as held")
	}
	if _, ok, _ := m.Acquire(ctx, "k", 2*time.Second); !ok {
		t.Fatalf("acquire failed")
	}
	fake.Advance(700 * time.Millisecond)
	held, age, err := m.Held(ctx, "k", 2*time.Second)
	if err != nil || !held || age != 700*time.Millisecond {
		t.Fatalf("held=%v age=%v err=%v", held, age, err)
	}
}

func TestReleaseKeepsSuccessorClaim(t *testing.T) {
	ctx := context.Background()
	m, store, fake := newTestManager()

	first, _, _ := m.Acquire(ctx, "k", time.Second)
	fake.Advance(time.Second)
	if _, ok, _ := m.Acquire(ctx, "k", time.Second); !ok {
		t.Fatalf("successor acquire failed")
	}
	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, found, _ := store.Get(ctx, "k"); !found {
		t.Fatalf("release removed the successor's claim")
	}
}

func TestReleaseAfterRunsOnClock(t *testing.T) {
	ctx := context.Background()
	m, store, fake := newTestManager()

	l, _, _ := m.Acquire(ctx, "k", 0)
	l.ReleaseAfter(2 * time.Second)
	if fake.Pending() != 1 {
		t.Fatalf("expected a scheduled release")
	}
	fake.Advance(1999 * time.Millisecond)
	if _, found, _ := store.Get(ctx, "k"); !found {
		t.Fatalf("released too early")
	}
	fake.Advance(time.Millisecond)
	if _, found, _ := store.Get(ctx, "k"); found {
		t.Fatalf("claim not released after 2s")
	}
}

func TestRenew(t *testing.T) {
	ctx := context.Background()
	m, _, fake := newTestManager()

	l, _, _ := m.Acquire(ctx, "k", time.Second)
	fake.Advance(800 * time.Millisecond)
	if err := l.Renew(ctx); err != nil {
		t.Fatalf("renew: %v", err)
	}
	fake.Advance(800 * time.Millisecond)
	if held, _, _ := m.Held(ctx, "k", time.Second); !held {
		t.Fatalf("renewed claim not held")
	}

	fake.Advance(2 * time.Second)
	if _, ok, _ := m.Acquire(ctx, "k", time.Second); !ok {
		t.Fatalf("takeover failed")
	}
	if err := l.Renew(ctx); !errors.Is(err, ErrLost) {
		t.Fatalf("expected ErrLost, got %v", err)
	}
}
