package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"qms/ticketing/internal/clock"
	"qms/ticketing/internal/kv"
	"qms/ticketing/internal/kv/memory"
)

type flakyStore struct {
	kv.Store

	mu       sync.Mutex
	getFails int
}

func (f *flakyStore) Get(ctx context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	fail := f.getFails > 0
	if fail {
		f.getFails--
	}
	f.mu.Unlock()
	if fail {
		return "", false, errors.New("medium unavailable")
	}
	return f.Store.Get(ctx, key)
}

func TestReceiverDeliversEachFrameOnce(t *testing.T) {
	ctx := context.Background()
	fake := clock.NewFake(time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC))
	medium := memory.New(fake)
	tr := New(medium, fake, 0)

	if err := tr.Publish(ctx, []byte("before")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	var got []string
	r := NewReceiver(medium, func(frame []byte) { got = append(got, string(frame)) })
	if err := r.Prime(ctx); err != nil {
		t.Fatalf("prime: %v", err)
	}

	_ = tr.Publish(ctx, []byte("one"))
	_ = tr.Publish(ctx, []byte("two"))
	for i := 0; i < 3; i++ {
		if err := r.Poll(ctx); err != nil {
			t.Fatalf("poll: %v", err)
		}
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 deliveries, got %v", got)
	}
}

func TestFramesRemovedAfterLifetime(t *testing.T) {
	ctx := context.Background()
	fake := clock.NewFake(time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC))
	medium := memory.New(fake)
	tr := New(medium, fake, 0)

	_ = tr.Publish(ctx, []byte("frame"))
	if fake.Pending() != 1 {
		t.Fatalf("expected scheduled cleanup")
	}
	fake.Advance(Lifetime)

	keys, _ := medium.Keys(ctx, KeyPrefix)
	if len(keys) != 0 {
		t.Fatalf("frame still present after lifetime: %v", keys)
	}

	r := NewReceiver(medium, func([]byte) { t.Fatalf("expired frame delivered") })
	if err := r.Poll(ctx); err != nil {
		t.Fatalf("poll: %v", err)
	}
}

func TestSeenSetForgetsVanishedKeys(t *testing.T) {
	ctx := context.Background()
	fake := clock.NewFake(time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC))
	medium := memory.New(fake)
	tr := New(medium, fake, 0)

	r := NewReceiver(medium, func([]byte) {})
	_ = tr.Publish(ctx, []byte("frame"))
	_ = r.Poll(ctx)
	if len(r.seen) != 1 {
		t.Fatalf("expected one seen key")
	}
	fake.Advance(Lifetime)
	_ = r.Poll(ctx)
	if len(r.seen) != 0 {
		t.Fatalf("seen set not pruned: %v", r.seen)
	}
}

func TestReceiverRetriesFrameAfterReadError(t *testing.T) {
	ctx := context.Background()
	fake := clock.NewFake(time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC))
	medium := &flakyStore{Store: memory.New(fake)}
	tr := New(medium, fake, 0)

	var got []string
	r := NewReceiver(medium, func(frame []byte) { got = append(got, string(frame)) })
	if err := r.Prime(ctx); err != nil {
		t.Fatalf("prime: %v", err)
	}
	_ = tr.Publish(ctx, []byte("frame"))

	medium.getFails = 1
	if err := r.Poll(ctx); err == nil {
		t.Fatalf("expected read error")
	}
	if err := r.Poll(ctx); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(got) != 1 || got[0] != "frame" {
		t.Fatalf("expected the frame after recovery, got %v", got)
	}
}

func TestSubscribePollsOnClock(t *testing.T) {
	ctx := context.Background()
	fake := clock.NewFake(time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC))
	medium := memory.New(fake)
	tr := New(medium, fake, 100*time.Millisecond)
	defer tr.Close()

	delivered := make(chan string, 1)
	if err := tr.Subscribe(ctx, func(frame []byte) { delivered <- string(frame) }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	waitPending(t, fake, 1)

	if err := tr.Publish(ctx, []byte("frame")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case frame := <-delivered:
		t.Fatalf("delivered %q before the poll interval elapsed", frame)
	case <-time.After(20 * time.Millisecond):
	}

	fake.Advance(100 * time.Millisecond)
	select {
	case frame := <-delivered:
		if frame != "frame" {
			t.Fatalf("unexpected frame %q", frame)
		}
	case <-time.After(time.Second):
		t.Fatalf("frame not delivered after advancing the clock")
	}
}

// waitPending waits for the poll loop to schedule its next tick.
func waitPending(t *testing.T, fake *clock.Fake, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for fake.Pending() < n {
		if time.Now().After(deadline) {
			t.Fatalf("poll loop never scheduled a tick")
		}
		time.Sleep(time.Millisecond)
	}
}
