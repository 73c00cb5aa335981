// Package memory is an in-process Transport: every Transport taken from the
// same Hub sees every frame published on it.
package memory

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("memory transport closed")

type Hub struct {
	mu      sync.RWMutex
	nextID  int
	members map[int]func([]byte)
}

func NewHub() *Hub {
	return &Hub{members: make(map[int]func([]byte))}
}

func (h *Hub) register(deliver func([]byte)) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	h.members[h.nextID] = deliver
	return h.nextID
}

func (h *Hub) unregister(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.members, id)
}

func (h *Hub) broadcast(frame []byte) {
	h.mu.RLock()
	targets := make([]func([]byte), 0, len(h.members))
	for _, deliver := range h.members {
		targets = append(targets, deliver)
	}
	h.mu.RUnlock()

	for _, deliver := range targets {
		deliver(append([]byte(nil), frame...))
	}
}

// Transport returns a new endpoint on the hub, one per context.
func (h *Hub) Transport() *Transport {
	return &Transport{hub: h}
}

type Transport struct {
	hub *Hub

	mu     sync.Mutex
	ids    []int
	closed bool
}

func (t *Transport) Name() string { return "memory" }

func (t *Transport) Publish(_ context.Context, frame []byte) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return ErrClosed
	}
	t.hub.broadcast(frame)
	return nil
}

func (t *Transport) Subscribe(ctx context.Context, deliver func([]byte)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	id := t.hub.register(deliver)
	t.ids = append(t.ids, id)
	go func() {
		<-ctx.Done()
		t.hub.unregister(id)
	}()
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for _, id := range t.ids {
		t.hub.unregister(id)
	}
	t.ids = nil
	return nil
}
