// Package redis fans frames out over a Redis pub/sub channel.
package redis

import (
	"context"
	"fmt"
	"log"
	"sync"

	goredis "github.com/redis/go-redis/v9"
)

const DefaultChannel = "senha-system-channel"

type Transport struct {
	client  *goredis.Client
	channel string

	mu   sync.Mutex
	subs []*goredis.PubSub
}

func New(client *goredis.Client, channel string) *Transport {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Transport{client: client, channel: channel}
}

func (t *Transport) Name() string { return "redis" }

func (t *Transport) Publish(ctx context.Context, frame []byte) error {
	if err := t.client.Publish(ctx, t.channel, frame).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", t.channel, err)
	}
	return nil
}

func (t *Transport) Subscribe(ctx context.Context, deliver func([]byte)) error {
	pubsub := t.client.Subscribe(ctx, t.channel)
	// Wait for the subscription confirmation so that a broken server is
	// reported here instead of in the receive loop.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", t.channel, err)
	}

	t.mu.Lock()
	t.subs = append(t.subs, pubsub)
	t.mu.Unlock()

	go func() {
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				deliver([]byte(msg.Payload))
			}
		}
	}()
	log.Printf("bus transport subscribed transport=redis channel=%s", t.channel)
	return nil
}

// Close stops the subscriptions. The client belongs to the caller.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var firstErr error
	for _, sub := range t.subs {
		if err := sub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	t.subs = nil
	return firstErr
}
