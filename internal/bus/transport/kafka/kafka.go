// Package kafka fans frames out over a Kafka topic. Every context reads with
// its own consumer group so that each one sees every frame.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

const DefaultTopic = "senha-system-channel"

type Options struct {
	Brokers []string
	Topic   string
	// GroupID must be unique per context.
	GroupID string
}

type Transport struct {
	opts   Options
	writer *kafka.Writer

	mu      sync.Mutex
	readers []*kafka.Reader
	wg      sync.WaitGroup
}

func New(opts Options) (*Transport, error) {
	if len(opts.Brokers) == 0 {
		return nil, errors.New("kafka transport: no brokers")
	}
	if opts.Topic == "" {
		opts.Topic = DefaultTopic
	}
	if opts.GroupID == "" {
		return nil, errors.New("kafka transport: group id required")
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(opts.Brokers...),
		Topic:                  opts.Topic,
		Balancer:               &kafka.LeastBytes{},
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &Transport{opts: opts, writer: writer}, nil
}

func (t *Transport) Name() string { return "kafka" }

func (t *Transport) Publish(ctx context.Context, frame []byte) error {
	msg := kafka.Message{Value: frame, Time: time.Now()}
	if err := t.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", t.opts.Topic, err)
	}
	return nil
}

// Subscribe reads until ctx is done or the reader is closed (io.EOF). It
// reads from the latest offset; frames written before the context
// joined are never replayed.
func (t *Transport) Subscribe(ctx context.Context, deliver func([]byte)) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     t.opts.Brokers,
		Topic:       t.opts.Topic,
		GroupID:     t.opts.GroupID,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    1e6,
		MaxWait:     100 * time.Millisecond,
	})

	t.mu.Lock()
	t.readers = append(t.readers, reader)
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			msg, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() == nil && !errors.Is(err, io.EOF) {
					log.Printf("bus read failed transport=kafka topic=%s err=%v", t.opts.Topic, err)
				}
				return
			}
			deliver(msg.Value)
		}
	}()
	log.Printf("bus transport subscribed transport=kafka topic=%s group=%s", t.opts.Topic, t.opts.GroupID)
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	readers := t.readers
	t.readers = nil
	t.mu.Unlock()

	var errs []error
	for _, r := range readers {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	t.wg.Wait()
	if err := t.writer.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
