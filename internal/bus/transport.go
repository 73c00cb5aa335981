package bus

import "context"

// Transport fans frames out to every other context. Publish must not block
// on slow receivers. Subscribe starts delivering frames in the background
// until ctx is done or the transport is closed.
type Transport interface {
	Name() string
	Publish(ctx context.Context, frame []byte) error
	Subscribe(ctx context.Context, deliver func(frame []byte)) error
	Close() error
}
