package messaging

import "context"

// Broker publishes domain events drained from the outbox to downstream
// consumers.
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}
