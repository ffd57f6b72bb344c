package overlay

import "context"

// Event is one message delivered by the bus.
type Event struct {
	Topic   string
	Payload []byte
}

// Transport is the publish/subscribe bus the overlay runs on. Connection management,
// retries and delivery guarantees belong to the implementation.
type Transport interface {
	// Connect joins the bus, optionally dialing addr. It returns once the bus is usable.
	Connect(ctx context.Context, addr string) error

	// Subscribe delivers events whose topic matches pattern ("+" matches one level,
	// a trailing "#" any number of levels). The channel is closed when ctx is done
	// or the transport closes.
	Subscribe(ctx context.Context, pattern string) (<-chan Event, error)

	// Publish sends payload on topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Close releases the transport.
	Close() error
}
