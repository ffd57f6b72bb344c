// Package membus is an in-process publish/subscribe bus with MQTT-style topic
// matching. Every Client attached to the same Broker sees every publication.
package membus

import (
	"context"
	"errors"
	"sync"

	"github.com/baderanaas/hushmesh/pkg/overlay"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("hushmesh/membus")

// DefaultBufferSize is the per-subscription channel capacity.
const DefaultBufferSize = 256

// ErrClosed is returned by operations on a closed client.
var ErrClosed = errors.New("membus: client closed")

// ErrNotConnected is returned by Subscribe and Publish before Connect.
var ErrNotConnected = errors.New("membus: client not connected")

type subscription struct {
	pattern string
	ch      chan overlay.Event
}

// Broker fans publications out to matching subscriptions.
type Broker struct {
	bufferSize int

	subs map[*subscription]struct{}
	lock sync.RWMutex
}

// NewBroker creates a broker whose subscriptions buffer bufferSize events.
// A subscriber that falls that far behind loses events.
func NewBroker(bufferSize int) *Broker {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Broker{
		bufferSize: bufferSize,
		subs:       make(map[*subscription]struct{}),
	}
}

// Client returns a new transport attached to the broker.
func (b *Broker) Client() *Client {
	return &Client{broker: b, done: make(chan struct{})}
}

func (b *Broker) publish(topic string, payload []byte) {
	b.lock.RLock()
	defer b.lock.RUnlock()
	for sub := range b.subs {
		if !overlay.MatchTopic(sub.pattern, topic) {
			continue
		}
		ev := overlay.Event{Topic: topic, Payload: append([]byte(nil), payload...)}
		select {
		case sub.ch <- ev:
		default:
			log.Warnw("subscriber too slow, dropping event", "pattern", sub.pattern, "topic", topic)
		}
	}
}

func (b *Broker) add(sub *subscription) {
	b.lock.Lock()
	b.subs[sub] = struct{}{}
	b.lock.Unlock()
}

// remove detaches sub and closes its channel. It is a no-op for detached subs.
func (b *Broker) remove(sub *subscription) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub.ch)
}

// Client is one node's connection to a Broker. It implements overlay.Transport.
type Client struct {
	broker *Broker

	connected bool
	closed    bool
	subs      []*subscription
	done      chan struct{}
	lock      sync.Mutex
}

var _ overlay.Transport = (*Client)(nil)

// Connect marks the client usable. The address is ignored.
func (c *Client) Connect(ctx context.Context, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.connected = true
	return nil
}

// Subscribe registers pattern. The channel closes when ctx is done or the client closes.
func (c *Client) Subscribe(ctx context.Context, pattern string) (<-chan overlay.Event, error) {
	if err := overlay.ValidatePattern(pattern); err != nil {
		return nil, err
	}
	c.lock.Lock()
	if err := c.usable(); err != nil {
		c.lock.Unlock()
		return nil, err
	}
	sub := &subscription{pattern: pattern, ch: make(chan overlay.Event, c.broker.bufferSize)}
	c.subs = append(c.subs, sub)
	c.broker.add(sub)
	done := c.done
	c.lock.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		c.broker.remove(sub)
	}()
	return sub.ch, nil
}

// Publish delivers payload to every matching subscription on the broker, including
// the client's own.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.lock.Lock()
	err := c.usable()
	c.lock.Unlock()
	if err != nil {
		return err
	}
	c.broker.publish(topic, payload)
	return nil
}

// Close detaches every subscription of the client.
func (c *Client) Close() error {
	c.lock.Lock()
	if c.closed {
		c.lock.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	subs := c.subs
	c.subs = nil
	c.lock.Unlock()

	for _, sub := range subs {
		c.broker.remove(sub)
	}
	return nil
}

func (c *Client) usable() error {
	if c.closed {
		return ErrClosed
	}
	if !c.connected {
		return ErrNotConnected
	}
	return nil
}
