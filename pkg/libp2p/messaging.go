package libp2p

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/baderanaas/hushmesh/pkg/overlay"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/peer"
)

type subscriber struct {
	pattern string
	ch      chan overlay.Event
}

// namespaceTopic is the GossipSub topic carrying every overlay topic of one namespace.
type namespaceTopic struct {
	name  string
	topic *pubsub.Topic
	sub   *pubsub.Subscription

	subscribers    map[*subscriber]struct{}
	subscribersMux sync.RWMutex
	closed         bool
}

// Subscribe delivers the overlay events matching pattern. The pattern's first level
// must be a literal namespace; it selects the GossipSub topic to join.
func (b *Bus) Subscribe(ctx context.Context, pattern string) (<-chan overlay.Event, error) {
	if err := overlay.ValidatePattern(pattern); err != nil {
		return nil, err
	}
	root := overlay.PatternRoot(pattern)
	if root == "" {
		return nil, fmt.Errorf("%w: %q has no namespace level", overlay.ErrInvalidPattern, pattern)
	}

	t, err := b.joinTopic(root)
	if err != nil {
		return nil, err
	}
	s := &subscriber{pattern: pattern, ch: make(chan overlay.Event, b.cfg.BufferSize)}
	if !t.add(s) {
		return nil, fmt.Errorf("topic %s closed", root)
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-b.ctx.Done():
		}
		t.remove(s)
	}()
	return s.ch, nil
}

// Publish wraps payload in an envelope and publishes it on the namespace's GossipSub topic.
func (b *Bus) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := validateTopic(topic); err != nil {
		return err
	}
	t, err := b.joinTopic(topicRoot(topic))
	if err != nil {
		return err
	}

	data, err := json.Marshal(Envelope{Topic: topic, Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.PublishTimeout)
	defer cancel()
	if err := t.topic.Publish(ctx, data); err != nil {
		return fmt.Errorf("failed to publish on %s: %w", t.name, err)
	}
	return nil
}

// joinTopic returns the GossipSub topic for namespace, joining it on first use.
func (b *Bus) joinTopic(namespace string) (*namespaceTopic, error) {
	b.topicsMux.Lock()
	defer b.topicsMux.Unlock()

	if err := b.ctx.Err(); err != nil {
		return nil, fmt.Errorf("bus closed: %w", err)
	}
	if t, exists := b.topics[namespace]; exists {
		return t, nil
	}

	validator := func(_ context.Context, _ peer.ID, msg *pubsub.Message) bool {
		_, err := decodeEnvelope(namespace, msg.GetData())
		return err == nil
	}
	if err := b.pubsub.RegisterTopicValidator(namespace, validator); err != nil {
		return nil, fmt.Errorf("failed to register validator: %w", err)
	}

	topic, err := b.pubsub.Join(namespace)
	if err != nil {
		_ = b.pubsub.UnregisterTopicValidator(namespace)
		return nil, fmt.Errorf("failed to join pubsub topic: %w", err)
	}

	sub, err := topic.Subscribe()
	if err != nil {
		_ = topic.Close()
		_ = b.pubsub.UnregisterTopicValidator(namespace)
		return nil, fmt.Errorf("failed to subscribe to pubsub topic: %w", err)
	}

	t := &namespaceTopic{
		name:        namespace,
		topic:       topic,
		sub:         sub,
		subscribers: make(map[*subscriber]struct{}),
	}
	b.topics[namespace] = t

	go b.handlePubSubMessages(t)
	go b.advertiseNamespace(namespace)

	log.Infow("joined namespace topic", "namespace", namespace)
	return t, nil
}

// handlePubSubMessages fans envelopes received on t out to matching subscribers.
// Validation already rejected envelopes that do not decode.
func (b *Bus) handlePubSubMessages(t *namespaceTopic) {
	for {
		msg, err := t.sub.Next(b.ctx)
		if err != nil {
			if b.ctx.Err() == nil && !errors.Is(err, pubsub.ErrSubscriptionCancelled) {
				log.Warnw("pubsub subscription ended", "namespace", t.name, "error", err)
			}
			t.closeSubscribers()
			return
		}

		env, err := decodeEnvelope(t.name, msg.GetData())
		if err != nil {
			continue
		}
		t.dispatch(overlay.Event{Topic: env.Topic, Payload: env.Payload})
	}
}

func (t *namespaceTopic) dispatch(ev overlay.Event) {
	t.subscribersMux.RLock()
	defer t.subscribersMux.RUnlock()
	for s := range t.subscribers {
		if !overlay.MatchTopic(s.pattern, ev.Topic) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			log.Warnw("subscriber too slow, dropping event", "pattern", s.pattern, "topic", ev.Topic)
		}
	}
}

func (t *namespaceTopic) add(s *subscriber) bool {
	t.subscribersMux.Lock()
	defer t.subscribersMux.Unlock()
	if t.closed {
		return false
	}
	t.subscribers[s] = struct{}{}
	return true
}

func (t *namespaceTopic) remove(s *subscriber) {
	t.subscribersMux.Lock()
	defer t.subscribersMux.Unlock()
	if _, ok := t.subscribers[s]; !ok {
		return
	}
	delete(t.subscribers, s)
	close(s.ch)
}

func (t *namespaceTopic) closeSubscribers() {
	t.subscribersMux.Lock()
	defer t.subscribersMux.Unlock()
	t.closed = true
	for s := range t.subscribers {
		delete(t.subscribers, s)
		close(s.ch)
	}
}

func (t *namespaceTopic) close() error {
	t.sub.Cancel()
	t.closeSubscribers()
	return t.topic.Close()
}
