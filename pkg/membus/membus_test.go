package membus

import (
	"context"
	"testing"
	"time"

	"github.com/baderanaas/hushmesh/pkg/overlay"
	"github.com/stretchr/testify/require"
)

func newConnectedClient(t *testing.T, b *Broker) *Client {
	c := b.Client()
	require.NoError(t, c.Connect(context.Background(), ""))
	t.Cleanup(func() { require.NoError(t, c.Close()) })
	return c
}

func receive(t *testing.T, ch <-chan overlay.Event) overlay.Event {
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return overlay.Event{}
	}
}

func requireNoEvent(t *testing.T, ch <-chan overlay.Event) {
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event on %q", ev.Topic)
	default:
	}
}

func TestPublishMatchesWildcards(t *testing.T) {
	ctx := context.Background()
	b := NewBroker(0)
	alice := newConnectedClient(t, b)
	bob := newConnectedClient(t, b)

	inbox, err := bob.Subscribe(ctx, "hush/message/bob/#")
	require.NoError(t, err)
	announces, err := bob.Subscribe(ctx, "hush/announce/+")
	require.NoError(t, err)

	require.NoError(t, alice.Publish(ctx, "hush/message/bob/alice", []byte("ciphertext")))
	require.NoError(t, alice.Publish(ctx, "hush/message/carol/alice", []byte("not for bob")))
	require.NoError(t, alice.Publish(ctx, "hush/announce/alice", []byte("pem")))

	ev := receive(t, inbox)
	require.Equal(t, "hush/message/bob/alice", ev.Topic)
	require.Equal(t, []byte("ciphertext"), ev.Payload)
	requireNoEvent(t, inbox)

	ev = receive(t, announces)
	require.Equal(t, "hush/announce/alice", ev.Topic)
	requireNoEvent(t, announces)
}

func TestPublisherSeesOwnMessages(t *testing.T) {
	ctx := context.Background()
	c := newConnectedClient(t, NewBroker(0))
	ch, err := c.Subscribe(ctx, "hush/#")
	require.NoError(t, err)

	require.NoError(t, c.Publish(ctx, "hush/announce/me", []byte("x")))
	require.Equal(t, "hush/announce/me", receive(t, ch).Topic)
}

func TestPayloadIsCopied(t *testing.T) {
	ctx := context.Background()
	b := NewBroker(0)
	pub := newConnectedClient(t, b)
	sub := newConnectedClient(t, b)
	ch, err := sub.Subscribe(ctx, "hush/#")
	require.NoError(t, err)

	payload := []byte("original")
	require.NoError(t, pub.Publish(ctx, "hush/announce/a", payload))
	copy(payload, "mutated!")
	require.Equal(t, "original", string(receive(t, ch).Payload))
}

func TestSlowSubscriberDropsEvents(t *testing.T) {
	ctx := context.Background()
	b := NewBroker(2)
	c := newConnectedClient(t, b)
	ch, err := c.Subscribe(ctx, "hush/#")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, c.Publish(ctx, "hush/announce/a", []byte{byte(i)}))
	}
	require.Equal(t, []byte{0}, receive(t, ch).Payload)
	require.Equal(t, []byte{1}, receive(t, ch).Payload)
	requireNoEvent(t, ch)
}

func TestSubscriptionClosesWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := NewBroker(0)
	c := newConnectedClient(t, b)
	ch, err := c.Subscribe(ctx, "hush/#")
	require.NoError(t, err)

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}

func TestCloseEndsSubscriptions(t *testing.T) {
	ctx := context.Background()
	c := NewBroker(0).Client()
	require.NoError(t, c.Connect(ctx, ""))
	ch, err := c.Subscribe(ctx, "hush/#")
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	_, ok := <-ch
	require.False(t, ok)

	require.ErrorIs(t, c.Publish(ctx, "hush/announce/a", nil), ErrClosed)
	_, err = c.Subscribe(ctx, "hush/#")
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, c.Connect(ctx, ""), ErrClosed)
}

func TestRequiresConnect(t *testing.T) {
	ctx := context.Background()
	c := NewBroker(0).Client()
	defer c.Close()

	_, err := c.Subscribe(ctx, "hush/#")
	require.ErrorIs(t, err, ErrNotConnected)
	require.ErrorIs(t, c.Publish(ctx, "hush/announce/a", nil), ErrNotConnected)
}

func TestSubscribeRejectsInvalidPattern(t *testing.T) {
	c := newConnectedClient(t, NewBroker(0))
	_, err := c.Subscribe(context.Background(), "hush/#/message")
	require.ErrorIs(t, err, overlay.ErrInvalidPattern)
}
