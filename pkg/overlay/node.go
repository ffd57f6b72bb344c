package overlay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/baderanaas/hushmesh/pkg/crypto"
	"github.com/google/uuid"
)

// State is a node's position in its startup sequence.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAnnouncing
	StateReady
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAnnouncing:
		return "announcing"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Node is one participant of the overlay. It owns its key pair, peer directory and
// inbox; a single goroutine applies bus events to them while SendTo, Broadcast and
// inbox drains run concurrently from callers.
type Node struct {
	cfg       Config
	transport Transport
	codec     *crypto.Codec
	directory *PeerDirectory
	inbox     *MessageInbox

	state atomic.Int32

	mu      sync.Mutex
	keys    *crypto.KeyPair
	started bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewNode creates a disconnected node on transport.
func NewNode(cfg Config, transport Transport) (*Node, error) {
	if transport == nil {
		return nil, fmt.Errorf("%w: transport is required", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	codec, err := crypto.NewCodec(crypto.DefaultKeyCacheSize)
	if err != nil {
		return nil, err
	}
	return &Node{
		cfg:       cfg,
		transport: transport,
		codec:     codec,
		directory: newPeerDirectory(cfg.Clock),
		inbox:     NewMessageInbox(),
	}, nil
}

// Start loads or generates the key pair, joins the bus, subscribes to the node's
// inbox and the announce topic and announces the node's public key. Key errors
// (*crypto.KeyLoadError, *crypto.KeyPersistError) and bus errors abort startup.
func (n *Node) Start(ctx context.Context) (err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ErrNodeClosed
	}
	if n.started {
		return ErrAlreadyStarted
	}

	var keyOpts []crypto.Option
	if n.cfg.KeyBits > 0 {
		keyOpts = append(keyOpts, crypto.WithKeyBits(n.cfg.KeyBits))
	}
	keys, err := crypto.LoadOrGenerate(n.cfg.KeyDir, n.cfg.Passphrase, keyOpts...)
	if err != nil {
		return err
	}
	if _, err := keys.Unlock(); err != nil {
		return err
	}
	n.keys = keys

	loopCtx, cancel := context.WithCancel(context.Background())
	defer func() {
		if err != nil {
			cancel()
			n.setState(StateDisconnected)
		}
	}()

	n.setState(StateConnecting)
	if err := n.transport.Connect(ctx, n.cfg.BrokerAddress); err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}

	n.setState(StateAnnouncing)
	inbound, err := n.transport.Subscribe(loopCtx, InboxPattern(n.cfg.Namespace, n.cfg.Name))
	if err != nil {
		return fmt.Errorf("failed to subscribe to inbox: %w", err)
	}
	announces, err := n.transport.Subscribe(loopCtx, AnnouncePattern(n.cfg.Namespace))
	if err != nil {
		return fmt.Errorf("failed to subscribe to announces: %w", err)
	}
	if err := n.announce(ctx); err != nil {
		return err
	}

	n.started = true
	n.cancel = cancel
	n.done = make(chan struct{})
	n.setState(StateReady)
	go n.run(loopCtx, inbound, announces)

	log.Infow("node ready", "name", n.cfg.Name, "namespace", n.cfg.Namespace, "fingerprint", keys.Fingerprint())
	return nil
}

// run is the single consumer of bus events.
func (n *Node) run(ctx context.Context, inbound, announces <-chan Event) {
	defer close(n.done)

	var tick <-chan time.Time
	if n.cfg.AnnounceInterval > 0 {
		ticker := n.cfg.Clock.Ticker(n.cfg.AnnounceInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for inbound != nil || announces != nil {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-inbound:
			if !ok {
				inbound = nil
				continue
			}
			n.handleEvent(ctx, ev)
		case ev, ok := <-announces:
			if !ok {
				announces = nil
				continue
			}
			n.handleEvent(ctx, ev)
		case <-tick:
			n.reannounce(ctx)
		}
	}
	log.Warnw("bus subscriptions closed", "name", n.cfg.Name)
	n.setState(StateDisconnected)
}

// handleEvent routes one bus event. Nothing here returns an error: foreign or
// malformed traffic is expected on a shared bus and undecryptable messages are dropped.
func (n *Node) handleEvent(ctx context.Context, ev Event) {
	addr, err := ParseTopic(n.cfg.Namespace, ev.Topic)
	if err != nil {
		log.Debugw("ignoring event", "topic", ev.Topic, "error", err)
		if errors.Is(err, ErrForeignNamespace) {
			n.cfg.Metrics.EventIgnored("foreign_namespace")
		} else {
			n.cfg.Metrics.EventIgnored("malformed_topic")
		}
		return
	}

	switch {
	case addr.Kind == KindAnnounce && addr.Target != n.cfg.Name:
		changed := n.directory.Record(addr.Target, ev.Payload)
		n.cfg.Metrics.AnnounceReceived(changed)
		n.cfg.Metrics.PeersKnown(n.directory.Len())
		if changed {
			log.Infow("peer announced", "peer", addr.Target)
			// Late joiners have no other way to learn about us.
			n.reannounce(ctx)
		}

	case addr.Kind == KindMessage && addr.Target == n.cfg.Name:
		plaintext, err := n.keys.Decrypt(string(ev.Payload))
		if err != nil {
			log.Warnw("dropping message that failed to decrypt", "from", addr.Sender, "error", err)
			n.cfg.Metrics.DecryptionError()
			return
		}
		n.inbox.Append(InboundMessage{
			ID:         uuid.NewString(),
			From:       addr.Sender,
			Plaintext:  string(plaintext),
			ReceivedAt: n.cfg.Clock.Now(),
		})
		n.cfg.Metrics.MessageReceived(len(plaintext))
		log.Debugw("message received", "from", addr.Sender)

	default:
		n.cfg.Metrics.EventIgnored("not_addressed")
	}
}

func (n *Node) announce(ctx context.Context) error {
	topic := AnnounceTopic(n.cfg.Namespace, n.cfg.Name)
	if err := n.transport.Publish(ctx, topic, n.keys.PublicKeyPEM()); err != nil {
		return fmt.Errorf("failed to publish announce: %w", err)
	}
	n.cfg.Metrics.AnnounceSent()
	return nil
}

func (n *Node) reannounce(ctx context.Context) {
	if err := n.announce(ctx); err != nil {
		log.Warnw("re-announce failed", "error", err)
	}
}

// Close stops the event loop and closes the transport. No leave notice is sent.
// A closed node cannot be started again.
func (n *Node) Close() error {
	n.mu.Lock()
	cancel, done := n.cancel, n.done
	n.cancel = nil
	n.closed = true
	n.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	n.setState(StateDisconnected)
	return n.transport.Close()
}

func (n *Node) setState(s State) {
	prev := State(n.state.Swap(int32(s)))
	if prev != s {
		log.Debugw("state changed", "name", n.cfg.Name, "from", prev, "to", s)
	}
}

// State returns the node's current state.
func (n *Node) State() State { return State(n.state.Load()) }

// Name returns the node's identity.
func (n *Node) Name() string { return n.cfg.Name }

// Namespace returns the topic namespace the node runs in.
func (n *Node) Namespace() string { return n.cfg.Namespace }

// PublicKey returns the announced PEM public key, or nil before Start.
func (n *Node) PublicKey() []byte {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.keys == nil {
		return nil
	}
	return n.keys.PublicKeyPEM()
}

// Peers returns a snapshot of the peer directory.
func (n *Node) Peers() []PeerRecord { return n.directory.Snapshot() }

// Directory returns the node's peer directory.
func (n *Node) Directory() *PeerDirectory { return n.directory }

// Inbox returns the node's inbox.
func (n *Node) Inbox() *MessageInbox { return n.inbox }

// DrainInbox drains the inbox and records the drain in metrics.
func (n *Node) DrainInbox() []InboundMessage {
	msgs := n.inbox.DrainAll()
	n.cfg.Metrics.InboxDrained(len(msgs))
	return msgs
}
