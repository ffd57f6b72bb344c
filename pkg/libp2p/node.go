// Package libp2p runs the overlay on a libp2p host. Overlay topics are carried
// over one GossipSub topic per namespace, and peers are found through mDNS, the
// Kademlia DHT or explicit dialing.
package libp2p

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/baderanaas/hushmesh/pkg/overlay"
	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/routing"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/libp2p/go-libp2p/p2p/net/connmgr"
	"github.com/multiformats/go-multiaddr"
	"go.uber.org/multierr"
)

// Config configures a Bus.
type Config struct {
	// ListenPort is used for TCP and QUIC. 0 picks random ports.
	ListenPort int

	// IdentityDir holds identity.key. Required.
	IdentityDir string

	// EnableMDNS discovers peers on the local network.
	EnableMDNS bool

	// EnableDHT joins the public Kademlia DHT and advertises each namespace there.
	EnableDHT bool

	// PublishTimeout bounds a single publish. 0 uses DefaultPublishTimeout.
	PublishTimeout time.Duration

	// BufferSize is the per-subscription channel capacity. 0 uses DefaultBufferSize.
	BufferSize int
}

// Bus is an overlay.Transport backed by a libp2p host and GossipSub.
type Bus struct {
	host   host.Host
	ctx    context.Context
	cancel context.CancelFunc
	dht    *dht.IpfsDHT
	pubsub *pubsub.PubSub
	cfg    Config

	connectOnce sync.Once
	mdns        mdns.Service

	// Joined GossipSub topics, keyed by namespace.
	topics    map[string]*namespaceTopic
	topicsMux sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

var _ overlay.Transport = (*Bus)(nil)

// New creates a libp2p host and its GossipSub router. Discovery starts on Connect.
func New(cfg Config) (*Bus, error) {
	if cfg.IdentityDir == "" {
		return nil, fmt.Errorf("identity directory is required")
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultPublishTimeout
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	privKey, err := LoadIdentity(cfg.IdentityDir)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to load or generate identity: %w", err)
	}

	cm, err := connmgr.NewConnManager(50, 200, connmgr.WithGracePeriod(time.Minute))
	if err != nil {
		cancel()
		return nil, err
	}

	opts := []libp2p.Option{
		libp2p.ListenAddrStrings(
			fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", cfg.ListenPort),
			fmt.Sprintf("/ip4/0.0.0.0/udp/%d/quic-v1", cfg.ListenPort),
		),
		libp2p.Identity(privKey),
		libp2p.ConnectionManager(cm),
	}

	var idht *dht.IpfsDHT
	if cfg.EnableDHT {
		var staticRelays []peer.AddrInfo
		for _, addr := range dht.DefaultBootstrapPeers {
			pi, err := peer.AddrInfoFromP2pAddr(addr)
			if err != nil {
				log.Warnw("failed to parse bootstrap peer", "addr", addr, "error", err)
				continue
			}
			staticRelays = append(staticRelays, *pi)
		}
		opts = append(opts,
			libp2p.EnableAutoRelayWithStaticRelays(staticRelays),
			libp2p.EnableHolePunching(),
			libp2p.NATPortMap(),
			libp2p.Routing(func(h host.Host) (routing.PeerRouting, error) {
				var err error
				idht, err = dht.New(ctx, h, dht.Mode(dht.ModeAutoServer))
				return idht, err
			}),
		)
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create libp2p host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		cancel()
		_ = h.Close()
		return nil, fmt.Errorf("failed to create pubsub: %w", err)
	}

	bus := &Bus{
		host:   h,
		ctx:    ctx,
		cancel: cancel,
		dht:    idht,
		pubsub: ps,
		cfg:    cfg,
		topics: make(map[string]*namespaceTopic),
	}
	log.Infow("libp2p host started", "id", h.ID(), "addrs", bus.Addrs())
	return bus, nil
}

// ID returns the host's peer ID.
func (b *Bus) ID() peer.ID {
	return b.host.ID()
}

// Addrs returns the host's dialable addresses including the /p2p component.
func (b *Bus) Addrs() []multiaddr.Multiaddr {
	addrs, err := peer.AddrInfoToP2pAddrs(&peer.AddrInfo{ID: b.host.ID(), Addrs: b.host.Addrs()})
	if err != nil {
		return nil
	}
	return addrs
}

// Peers returns the peers the host is connected to.
func (b *Bus) Peers() []peer.ID {
	return b.host.Network().Peers()
}

// Close shuts down discovery, leaves every topic and closes the host.
func (b *Bus) Close() error {
	b.closeOnce.Do(func() {
		var err error
		if b.mdns != nil {
			err = multierr.Append(err, b.mdns.Close())
		}

		// Topics are left while the pubsub loop still runs.
		b.topicsMux.Lock()
		topics := b.topics
		b.topics = make(map[string]*namespaceTopic)
		b.topicsMux.Unlock()
		for _, t := range topics {
			err = multierr.Append(err, t.close())
		}
		b.cancel()

		if b.dht != nil {
			err = multierr.Append(err, b.dht.Close())
		}
		err = multierr.Append(err, b.host.Close())
		b.closeErr = err
	})
	return b.closeErr
}
