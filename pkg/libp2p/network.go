package libp2p

import (
	"context"
	"fmt"
	"sync"

	dht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
)

// Connect starts peer discovery and, when addr is set, dials it. addr is a
// multiaddr ending in /p2p/<peer id>. With an empty addr the bus relies on mDNS
// and the DHT to find peers.
func (b *Bus) Connect(ctx context.Context, addr string) error {
	if err := b.ctx.Err(); err != nil {
		return fmt.Errorf("bus closed: %w", err)
	}

	var err error
	b.connectOnce.Do(func() {
		err = b.startDiscovery()
	})
	if err != nil {
		return err
	}

	if addr == "" {
		return nil
	}
	return b.connectToPeer(ctx, addr)
}

// connectToPeer connects to a peer given its multiaddress string.
func (b *Bus) connectToPeer(ctx context.Context, addrStr string) error {
	addr, err := multiaddr.NewMultiaddr(addrStr)
	if err != nil {
		return fmt.Errorf("invalid peer address %q: %w", addrStr, err)
	}
	peerInfo, err := peer.AddrInfoFromP2pAddr(addr)
	if err != nil {
		return fmt.Errorf("invalid peer address %q: %w", addrStr, err)
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := b.host.Connect(ctx, *peerInfo); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", peerInfo.ID, err)
	}
	log.Infow("connected to peer", "peer", peerInfo.ID)
	return nil
}

// bootstrapDHT connects to the public bootstrap peers and bootstraps the routing table.
// Failures are logged: a node can still find peers through mDNS or explicit dials.
func (b *Bus) bootstrapDHT() {
	var wg sync.WaitGroup
	for _, addr := range dht.DefaultBootstrapPeers {
		pi, err := peer.AddrInfoFromP2pAddr(addr)
		if err != nil {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(b.ctx, connectTimeout)
			defer cancel()
			if err := b.host.Connect(ctx, *pi); err != nil {
				log.Debugw("bootstrap peer unreachable", "peer", pi.ID, "error", err)
			}
		}()
	}
	wg.Wait()

	if err := b.dht.Bootstrap(b.ctx); err != nil {
		log.Warnw("dht bootstrap failed", "error", err)
	}
}
