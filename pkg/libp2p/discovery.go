package libp2p

import (
	"context"
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	discovery "github.com/libp2p/go-libp2p/p2p/discovery/routing"
	"github.com/libp2p/go-libp2p/p2p/discovery/util"
)

// discoveryNotifee connects to peers found on the local network.
type discoveryNotifee struct {
	bus *Bus
}

func (n *discoveryNotifee) HandlePeerFound(pi peer.AddrInfo) {
	if pi.ID == n.bus.host.ID() {
		return
	}
	go n.bus.connectFound(pi, "mdns")
}

func (b *Bus) startDiscovery() error {
	if b.cfg.EnableMDNS {
		svc := mdns.NewMdnsService(b.host, MDNSServiceName, &discoveryNotifee{bus: b})
		if err := svc.Start(); err != nil {
			return fmt.Errorf("failed to start mdns: %w", err)
		}
		b.mdns = svc
	}
	if b.dht != nil {
		go b.bootstrapDHT()
	}
	return nil
}

// advertiseNamespace advertises the namespace in the DHT and periodically connects
// to other hosts advertising it.
func (b *Bus) advertiseNamespace(namespace string) {
	if b.dht == nil {
		return
	}
	key := RendezvousPrefix + namespace
	routingDiscovery := discovery.NewRoutingDiscovery(b.dht)
	util.Advertise(b.ctx, routingDiscovery, key)

	ticker := time.NewTicker(discoveryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			peerChan, err := routingDiscovery.FindPeers(b.ctx, key)
			if err != nil {
				log.Debugw("find peers failed", "namespace", namespace, "error", err)
				continue
			}
			b.processPeerDiscovery(peerChan, "dht")
		}
	}
}

// processPeerDiscovery handles peers found via discovery.
func (b *Bus) processPeerDiscovery(peerChan <-chan peer.AddrInfo, source string) {
	for p := range peerChan {
		if p.ID == b.host.ID() || len(p.Addrs) == 0 {
			continue
		}
		if len(b.host.Network().ConnsToPeer(p.ID)) > 0 {
			continue
		}
		go b.connectFound(p, source)
	}
}

func (b *Bus) connectFound(pi peer.AddrInfo, source string) {
	ctx, cancel := context.WithTimeout(b.ctx, connectTimeout)
	defer cancel()
	if err := b.host.Connect(ctx, pi); err != nil {
		log.Debugw("failed to connect to discovered peer", "peer", pi.ID, "source", source, "error", err)
		return
	}
	log.Infow("connected to discovered peer", "peer", pi.ID, "source", source)
}
