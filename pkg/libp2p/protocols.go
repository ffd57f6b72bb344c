package libp2p

import "time"

const (
	// MDNSServiceName is the service tag hushmesh hosts advertise on the local network.
	MDNSServiceName = "hushmesh"

	// RendezvousPrefix prefixes the DHT namespace advertised for each overlay namespace.
	RendezvousPrefix = "hushmesh-"

	// DefaultPublishTimeout bounds a single GossipSub publish.
	DefaultPublishTimeout = 10 * time.Second

	// DefaultBufferSize is the per-subscription channel capacity.
	DefaultBufferSize = 256

	discoveryInterval = 30 * time.Second
	connectTimeout    = 15 * time.Second
)
