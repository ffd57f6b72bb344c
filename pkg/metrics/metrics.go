// Package metrics defines the metrics collected by an overlay node and a Prometheus
// implementation of them.
package metrics

// Metrics collects overlay node metrics. Implementations must be safe for concurrent use.
type Metrics interface {
	// AnnounceReceived records a peer announce. changed reports a new or rotated key.
	AnnounceReceived(changed bool)

	// AnnounceSent records one publication of the node's own public key.
	AnnounceSent()

	// PeersKnown sets the size of the peer directory.
	PeersKnown(n int)

	// MessageSent records one per-peer send. result is "success" or "failure".
	MessageSent(result string)

	// MessageReceived records a decrypted inbound message of the given plaintext size.
	MessageReceived(bytes int)

	// DecryptionError records an inbound message that could not be decrypted.
	DecryptionError()

	// EventIgnored records a bus event that was not addressed to this node.
	EventIgnored(reason string)

	// InboxDrained records a drain of the inbox returning n messages.
	InboxDrained(n int)
}

// NopMetrics discards everything. It is the default when no collector is configured.
type NopMetrics struct{}

var _ Metrics = NopMetrics{}

func (NopMetrics) AnnounceReceived(bool) {}
func (NopMetrics) AnnounceSent()         {}
func (NopMetrics) PeersKnown(int)        {}
func (NopMetrics) MessageSent(string)    {}
func (NopMetrics) MessageReceived(int)   {}
func (NopMetrics) DecryptionError()      {}
func (NopMetrics) EventIgnored(string)   {}
func (NopMetrics) InboxDrained(int)      {}
