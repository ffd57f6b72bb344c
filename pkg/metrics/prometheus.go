package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "hushmesh"

// Prometheus implements Metrics with Prometheus collectors.
//
//	hushmesh_announces_received_total{changed="true|false"}
//	hushmesh_announces_sent_total
//	hushmesh_peers_known
//	hushmesh_messages_sent_total{result="success|failure"}
//	hushmesh_messages_received_total
//	hushmesh_message_received_bytes
//	hushmesh_decryption_errors_total
//	hushmesh_events_ignored_total{reason="<reason>"}
//	hushmesh_inbox_drained_messages_total
type Prometheus struct {
	announcesReceived *prometheus.CounterVec
	announcesSent     prometheus.Counter
	peersKnown        prometheus.Gauge
	messagesSent      *prometheus.CounterVec
	messagesReceived  prometheus.Counter
	receivedBytes     prometheus.Histogram
	decryptionErrors  prometheus.Counter
	eventsIgnored     *prometheus.CounterVec
	inboxDrained      prometheus.Counter
}

var _ Metrics = (*Prometheus)(nil)

// NewPrometheus creates the collectors and registers them with reg.
// An empty namespace uses DefaultNamespace.
func NewPrometheus(namespace string, reg prometheus.Registerer) (*Prometheus, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	m := &Prometheus{
		announcesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "announces_received_total",
			Help:      "Peer announces received, by whether the directory changed.",
		}, []string{"changed"}),
		announcesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "announces_sent_total",
			Help:      "Announces of this node's public key.",
		}),
		peersKnown: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peers_known",
			Help:      "Peers in the directory.",
		}),
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Per-peer encrypted sends, by result.",
		}, []string{"result"}),
		messagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Inbound messages decrypted into the inbox.",
		}),
		receivedBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_received_bytes",
			Help:      "Plaintext size of inbound messages.",
			Buckets:   prometheus.ExponentialBuckets(16, 2, 6),
		}),
		decryptionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decryption_errors_total",
			Help:      "Inbound messages dropped because they did not decrypt.",
		}),
		eventsIgnored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_ignored_total",
			Help:      "Bus events ignored, by reason.",
		}, []string{"reason"}),
		inboxDrained: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbox_drained_messages_total",
			Help:      "Messages handed out by inbox drains.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.announcesReceived, m.announcesSent, m.peersKnown, m.messagesSent,
		m.messagesReceived, m.receivedBytes, m.decryptionErrors, m.eventsIgnored, m.inboxDrained,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Prometheus) AnnounceReceived(changed bool) {
	m.announcesReceived.WithLabelValues(strconv.FormatBool(changed)).Inc()
}

func (m *Prometheus) AnnounceSent() { m.announcesSent.Inc() }

func (m *Prometheus) PeersKnown(n int) { m.peersKnown.Set(float64(n)) }

func (m *Prometheus) MessageSent(result string) { m.messagesSent.WithLabelValues(result).Inc() }

func (m *Prometheus) MessageReceived(bytes int) {
	m.messagesReceived.Inc()
	m.receivedBytes.Observe(float64(bytes))
}

func (m *Prometheus) DecryptionError() { m.decryptionErrors.Inc() }

func (m *Prometheus) EventIgnored(reason string) { m.eventsIgnored.WithLabelValues(reason).Inc() }

func (m *Prometheus) InboxDrained(n int) { m.inboxDrained.Add(float64(n)) }
