package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestPrometheusCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewPrometheus("", reg)
	require.NoError(t, err)

	m.AnnounceReceived(true)
	m.AnnounceReceived(false)
	m.AnnounceReceived(false)
	m.AnnounceSent()
	m.PeersKnown(3)
	m.MessageSent("success")
	m.MessageSent("failure")
	m.MessageReceived(42)
	m.DecryptionError()
	m.EventIgnored("malformed_topic")
	m.InboxDrained(5)

	require.Equal(t, 1.0, testutil.ToFloat64(m.announcesReceived.WithLabelValues("true")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.announcesReceived.WithLabelValues("false")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.announcesSent))
	require.Equal(t, 3.0, testutil.ToFloat64(m.peersKnown))
	require.Equal(t, 1.0, testutil.ToFloat64(m.messagesSent.WithLabelValues("failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.messagesReceived))
	require.Equal(t, 1.0, testutil.ToFloat64(m.decryptionErrors))
	require.Equal(t, 1.0, testutil.ToFloat64(m.eventsIgnored.WithLabelValues("malformed_topic")))
	require.Equal(t, 5.0, testutil.ToFloat64(m.inboxDrained))

	count, err := testutil.GatherAndCount(reg, "hushmesh_message_received_bytes")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestPrometheusDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPrometheus("dup", reg)
	require.NoError(t, err)
	_, err = NewPrometheus("dup", reg)
	require.Error(t, err)
}
