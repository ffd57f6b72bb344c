package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/baderanaas/hushmesh/pkg/crypto"
	"github.com/baderanaas/hushmesh/pkg/membus"
	"github.com/baderanaas/hushmesh/pkg/metrics"
	"github.com/baderanaas/hushmesh/pkg/overlay"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type fakeNode struct {
	state   overlay.State
	peers   []overlay.PeerRecord
	inbox   []overlay.InboundMessage
	report  overlay.SendReport
	sentTo  string
	sentMsg string
	lock    sync.Mutex
}

func (f *fakeNode) SendTo(_ context.Context, peer string, plaintext []byte) overlay.SendReport {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.sentTo, f.sentMsg = peer, string(plaintext)
	return f.report
}

func (f *fakeNode) Broadcast(_ context.Context, plaintext []byte) overlay.SendReport {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.sentTo, f.sentMsg = "", string(plaintext)
	return f.report
}

func (f *fakeNode) DrainInbox() []overlay.InboundMessage {
	f.lock.Lock()
	defer f.lock.Unlock()
	msgs := f.inbox
	f.inbox = nil
	return msgs
}

func (f *fakeNode) Peers() []overlay.PeerRecord { return f.peers }
func (f *fakeNode) State() overlay.State        { return f.state }

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestSendBroadcast(t *testing.T) {
	node := &fakeNode{report: overlay.SendReport{Outcomes: []overlay.SendOutcome{
		{Peer: "bob"},
		{Peer: "mallory", Err: crypto.ErrInvalidPublicKey},
	}}}
	rec := do(t, New(node, nil), http.MethodPost, "/messages", `{"msg":"hello"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "hello", node.sentMsg)
	require.Empty(t, node.sentTo)

	resp := decode[sendResponse](t, rec)
	require.Equal(t, []sendResult{
		{Peer: "bob", OK: true},
		{Peer: "mallory", OK: false, Error: "invalid public key"},
	}, resp.Results)
}

func TestSendToPeer(t *testing.T) {
	node := &fakeNode{report: overlay.SendReport{Outcomes: []overlay.SendOutcome{{Peer: "bob"}}}}
	rec := do(t, New(node, nil), http.MethodPost, "/messages", `{"msg":"hi bob","to":"bob"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "bob", node.sentTo)
	require.Equal(t, "hi bob", node.sentMsg)
}

func TestSendWithoutPeersReturnsEmptyResults(t *testing.T) {
	rec := do(t, New(&fakeNode{}, nil), http.MethodPost, "/messages", `{"msg":"anyone?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"results":[]}`, rec.Body.String())
}

func TestSendRejectsBadRequests(t *testing.T) {
	srv := New(&fakeNode{}, nil)
	for _, body := range []string{"", "not json", `{"msg":""}`, `{"to":"bob"}`} {
		rec := do(t, srv, http.MethodPost, "/messages", body)
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
		require.NotEmpty(t, decode[errorResponse](t, rec).Error)
	}
}

func TestInboxDrains(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	node := &fakeNode{inbox: []overlay.InboundMessage{
		{ID: "1", From: "alice", Plaintext: "first", ReceivedAt: at},
		{ID: "2", From: "alice", Plaintext: "second", ReceivedAt: at},
	}}
	srv := New(node, nil)

	rec := do(t, srv, http.MethodGet, "/messages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[inboxResponse](t, rec)
	require.Len(t, resp.Messages, 2)
	require.Equal(t, inboxMessage{ID: "1", From: "alice", Msg: "first", ReceivedAt: at}, resp.Messages[0])

	rec = do(t, srv, http.MethodGet, "/messages", "")
	require.JSONEq(t, `{"messages":[]}`, rec.Body.String())
}

func TestPeers(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	node := &fakeNode{peers: []overlay.PeerRecord{{Name: "bob", PublicKey: []byte("k"), UpdatedAt: at}}}
	rec := do(t, New(node, nil), http.MethodGet, "/peers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"peers":[{"name":"bob","updatedAt":"2024-01-02T03:04:05Z"}]}`, rec.Body.String())
}

func TestHealth(t *testing.T) {
	node := &fakeNode{state: overlay.StateConnecting}
	srv := New(node, nil)

	rec := do(t, srv, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.JSONEq(t, `{"state":"connecting"}`, rec.Body.String())

	node.state = overlay.StateReady
	rec = do(t, srv, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"state":"ready"}`, rec.Body.String())
}

func TestUnknownRoutes(t *testing.T) {
	srv := New(&fakeNode{}, nil)
	require.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/nope", "").Code)
	require.Equal(t, http.StatusMethodNotAllowed, do(t, srv, http.MethodDelete, "/messages", "").Code)
	require.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/metrics", "").Code, "metrics are off without a gatherer")
}

// newTestDir creates a temporary directory for testing and returns its path.
func newTestDir(t *testing.T) string {
	dir, err := os.MkdirTemp("", "hushmesh-httpapi-")
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, os.RemoveAll(dir)) })
	return dir
}

func TestEndToEndWithMetrics(t *testing.T) {
	broker := membus.NewBroker(0)
	reg := prometheus.NewRegistry()
	m, err := metrics.NewPrometheus("", reg)
	require.NoError(t, err)

	start := func(name string, mt metrics.Metrics) *overlay.Node {
		node, err := overlay.NewNode(overlay.Config{
			Name:       name,
			Namespace:  "hush",
			KeyDir:     newTestDir(t),
			Passphrase: "test",
			KeyBits:    crypto.MinKeyBits,
			Metrics:    mt,
		}, broker.Client())
		require.NoError(t, err)
		require.NoError(t, node.Start(context.Background()))
		t.Cleanup(func() { require.NoError(t, node.Close()) })
		return node
	}
	alice := start("alice", nil)
	bob := start("bob", m)
	require.Eventually(t, func() bool { return len(alice.Peers()) == 1 }, 5*time.Second, 10*time.Millisecond)

	aliceAPI := New(alice, nil)
	bobAPI := New(bob, reg)

	rec := do(t, aliceAPI, http.MethodPost, "/messages", `{"msg":"hello bob"}`)
	require.JSONEq(t, `{"results":[{"peer":"bob","ok":true}]}`, rec.Body.String())

	var msgs []inboxMessage
	require.Eventually(t, func() bool {
		var resp inboxResponse
		if err := json.Unmarshal(do(t, bobAPI, http.MethodGet, "/messages", "").Body.Bytes(), &resp); err != nil {
			return false
		}
		msgs = append(msgs, resp.Messages...)
		return len(msgs) == 1
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, "alice", msgs[0].From)
	require.Equal(t, "hello bob", msgs[0].Msg)

	rec = do(t, bobAPI, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "hushmesh_messages_received_total 1")
	require.Contains(t, rec.Body.String(), "hushmesh_peers_known 1")
	count, err := testutil.GatherAndCount(reg, "hushmesh_decryption_errors_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestServeShutsDownWithContext(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(&fakeNode{state: overlay.StateReady}, nil).Serve(ctx, listener) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + listener.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.False(t, errors.Is(err, http.ErrServerClosed))
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
