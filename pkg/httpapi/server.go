// Package httpapi exposes an overlay node over HTTP: send, poll the inbox, list
// peers, health and Prometheus metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/baderanaas/hushmesh/pkg/overlay"
	"github.com/gorilla/mux"
	logging "github.com/ipfs/go-log/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var log = logging.Logger("hushmesh/httpapi")

const (
	maxBodyBytes    = 64 << 10
	shutdownTimeout = 5 * time.Second
)

// Node is the part of an overlay node the API serves.
type Node interface {
	SendTo(ctx context.Context, peer string, plaintext []byte) overlay.SendReport
	Broadcast(ctx context.Context, plaintext []byte) overlay.SendReport
	DrainInbox() []overlay.InboundMessage
	Peers() []overlay.PeerRecord
	State() overlay.State
}

// Server routes HTTP requests to a Node.
type Server struct {
	node   Node
	router *mux.Router
}

// New creates a server for node. Metrics are served from gatherer when it is not nil.
func New(node Node, gatherer prometheus.Gatherer) *Server {
	s := &Server{node: node, router: mux.NewRouter()}

	s.router.HandleFunc("/messages", s.handleSend).Methods(http.MethodPost)
	s.router.HandleFunc("/messages", s.handleInbox).Methods(http.MethodGet)
	s.router.HandleFunc("/peers", s.handlePeers).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listener)
}

// Serve serves on listener until ctx is done.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:      s,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()
	log.Infow("http api listening", "addr", listener.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debugw("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
