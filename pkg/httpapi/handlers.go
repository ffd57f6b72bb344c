package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/baderanaas/hushmesh/pkg/overlay"
)

type sendRequest struct {
	Msg string `json:"msg"`
	To  string `json:"to,omitempty"`
}

type sendResult struct {
	Peer  string `json:"peer"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type sendResponse struct {
	Results []sendResult `json:"results"`
}

type inboxMessage struct {
	ID         string    `json:"id"`
	From       string    `json:"from"`
	Msg        string    `json:"msg"`
	ReceivedAt time.Time `json:"receivedAt"`
}

type inboxResponse struct {
	Messages []inboxMessage `json:"messages"`
}

type peerEntry struct {
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type peersResponse struct {
	Peers []peerEntry `json:"peers"`
}

type healthResponse struct {
	State string `json:"state"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleSend encrypts msg for one peer or every known peer. Per-peer failures are
// reported in the body; the status is 200 whenever the request itself was valid.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Msg == "" {
		writeError(w, http.StatusBadRequest, "msg is required")
		return
	}

	var report overlay.SendReport
	if req.To != "" {
		report = s.node.SendTo(r.Context(), req.To, []byte(req.Msg))
	} else {
		report = s.node.Broadcast(r.Context(), []byte(req.Msg))
	}

	resp := sendResponse{Results: make([]sendResult, 0, len(report.Outcomes))}
	for _, o := range report.Outcomes {
		result := sendResult{Peer: o.Peer, OK: o.OK()}
		if o.Err != nil {
			result.Error = o.Err.Error()
		}
		resp.Results = append(resp.Results, result)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleInbox drains the inbox. Returned messages are gone from the node.
func (s *Server) handleInbox(w http.ResponseWriter, _ *http.Request) {
	msgs := s.node.DrainInbox()
	resp := inboxResponse{Messages: make([]inboxMessage, 0, len(msgs))}
	for _, m := range msgs {
		resp.Messages = append(resp.Messages, inboxMessage{
			ID:         m.ID,
			From:       m.From,
			Msg:        m.Plaintext,
			ReceivedAt: m.ReceivedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePeers(w http.ResponseWriter, _ *http.Request) {
	peers := s.node.Peers()
	resp := peersResponse{Peers: make([]peerEntry, 0, len(peers))}
	for _, p := range peers {
		resp.Peers = append(resp.Peers, peerEntry{Name: p.Name, UpdatedAt: p.UpdatedAt})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	state := s.node.State()
	status := http.StatusOK
	if state != overlay.StateReady {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, healthResponse{State: state.String()})
}
