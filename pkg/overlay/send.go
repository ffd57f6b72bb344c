package overlay

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// SendOutcome is the result of sending to a single peer.
type SendOutcome struct {
	Peer  string
	Topic string
	Err   error
}

// OK reports whether the message was handed to the bus.
func (o SendOutcome) OK() bool { return o.Err == nil }

// SendReport collects the per-peer outcomes of one send. A failure for one peer
// never prevents delivery to the others.
type SendReport struct {
	Outcomes []SendOutcome
}

// Delivered returns the names of peers the message was published for.
func (r SendReport) Delivered() []string {
	var peers []string
	for _, o := range r.Outcomes {
		if o.OK() {
			peers = append(peers, o.Peer)
		}
	}
	return peers
}

// Failed returns the outcomes that carry an error.
func (r SendReport) Failed() []SendOutcome {
	var failed []SendOutcome
	for _, o := range r.Outcomes {
		if !o.OK() {
			failed = append(failed, o)
		}
	}
	return failed
}

// Err combines every per-peer failure, or returns nil when all sends succeeded.
func (r SendReport) Err() error {
	var err error
	for _, o := range r.Failed() {
		err = multierr.Append(err, fmt.Errorf("%s: %w", o.Peer, o.Err))
	}
	return err
}

// SendTo encrypts plaintext for a single known peer.
func (n *Node) SendTo(ctx context.Context, peer string, plaintext []byte) SendReport {
	rec, ok := n.directory.Lookup(peer)
	if !ok {
		n.cfg.Metrics.MessageSent("failure")
		return SendReport{Outcomes: []SendOutcome{{
			Peer:  peer,
			Topic: MessageTopic(n.cfg.Namespace, peer, n.cfg.Name),
			Err:   fmt.Errorf("%w: %q", ErrPeerNotFound, peer),
		}}}
	}
	return n.send(ctx, []PeerRecord{rec}, plaintext)
}

// Broadcast encrypts plaintext separately for every peer in the directory.
// With no known peers the report is empty.
func (n *Node) Broadcast(ctx context.Context, plaintext []byte) SendReport {
	return n.send(ctx, n.directory.Snapshot(), plaintext)
}

func (n *Node) send(ctx context.Context, peers []PeerRecord, plaintext []byte) SendReport {
	outcomes := make([]SendOutcome, len(peers))
	ready := n.State() == StateReady

	// Peer errors are collected in outcomes, so the group never cancels.
	var g errgroup.Group
	g.SetLimit(n.cfg.SendConcurrency)
	for i, peer := range peers {
		outcomes[i] = SendOutcome{Peer: peer.Name, Topic: MessageTopic(n.cfg.Namespace, peer.Name, n.cfg.Name)}
		if !ready {
			outcomes[i].Err = ErrNotReady
			continue
		}
		g.Go(func() error {
			outcomes[i].Err = n.sendOne(ctx, outcomes[i].Topic, peer, plaintext)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		if o.OK() {
			n.cfg.Metrics.MessageSent("success")
		} else {
			n.cfg.Metrics.MessageSent("failure")
			log.Warnw("send failed", "peer", o.Peer, "error", o.Err)
		}
	}
	return SendReport{Outcomes: outcomes}
}

func (n *Node) sendOne(ctx context.Context, topic string, peer PeerRecord, plaintext []byte) error {
	ciphertext, err := n.codec.Encrypt(plaintext, peer.PublicKey)
	if err != nil {
		return err
	}
	if err := n.transport.Publish(ctx, topic, []byte(ciphertext)); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}
