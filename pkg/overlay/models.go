package overlay

import "time"

// PeerRecord is the last public key announced under a name.
type PeerRecord struct {
	Name      string
	PublicKey []byte
	UpdatedAt time.Time
}

// InboundMessage is a decrypted message addressed to this node.
type InboundMessage struct {
	ID         string
	From       string
	Plaintext  string
	ReceivedAt time.Time
}
