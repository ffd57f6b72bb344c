package overlay

import (
	"bytes"
	"sort"
	"sync"

	"github.com/benbjohnson/clock"
)

// PeerDirectory maps peer names to their last announced public key.
// Entries are never removed; a later announce under the same name wins.
type PeerDirectory struct {
	peers map[string]PeerRecord
	lock  sync.Mutex
	clock clock.Clock
}

// NewPeerDirectory creates an empty directory.
func NewPeerDirectory() *PeerDirectory {
	return newPeerDirectory(clock.New())
}

func newPeerDirectory(clk clock.Clock) *PeerDirectory {
	return &PeerDirectory{
		peers: make(map[string]PeerRecord),
		clock: clk,
	}
}

// Record upserts the key announced by name. It reports whether the name is new
// or its key changed. The key is stored opaquely; it is only parsed when used.
func (d *PeerDirectory) Record(name string, publicKey []byte) bool {
	key := append([]byte(nil), publicKey...)
	now := d.clock.Now()

	d.lock.Lock()
	defer d.lock.Unlock()

	prev, exists := d.peers[name]
	d.peers[name] = PeerRecord{Name: name, PublicKey: key, UpdatedAt: now}
	return !exists || !bytes.Equal(prev.PublicKey, key)
}

// Lookup returns the record for name.
func (d *PeerDirectory) Lookup(name string) (PeerRecord, bool) {
	d.lock.Lock()
	rec, ok := d.peers[name]
	d.lock.Unlock()
	if !ok {
		return PeerRecord{}, false
	}
	return cloneRecord(rec), true
}

// Snapshot returns a point-in-time copy of every record, sorted by name.
// Iterating it never blocks Record.
func (d *PeerDirectory) Snapshot() []PeerRecord {
	d.lock.Lock()
	records := make([]PeerRecord, 0, len(d.peers))
	for _, rec := range d.peers {
		records = append(records, rec)
	}
	d.lock.Unlock()

	for i := range records {
		records[i] = cloneRecord(records[i])
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	return records
}

// Len returns the number of known peers.
func (d *PeerDirectory) Len() int {
	d.lock.Lock()
	defer d.lock.Unlock()
	return len(d.peers)
}

// Stored keys are never mutated in place, but callers get their own copy.
func cloneRecord(rec PeerRecord) PeerRecord {
	rec.PublicKey = append([]byte(nil), rec.PublicKey...)
	return rec
}
