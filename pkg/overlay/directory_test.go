package overlay

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

func TestPeerDirectoryRecord(t *testing.T) {
	clk := clock.NewMock()
	d := newPeerDirectory(clk)

	require.True(t, d.Record("bob", []byte("key-1")))
	require.False(t, d.Record("bob", []byte("key-1")), "repeated announce is not a change")
	require.Equal(t, 1, d.Len())

	clk.Add(time.Minute)
	require.True(t, d.Record("bob", []byte("key-2")), "last write wins")
	rec, ok := d.Lookup("bob")
	require.True(t, ok)
	require.Equal(t, "bob", rec.Name)
	require.Equal(t, []byte("key-2"), rec.PublicKey)
	require.Equal(t, clk.Now(), rec.UpdatedAt)

	_, ok = d.Lookup("carol")
	require.False(t, ok)
}

func TestPeerDirectoryCopiesKeys(t *testing.T) {
	d := NewPeerDirectory()
	key := []byte("key")
	d.Record("bob", key)
	key[0] = 'X'

	rec, _ := d.Lookup("bob")
	require.Equal(t, "key", string(rec.PublicKey))

	rec.PublicKey[0] = 'Y'
	again, _ := d.Lookup("bob")
	require.Equal(t, "key", string(again.PublicKey))
}

func TestPeerDirectorySnapshotSorted(t *testing.T) {
	d := NewPeerDirectory()
	require.Empty(t, d.Snapshot())

	for _, name := range []string{"carol", "alice", "bob"} {
		d.Record(name, []byte(name))
	}
	snap := d.Snapshot()
	require.Len(t, snap, 3)
	require.Equal(t, "alice", snap[0].Name)
	require.Equal(t, "bob", snap[1].Name)
	require.Equal(t, "carol", snap[2].Name)

	// The snapshot is detached from later writes.
	d.Record("dave", []byte("dave"))
	require.Len(t, snap, 3)
}

func TestPeerDirectoryConcurrentAccess(t *testing.T) {
	d := NewPeerDirectory()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			d.Record(fmt.Sprintf("peer-%d", i%5), []byte(fmt.Sprintf("key-%d", i)))
		}()
		go func() {
			defer wg.Done()
			for _, rec := range d.Snapshot() {
				require.NotEmpty(t, rec.PublicKey)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 5, d.Len())
}
