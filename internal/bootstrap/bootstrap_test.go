package bootstrap

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldermesh/sectionnet/internal/address"
	"github.com/eldermesh/sectionnet/internal/peer"
)

type recordingSender struct {
	mu    sync.Mutex
	sent  []peer.Peer
	onHit func(p peer.Peer)
}

func (s *recordingSender) SendRaw(ctx context.Context, to peer.Peer, payload []byte) error {
	s.mu.Lock()
	s.sent = append(s.sent, to)
	s.mu.Unlock()
	if s.onHit != nil {
		s.onHit(to)
	}
	return nil
}

func (s *recordingSender) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type flagTree struct {
	mu      sync.Mutex
	covered bool
}

func (t *flagTree) Covers(address.XorName) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.covered
}

func (t *flagTree) setCovered() {
	t.mu.Lock()
	t.covered = true
	t.mu.Unlock()
}

func makeSeeds(t *testing.T, n int) []peer.Peer {
	t.Helper()
	seeds := make([]peer.Peer, n)
	for i := range seeds {
		var name address.XorName
		name[address.Len-1] = byte(i + 1)
		seeds[i] = peer.Peer{Name: name, Addr: "seed"}
	}
	return seeds
}

// TestContactSucceedsOnSecondBatch is scenario S5: the SAP only arrives
// after the second seed batch goes out.
func TestContactSucceedsOnSecondBatch(t *testing.T) {
	seeds := makeSeeds(t, 9)
	tree := &flagTree{}

	sender := &recordingSender{}
	sender.onHit = func(p peer.Peer) {
		if sender.sentCount() > 3 {
			// Second batch has started landing: simulate the SAP arriving.
			tree.setCovered()
		}
	}

	start := time.Now()
	err := Contact(context.Background(), seeds, address.XorName{0x01}, sender, tree, []byte("hello"))
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, sender.sentCount(), 4, "second batch of 3 must have gone out before success")
	assert.GreaterOrEqual(t, elapsed, initialWait, "must wait at least INITIAL_WAIT before the first re-check")
}

func TestContactFailsWithNoSeeds(t *testing.T) {
	tree := &flagTree{}
	err := Contact(context.Background(), nil, address.XorName{0x01}, &recordingSender{}, tree, []byte("x"))
	assert.Error(t, err)
}

func TestContactReturnsImmediatelyIfAlreadyCovered(t *testing.T) {
	seeds := makeSeeds(t, 3)
	tree := &flagTree{covered: true}
	sender := &recordingSender{}

	err := Contact(context.Background(), seeds, address.XorName{0x01}, sender, tree, []byte("x"))
	require.NoError(t, err)
}
