package replication

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldermesh/sectionnet/internal/address"
	"github.com/eldermesh/sectionnet/internal/peer"
)

func TestEnqueueCoalescesDuplicates(t *testing.T) {
	q := NewQueue()
	item := Item{Target: peer.Peer{Addr: "a"}, Name: address.XorName{0x1}}

	q.Enqueue(item)
	q.Enqueue(item)
	assert.Equal(t, 1, q.Len())
}

func TestDrainRespectsBudgetAndOrder(t *testing.T) {
	q := NewQueue()
	first := Item{Target: peer.Peer{Addr: "a"}, Name: address.XorName{0x1}}
	second := Item{Target: peer.Peer{Addr: "b"}, Name: address.XorName{0x2}}
	q.Enqueue(first)
	q.Enqueue(second)

	batch := q.Drain(1)
	require.Len(t, batch, 1)
	assert.Equal(t, first, batch[0])
	assert.Equal(t, 1, q.Len())

	batch = q.Drain(5)
	require.Len(t, batch, 1)
	assert.Equal(t, second, batch[0])
	assert.Equal(t, 0, q.Len())
}

func TestDrainOnEmptyQueueReturnsEmpty(t *testing.T) {
	q := NewQueue()
	assert.Empty(t, q.Drain(10))
}

func TestReenqueueAfterDrainIsAccepted(t *testing.T) {
	q := NewQueue()
	item := Item{Target: peer.Peer{Addr: "a"}, Name: address.XorName{0x1}}
	q.Enqueue(item)
	q.Drain(1)
	q.Enqueue(item)
	assert.Equal(t, 1, q.Len())
}
