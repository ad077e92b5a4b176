// Package replication implements EnqueueDataForReplication and its drain
// cycle (SPEC_FULL.md §3, grounded on original_source's
// data_replication.rs batched-send behaviour — spec.md names the enqueue
// operation but not how it drains).
package replication

import (
	"sync"

	"github.com/eldermesh/sectionnet/internal/address"
	"github.com/eldermesh/sectionnet/internal/peer"
)

// Item is a single pending replication: a chunk address that needs to
// reach target, deduplicated by (target, name) so repeated enqueues for
// the same pair coalesce into one outstanding item.
type Item struct {
	Target peer.Peer
	Name   address.XorName
}

// Queue is an ordered, deduplicating replication backlog. A dispatcher
// tick calls Drain to pull a bounded batch of work off the front.
type Queue struct {
	mu      sync.Mutex
	order   []Item
	present map[Item]struct{}
}

// NewQueue creates an empty replication queue.
func NewQueue() *Queue {
	return &Queue{present: make(map[Item]struct{})}
}

// Enqueue adds item to the back of the queue unless an identical item is
// already pending.
func (q *Queue) Enqueue(item Item) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.present[item]; ok {
		return
	}
	q.present[item] = struct{}{}
	q.order = append(q.order, item)
}

// Drain removes and returns up to budget items from the front of the
// queue, oldest first.
func (q *Queue) Drain(budget int) []Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	if budget > len(q.order) {
		budget = len(q.order)
	}
	batch := make([]Item, budget)
	copy(batch, q.order[:budget])
	q.order = q.order[budget:]
	for _, item := range batch {
		delete(q.present, item)
	}
	return batch
}

// Len reports how many items are currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}
