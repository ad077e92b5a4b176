package session

import (
	"sync"

	"github.com/eldermesh/sectionnet/internal/wire"
)

// queryListener is one (msg_id, sender) pair registered under an
// OperationID, per spec.md §3.
type queryListener struct {
	msgID  wire.MsgID
	sender chan any
}

// queryEntry is the PendingQuery entry: the ordered set of listeners
// currently waiting on responses for a given operation id. Because the
// operation id is a deterministic hash of the query, two concurrent
// SendQuery calls for the same query share this entry and therefore share
// whichever response arrives first.
type queryEntry struct {
	listeners []*queryListener
}

// queryTable is the pending_queries map: Mutex-guarded, entries created
// lazily on first listener and erased once empty, per spec.md §3
// Lifecycle.
type queryTable struct {
	mu      sync.Mutex
	entries map[wire.OperationID]*queryEntry
}

func newQueryTable() *queryTable {
	return &queryTable{entries: make(map[wire.OperationID]*queryEntry)}
}

// register adds a fresh listener under opID, creating the entry if this is
// the first caller for this operation. Returns the channel responses for
// msgID/opID will be delivered on.
func (t *queryTable) register(opID wire.OperationID, msgID wire.MsgID) chan any {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[opID]
	if !ok {
		entry = &queryEntry{}
		t.entries[opID] = entry
	}
	ch := make(chan any, 8)
	entry.listeners = append(entry.listeners, &queryListener{msgID: msgID, sender: ch})
	return ch
}

// deliver broadcasts resp to every listener currently registered under
// opID — the "share responses" behaviour concurrent identical queries
// rely on. Delivery is non-blocking per listener: a listener that isn't
// reading (e.g. it already returned) simply misses this delivery.
func (t *queryTable) deliver(opID wire.OperationID, resp any) {
	t.mu.Lock()
	entry, ok := t.entries[opID]
	var listeners []*queryListener
	if ok {
		listeners = append(listeners, entry.listeners...)
	}
	t.mu.Unlock()

	for _, l := range listeners {
		select {
		case l.sender <- resp:
		default:
		}
	}
}

// remove drops the listener identified by (opID, msgID). If that was the
// last listener for opID, the entry itself is erased, which is what
// "removal of one leaves the other unaffected" (spec.md §8.3) depends on:
// removing one listener must never touch sibling listeners' entries.
func (t *queryTable) remove(opID wire.OperationID, msgID wire.MsgID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[opID]
	if !ok {
		return
	}
	for i, l := range entry.listeners {
		if l.msgID == msgID {
			entry.listeners = append(entry.listeners[:i], entry.listeners[i+1:]...)
			break
		}
	}
	if len(entry.listeners) == 0 {
		delete(t.entries, opID)
	}
}

// ListenerCount reports how many listeners are registered under opID —
// used by tests to check the multiplexing invariant in spec.md §8.3.
func (t *queryTable) ListenerCount(opID wire.OperationID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entries[opID]
	if !ok {
		return 0
	}
	return len(entry.listeners)
}

// EntryExists reports whether opID still has a pending entry.
func (t *queryTable) EntryExists(opID wire.OperationID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[opID]
	return ok
}

// Len reports the number of distinct operation ids with at least one
// pending listener, for metrics.Collector.SetPendingQueries.
func (t *queryTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
