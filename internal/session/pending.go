package session

import (
	"sync"

	"github.com/eldermesh/sectionnet/internal/wire"
)

// ackResult is what a single elder's response to a command contributes to
// the ack-wait loop: either a plain ack, or an error carrying the kind the
// elder reported.
type ackResult struct {
	ok      bool
	errKind string
	err     error
}

// pendingCmd is the PendingCmd entry from spec.md §3: a one-shot-per-ack
// channel fed by every elder response that arrives for msg_id. The count
// send_cmd needs to see before it can return is not stored here; SendCmd
// computes it from the elder set.
type pendingCmd struct {
	ch chan ackResult
}

// cmdTable is the pending_cmds map: a single RWMutex-guarded map, matching
// the teacher's CredentialStore/VirtualClusterStore idiom (a shared store
// keyed by id, insert/remove under one lock). spec.md's design notes
// suggest sharding to avoid a coarse lock; with critical sections this
// small (one map read or write), a single mutex doesn't contend enough in
// practice to earn that complexity.
type cmdTable struct {
	mu      sync.RWMutex
	entries map[wire.MsgID]*pendingCmd
}

func newCmdTable() *cmdTable {
	return &cmdTable{entries: make(map[wire.MsgID]*pendingCmd)}
}

// register inserts msg_id's entry. Callers must register before any bytes
// for msg_id leave the process — that ordering is the first testable
// property in spec.md §8.
func (t *cmdTable) register(id wire.MsgID, bufSize int) *pendingCmd {
	pc := &pendingCmd{ch: make(chan ackResult, bufSize)}
	t.mu.Lock()
	t.entries[id] = pc
	t.mu.Unlock()
	return pc
}

// deliver routes a response to msg_id's listener, if one is still
// registered. It never blocks indefinitely: the channel is sized to the
// elder count, so every elder can deliver exactly once without a reader.
func (t *cmdTable) deliver(id wire.MsgID, res ackResult) bool {
	t.mu.RLock()
	pc, ok := t.entries[id]
	t.mu.RUnlock()
	if !ok {
		return false
	}
	select {
	case pc.ch <- res:
		return true
	default:
		return false
	}
}

// remove deletes msg_id's entry. Always called on send_cmd's exit path.
func (t *cmdTable) remove(id wire.MsgID) {
	t.mu.Lock()
	delete(t.entries, id)
	t.mu.Unlock()
}

// has reports whether msg_id currently has a registered entry — used by
// tests to assert the bookkeeping invariant in spec.md §8.1.
func (t *cmdTable) has(id wire.MsgID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.entries[id]
	return ok
}

// Len reports how many commands are currently in flight.
func (t *cmdTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
