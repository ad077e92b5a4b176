// Package dispatch implements the node-side Dispatcher: a single-owner
// loop consuming Cmd values, each producing zero or more follow-up Cmds
// (spec.md §4.7), plus the cancellation broadcast described in §4.8.
package dispatch

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eldermesh/sectionnet/internal/address"
	"github.com/eldermesh/sectionnet/internal/dysfunction"
	"github.com/eldermesh/sectionnet/internal/peer"
	"github.com/eldermesh/sectionnet/internal/replication"
)

func unixTime(sec int64) time.Time { return time.Unix(sec, 0) }

// Cmd is the tagged union of everything the dispatcher loop can process.
// Concrete variants are the structs below; Handle type-switches on the
// concrete type the way the teacher's admin service type-switches on gRPC
// request kinds.
type Cmd interface {
	cmdName() string
}

// CleanupPeerLinks drops links whose peer is no longer a section member.
type CleanupPeerLinks struct {
	Keep map[address.XorName]struct{}
}

func (CleanupPeerLinks) cmdName() string { return "CleanupPeerLinks" }

// HandlePeerFailedSend records a dysfunction issue against Peer if it is a
// known section member; unknown peers are ignored.
type HandlePeerFailedSend struct {
	Peer        address.XorName
	KnownMember bool
}

func (HandlePeerFailedSend) cmdName() string { return "HandlePeerFailedSend" }

// EnqueueDataForReplication inserts a replication item, coalescing
// duplicates per spec.md §4.7.
type EnqueueDataForReplication struct {
	Item replication.Item
}

func (EnqueueDataForReplication) cmdName() string { return "EnqueueDataForReplication" }

// TrackNodeIssueInDysfunction records a typed issue against Peer and, if
// Peer has now crossed the dysfunction tracker's threshold, produces a
// ProposeVoteNodesOffline follow-up.
type TrackNodeIssueInDysfunction struct {
	Peer address.XorName
	Kind dysfunction.IssueKind
	At   int64 // unix seconds; avoids a time.Now() dependency in the cmd value itself
}

func (TrackNodeIssueInDysfunction) cmdName() string { return "TrackNodeIssueInDysfunction" }

// ProposeVoteNodesOffline builds an Offline proposal, excluding Subjects
// from the recipient elder set (spec.md scenario S6).
type ProposeVoteNodesOffline struct {
	Subjects []address.XorName
	Elders   []address.XorName
}

func (ProposeVoteNodesOffline) cmdName() string { return "ProposeVoteNodesOffline" }

// OfflineProposalSent is the derived Cmd ProposeVoteNodesOffline produces:
// the recipient set a comm layer should actually send the proposal to.
type OfflineProposalSent struct {
	Subjects   []address.XorName
	Recipients []address.XorName
}

func (OfflineProposalSent) cmdName() string { return "OfflineProposalSent" }

// ScheduleDkgTimeout and HandleDkgTimeout are the DKG lifecycle hooks this
// package models, without implementing DKG itself (an explicit Non-goal).
// DKG outcome and failure Cmds are not modelled. The two hooks carry just
// enough to demonstrate the cancellation gate from §4.8:
// ScheduleDkgTimeout arms a cancellable timer that, on expiry, submits
// HandleDkgTimeout back onto the dispatcher.
type ScheduleDkgTimeout struct {
	Generation uint64
	After      time.Duration
}

func (ScheduleDkgTimeout) cmdName() string { return "ScheduleDkgTimeout" }

type HandleDkgTimeout struct{ Generation uint64 }

func (HandleDkgTimeout) cmdName() string { return "HandleDkgTimeout" }

// Handler processes a single Cmd, returning follow-up Cmds or an error. A
// handler error terminates only the current Cmd, not the dispatcher loop
// (spec.md §4.7 "Failure semantics").
type Handler func(Cmd) ([]Cmd, error)

// Cancel is the broadcast cancellation flag from spec.md §4.8: a single
// bool readers observe the latest value of, modelled on a tokio watch
// channel (no direct Go stdlib equivalent — a changed-notification channel
// paired with the current value under a lock).
type Cancel struct {
	mu      sync.RWMutex
	flag    bool
	changed chan struct{}
}

// NewCancel creates a Cancel starting false.
func NewCancel() *Cancel {
	return &Cancel{changed: make(chan struct{})}
}

// Get reports the current cancellation state.
func (c *Cancel) Get() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.flag
}

// Set updates the cancellation state and wakes every caller blocked on
// Changed().
func (c *Cancel) Set(v bool) {
	c.mu.Lock()
	c.flag = v
	old := c.changed
	c.changed = make(chan struct{})
	c.mu.Unlock()
	close(old)
}

// Changed returns a channel that closes the next time Set is called.
func (c *Cancel) Changed() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.changed
}

// ScheduleDkgTimeoutWait is handle_scheduled_dkg_timeout (spec.md §4.8): it
// selects between a timer of length after and cancel's broadcast, the way a
// tokio::select! between a sleep and a watch::Receiver::changed() would.
// It returns (generation, true) once the timer fires, or (0, false) the
// moment cancel observes true — "every in-flight ScheduleDkgTimeout
// selection returns None without firing" (testable property 6). A Changed()
// wakeup with the flag still false (e.g. Set(false)) is spurious and the
// select resumes waiting on the same timer.
func ScheduleDkgTimeoutWait(cancel *Cancel, generation uint64, after time.Duration) (uint64, bool) {
	if cancel.Get() {
		return 0, false
	}
	timer := time.NewTimer(after)
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			if cancel.Get() {
				return 0, false
			}
			return generation, true
		case <-cancel.Changed():
			if cancel.Get() {
				return 0, false
			}
		}
	}
}

// Dispatcher is a single-owner Cmd processing loop: Cmds are pulled off
// in, handled one at a time, and any follow-up Cmds are processed directly
// (depth-first, without going through in) before the next Cmd is pulled —
// matching spec.md §5's
// "Dispatcher processes Cmds one at a time per instance" guarantee.
type Dispatcher struct {
	in      chan Cmd
	cancel  *Cancel
	handler Handler
}

// NewDispatcher creates a Dispatcher that calls handler for every Cmd it
// receives on in.
func NewDispatcher(bufSize int, handler Handler) *Dispatcher {
	return &Dispatcher{
		in:      make(chan Cmd, bufSize),
		cancel:  NewCancel(),
		handler: handler,
	}
}

// Submit enqueues cmd for processing. A send racing Stop's channel close
// (e.g. a ScheduleDkgTimeout timer firing the instant the dispatcher drops)
// is recovered rather than allowed to panic: Stop has already latched
// Cancel, so silently dropping the Cmd here is the same "no callback fires
// after drop" behaviour §4.8 asks for.
func (d *Dispatcher) Submit(cmd Cmd) {
	defer func() { _ = recover() }()
	d.in <- cmd
}

// SetHandler installs handler, replacing whatever NewDispatcher was given.
// This exists because DefaultHandler's ScheduleDkgTimeout case needs the
// Dispatcher's own Cancel and Submit to arm a cancellable timer — callers
// construct the Dispatcher first (with a nil handler), build the handler
// from d.Cancel()/d.Submit, then install it before calling Run.
func (d *Dispatcher) SetHandler(handler Handler) {
	d.handler = handler
}

// Cancel returns the dispatcher's cancellation cell, for DKG-style
// selections to observe.
func (d *Dispatcher) Cancel() *Cancel {
	return d.cancel
}

// Run drains d.in until the channel is closed, processing one Cmd at a
// time and feeding follow-up Cmds back in before moving on.
func (d *Dispatcher) Run() {
	for cmd := range d.in {
		d.process(cmd)
	}
}

func (d *Dispatcher) process(cmd Cmd) {
	followups, err := d.handler(cmd)
	if err != nil {
		logrus.WithField("cmd", cmd.cmdName()).WithError(err).Warn("dispatch: cmd handler failed")
		return
	}
	for _, f := range followups {
		d.process(f)
	}
}

// Stop sets the cancellation flag (spec.md §4.8's Drop behaviour) and
// closes the input channel so Run returns once drained.
func (d *Dispatcher) Stop() {
	d.cancel.Set(true)
	close(d.in)
}

// DefaultHandler implements the Cmd table from spec.md §4.7 for the
// variants this package models concretely; links and tracker are the
// collaborators real handlers delegate to. cancel and submit are the
// dispatcher's own Cancel cell and Submit method (see SetHandler), used to
// arm and feed back ScheduleDkgTimeout's cancellable timer.
func DefaultHandler(links *peer.Links, tracker *dysfunction.Tracker, queue *replication.Queue, members func() []address.XorName, now func() int64, cancel *Cancel, submit func(Cmd)) Handler {
	return func(cmd Cmd) ([]Cmd, error) {
		switch c := cmd.(type) {
		case CleanupPeerLinks:
			links.Cleanup(c.Keep)
			return nil, nil

		case EnqueueDataForReplication:
			queue.Enqueue(c.Item)
			return nil, nil

		case HandlePeerFailedSend:
			if !c.KnownMember {
				return nil, nil
			}
			at := now()
			shouldPropose := tracker.TrackIssue(c.Peer, dysfunction.RequestOperation, unixTime(at))
			if !shouldPropose {
				return nil, nil
			}
			return []Cmd{ProposeVoteNodesOffline{Subjects: []address.XorName{c.Peer}, Elders: members()}}, nil

		case TrackNodeIssueInDysfunction:
			shouldPropose := tracker.TrackIssue(c.Peer, c.Kind, unixTime(c.At))
			if !shouldPropose {
				return nil, nil
			}
			return []Cmd{ProposeVoteNodesOffline{Subjects: []address.XorName{c.Peer}, Elders: members()}}, nil

		case ProposeVoteNodesOffline:
			recipients := excludeSubjects(c.Elders, c.Subjects)
			return []Cmd{OfflineProposalSent{Subjects: c.Subjects, Recipients: recipients}}, nil

		case OfflineProposalSent:
			return nil, nil

		case ScheduleDkgTimeout:
			go func(generation uint64, after time.Duration) {
				if gen, fired := ScheduleDkgTimeoutWait(cancel, generation, after); fired {
					submit(HandleDkgTimeout{Generation: gen})
				}
			}(c.Generation, c.After)
			return nil, nil

		case HandleDkgTimeout:
			// DKG internals are out of scope (spec.md Non-goals); arriving
			// here only demonstrates that the timer fired before cancellation.
			return nil, nil

		default:
			return nil, nil
		}
	}
}

func excludeSubjects(elders []address.XorName, subjects []address.XorName) []address.XorName {
	skip := make(map[address.XorName]struct{}, len(subjects))
	for _, s := range subjects {
		skip[s] = struct{}{}
	}
	out := make([]address.XorName, 0, len(elders))
	for _, e := range elders {
		if _, excluded := skip[e]; excluded {
			continue
		}
		out = append(out, e)
	}
	return out
}
