// Package bootstrap implements make_contact_with_nodes (spec.md §4.5): the
// seed-contact loop a fresh Session runs before it has any SectionTree
// knowledge of its own.
package bootstrap

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/eldermesh/sectionnet/internal/address"
	"github.com/eldermesh/sectionnet/internal/neterr"
	"github.com/eldermesh/sectionnet/internal/peer"
)

const (
	// nodesToContactPerStartupBatch is NODES_TO_CONTACT_PER_STARTUP_BATCH.
	nodesToContactPerStartupBatch = 3
	// initialWait is INITIAL_WAIT from spec.md §4.5.
	initialWait = 1 * time.Second
	// idleChecksBeforeNextBatch is the "two idle checks" spec.md §4.5
	// step 3 contacts the next seed batch after.
	idleChecksBeforeNextBatch = 2
)

// Sender is the minimal outbound capability bootstrap needs: send a
// message to a peer without any SectionTree knowledge yet. Session's
// SendRaw method satisfies this; bootstrap takes it as an interface instead
// of depending on the session package directly, so it can run against any
// sender (Session itself needs a populated SectionTree, which bootstrap is
// what produces).
type Sender interface {
	SendRaw(ctx context.Context, to peer.Peer, payload []byte) error
}

// TreeKnowledge reports whether the caller's SectionTree already covers
// dst — bootstrap stops as soon as this is true.
type TreeKnowledge interface {
	Covers(dst address.XorName) bool
}

// Contact runs spec.md §4.5's make_contact_with_nodes: send to seed
// batches of nodesToContactPerStartupBatch until the tree covers dst or
// the backoff budget (max_elapsed_time) is exhausted.
func Contact(ctx context.Context, seeds []peer.Peer, dst address.XorName, sender Sender, tree TreeKnowledge, payload []byte) error {
	if len(seeds) == 0 {
		return &neterr.NetworkContact{Seeds: 0}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 1500 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = 60 * time.Second
	bo.Reset()

	sendBatch := func(batch []peer.Peer) {
		for _, seed := range batch {
			if err := sender.SendRaw(ctx, seed, payload); err != nil {
				logrus.WithField("seed", seed).WithError(err).Debug("bootstrap: seed contact failed")
			}
		}
	}

	offset := 0
	nextBatch := func() []peer.Peer {
		if offset >= len(seeds) {
			// Seed list exhausted: keep retrying the tail batch, per
			// spec.md §4.5 step 4.
			start := len(seeds) - nodesToContactPerStartupBatch
			if start < 0 {
				start = 0
			}
			return seeds[start:]
		}
		end := offset + nodesToContactPerStartupBatch
		if end > len(seeds) {
			end = len(seeds)
		}
		batch := seeds[offset:end]
		offset = end
		return batch
	}

	sendBatch(nextBatch())

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(initialWait):
	}

	idle := 0
	for {
		if tree.Covers(dst) {
			return nil
		}
		idle++
		if idle > idleChecksBeforeNextBatch {
			sendBatch(nextBatch())
			idle = 0
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			return &neterr.NetworkContact{Seeds: len(seeds)}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
