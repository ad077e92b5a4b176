package dysfunction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldermesh/sectionnet/internal/address"
)

func name(b byte) address.XorName {
	var n address.XorName
	n[address.Len-1] = b
	return n
}

func TestTrackerProposesOfflineAtThreshold(t *testing.T) {
	tracker := NewTracker(time.Minute, 3)
	peer := name(1)
	base := time.Unix(1000, 0)

	assert.False(t, tracker.TrackIssue(peer, AeProbeMsgTimeout, base))
	assert.False(t, tracker.TrackIssue(peer, AeProbeMsgTimeout, base.Add(time.Second)))
	assert.True(t, tracker.TrackIssue(peer, AeProbeMsgTimeout, base.Add(2*time.Second)))
}

func TestTrackerPrunesOutsideWindow(t *testing.T) {
	tracker := NewTracker(10*time.Second, 2)
	peer := name(1)
	base := time.Unix(1000, 0)

	tracker.TrackIssue(peer, RequestOperation, base)
	require.Equal(t, 1, tracker.IssueCount(peer, base.Add(time.Second)))

	// Well outside the window: the earlier issue must have been pruned.
	assert.Equal(t, 0, tracker.IssueCount(peer, base.Add(time.Minute)))
}

func TestTrackerResetClearsHistory(t *testing.T) {
	tracker := NewTracker(time.Minute, 1)
	peer := name(1)
	now := time.Unix(1000, 0)

	tracker.TrackIssue(peer, PendingRequestOperation, now)
	require.Equal(t, 1, tracker.IssueCount(peer, now))

	tracker.Reset(peer)
	assert.Equal(t, 0, tracker.IssueCount(peer, now))
}

// TestProposeVoteNodesOfflineExcludesSubject is scenario S6: the proposal
// recipients are every elder except the subject of the proposal, even
// though the subject is itself an elder.
func TestProposeVoteNodesOfflineExcludesSubject(t *testing.T) {
	elders := []address.XorName{name(1), name(2), name(3), name(4), name(5), name(6), name(7), name(8)}
	n1 := name(8)

	recipients := ProposeVoteNodesOffline(n1, elders)

	assert.Len(t, recipients, 7)
	for _, r := range recipients {
		assert.False(t, r.Equal(n1), "subject must never be a recipient of its own offline proposal")
	}
}
