// Package peer holds the Peer identity and the PeerLinks connection pool
// used by both the client Session and the node Dispatcher to reach other
// nodes on the network.
package peer

import (
	"github.com/eldermesh/sectionnet/internal/address"
)

// Peer identifies a single node: its stable XorName identity and its
// current network address. Identity is Name; Addr may be updated across
// the peer's lifetime (e.g. after it migrates or changes listening port).
type Peer struct {
	Name address.XorName
	Addr string
}

// String renders the peer for logging.
func (p Peer) String() string {
	return p.Name.String() + "@" + p.Addr
}

// Equal compares peers by identity only — two Peer values with the same
// Name but different Addr are still "the same peer" for map-keying
// purposes, which is why PeerLinks keys its pool by Name, not by the full
// struct.
func (p Peer) Equal(other Peer) bool {
	return p.Name == other.Name
}
