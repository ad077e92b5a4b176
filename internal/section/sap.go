// Package section implements the SectionTree: the authoritative, prefix
// keyed mapping from address space regions to their current elder set and
// section key.
package section

import (
	"fmt"

	"github.com/eldermesh/sectionnet/internal/address"
	"github.com/eldermesh/sectionnet/internal/peer"
)

// MinElders is the minimum elder count a valid SAP must carry.
const MinElders = 7

// Authority (SAP — Section Authority Provider) is the canonical record for
// a section at a point in time: its prefix, the BLS public key its elders
// share, and the ordered elder set itself.
type Authority struct {
	Prefix    address.Prefix
	PublicKey []byte // 48-byte compressed BLS public key
	Elders    []peer.Peer
}

// Validate checks the SAP invariants from spec.md §3: every elder's name
// is matched by Prefix, there are at least MinElders of them, and the
// public key looks like a BLS48 key.
func (a Authority) Validate() error {
	if len(a.Elders) < MinElders {
		return fmt.Errorf("section: SAP for %s has %d elders, need >= %d", a.Prefix, len(a.Elders), MinElders)
	}
	if len(a.PublicKey) != 48 {
		return fmt.Errorf("section: SAP for %s has malformed public key (%d bytes)", a.Prefix, len(a.PublicKey))
	}
	for _, e := range a.Elders {
		if !a.Prefix.Matches(e.Name) {
			return fmt.Errorf("section: elder %s is not covered by prefix %s", e.Name, a.Prefix)
		}
	}
	return nil
}

// Supermajority returns floor(2n/3)+1 for an elder set of size n — the
// number of matching acks or errors needed to accept a command outcome.
func Supermajority(n int) int {
	return (2*n)/3 + 1
}
