package wire

import (
	"fmt"

	"github.com/eldermesh/sectionnet/internal/address"
)

// AuthKind distinguishes who is vouching for a message: an end-user client,
// a section elder acting on the network's behalf, or a plain node.
type AuthKind int

const (
	// AuthKindUnknown is the zero value and never a valid wire message.
	AuthKindUnknown AuthKind = iota
	// AuthKindClient marks a message authorised by a client-held keypair.
	AuthKindClient
	// AuthKindNode marks a message authorised by a single node's identity key.
	AuthKindNode
	// AuthKindSection marks a message authorised by a section's BLS share set.
	AuthKindSection
)

func (k AuthKind) String() string {
	switch k {
	case AuthKindClient:
		return "client"
	case AuthKindNode:
		return "node"
	case AuthKindSection:
		return "section"
	default:
		return "unknown"
	}
}

// Dst describes a message's destination: the XOR name being routed to, and
// the section public key the sender believes currently governs it. A
// mismatch between this key and the addressee's own key is what triggers
// an anti-entropy redirect.
type Dst struct {
	Name      address.XorName
	SectionPK []byte // 48-byte compressed BLS public key, opaque here
}

// Message is the envelope exchanged between client, node and section: an
// id, a destination descriptor, an authentication kind, and an opaque
// payload. The payload's own encoding is out of scope for this package
// (spec Non-goals) — Message only carries it.
type Message struct {
	ID      MsgID
	Dst     Dst
	Auth    AuthKind
	Payload []byte
}

// Validate checks the structural invariants every Message the session or
// dispatcher handles must satisfy before it's trusted further.
func (m Message) Validate() error {
	if m.Auth == AuthKindUnknown {
		return fmt.Errorf("wire: message %s has no authentication kind", m.ID)
	}
	if len(m.Dst.SectionPK) != 0 && len(m.Dst.SectionPK) != 48 {
		return fmt.Errorf("wire: message %s has malformed section key (%d bytes)", m.ID, len(m.Dst.SectionPK))
	}
	return nil
}

// AntiEntropyRedirect is a response variant a stale-section sender may
// receive in place of an ack or query result: it carries the current SAP
// for Prefix so the client can update its SectionTree and retry. This
// supplements spec.md's ack-wait rationale (best-effort timeout is safe
// because AE traffic, of which this is the client-visible half, keeps
// section knowledge converging in the background).
type AntiEntropyRedirect struct {
	Prefix           address.Prefix
	SectionPublicKey []byte
	Elders           []ElderAddr
	// ProofChain anchors SectionPublicKey back to the tree's genesis key,
	// the same chain SectionTree.Update verifies (spec.md §4.1).
	ProofChain [][]byte
}

// ElderAddr is the minimal addressing information carried in an AE
// redirect — enough for the caller to build a peer.Peer without this
// package needing to import the peer package.
type ElderAddr struct {
	Name address.XorName
	Addr string
}
