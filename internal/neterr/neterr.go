// Package neterr defines the error taxonomy shared by the client session
// and the node dispatcher: topology, transport, protocol and local
// failures, each carrying the fields callers need to react sensibly.
package neterr

import (
	"fmt"

	"github.com/eldermesh/sectionnet/internal/address"
)

// --- Topology errors ---

// NoNetworkKnowledge is returned when no SAP covers addr at all.
type NoNetworkKnowledge struct {
	Addr address.XorName
}

func (e *NoNetworkKnowledge) Error() string {
	return fmt.Sprintf("no network knowledge of address %s", e.Addr)
}

// InsufficientElderConnections is returned when fewer elders than required
// could be reached over the transport.
type InsufficientElderConnections struct {
	Have, Need int
}

func (e *InsufficientElderConnections) Error() string {
	return fmt.Sprintf("insufficient elder connections: have %d, need %d", e.Have, e.Need)
}

// InsufficientElderKnowledge is returned by get_cmd_elders when the known
// SAP has fewer elders than the command supermajority threshold requires.
type InsufficientElderKnowledge struct {
	Have, Need int
	SectionKey string
}

func (e *InsufficientElderKnowledge) Error() string {
	return fmt.Sprintf("insufficient elder knowledge for section %s: have %d, need %d", e.SectionKey, e.Have, e.Need)
}

// NetworkContact is returned by bootstrap when no seed ever produced a SAP
// covering the target address before the backoff budget expired.
type NetworkContact struct {
	Seeds int
}

func (e *NetworkContact) Error() string {
	return fmt.Sprintf("failed to contact network via %d seed(s)", e.Seeds)
}

// --- Transport errors ---

// QuicP2PConnection is returned when a Link could not establish a fresh
// connection to a peer.
type QuicP2PConnection struct {
	Peer string
	Err  error
}

func (e *QuicP2PConnection) Error() string {
	return fmt.Sprintf("connection to %s failed: %v", e.Peer, e.Err)
}

func (e *QuicP2PConnection) Unwrap() error { return e.Err }

// QuicP2PSend is returned when a stream write failed, possibly because the
// underlying connection was lost.
type QuicP2PSend struct {
	Peer string
	Err  error
}

func (e *QuicP2PSend) Error() string {
	return fmt.Sprintf("send to %s failed: %v", e.Peer, e.Err)
}

func (e *QuicP2PSend) Unwrap() error { return e.Err }

// FailedSend is a summary error recorded against a single peer after
// exhausting retries in send_msg's fan-out.
type FailedSend struct {
	Peer string
}

func (e *FailedSend) Error() string {
	return fmt.Sprintf("failed to send to peer %s", e.Peer)
}

// --- Protocol errors ---

// ErrorCmd is returned by Session.SendCmd when a supermajority of elders
// reported the same data error for msg_id.
type ErrorCmd struct {
	Source error
	MsgID  string
}

func (e *ErrorCmd) Error() string {
	return fmt.Sprintf("cmd %s rejected: %v", e.MsgID, e.Source)
}

func (e *ErrorCmd) Unwrap() error { return e.Source }

// NoResponse is returned by Session.SendQuery when every listener channel
// closed without producing any response.
type NoResponse struct {
	Elders int
}

func (e *NoResponse) Error() string {
	return fmt.Sprintf("no response from any of %d elders", e.Elders)
}

// UnknownOperationID is returned when a response arrives for an operation
// id with no registered listener.
type UnknownOperationID struct {
	OperationID string
}

func (e *UnknownOperationID) Error() string {
	return fmt.Sprintf("response for unknown operation id %s", e.OperationID)
}

// --- Local errors ---

// ChunkNotFound is returned by local storage lookups.
type ChunkNotFound struct {
	Name address.XorName
}

func (e *ChunkNotFound) Error() string {
	return fmt.Sprintf("chunk not found: %s", e.Name)
}

var (
	// ErrDataExists is returned when a chunk write collides with an existing,
	// immutable chunk of the same address.
	ErrDataExists = fmt.Errorf("data already exists")
	// ErrNotEnoughSpace is returned when local storage is full.
	ErrNotEnoughSpace = fmt.Errorf("not enough space")
)
