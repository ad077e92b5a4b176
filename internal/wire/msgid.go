package wire

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// MsgID is a unique 128-bit identifier generated uniformly at random for
// every outbound message. It is the key pending_cmds is indexed by.
type MsgID [16]byte

// NewMsgID generates a fresh random message id.
func NewMsgID() MsgID {
	return MsgID(uuid.New())
}

// String renders the id as a hex string.
func (m MsgID) String() string {
	return hex.EncodeToString(m[:])
}

// OperationID is a 256-bit content hash derived deterministically from a
// query: identical queries produce identical ids, which is what lets
// pending_queries multiplex several concurrent callers of the same query
// onto the shared set of in-flight listeners.
type OperationID [32]byte

// String renders the id as a hex string.
func (o OperationID) String() string {
	return hex.EncodeToString(o[:])
}

// DeriveOperationID computes the operation id for a query from its
// canonical encoding. Callers are responsible for producing a canonical
// byte representation of the query (e.g. via a stable field order) before
// calling this — DeriveOperationID itself only hashes.
func DeriveOperationID(canonicalQueryBytes []byte) OperationID {
	return OperationID(sha256.Sum256(canonicalQueryBytes))
}
