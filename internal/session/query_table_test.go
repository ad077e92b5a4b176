package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldermesh/sectionnet/internal/wire"
)

func TestQueryTableTwoConcurrentListenersShareOperationID(t *testing.T) {
	tbl := newQueryTable()
	opID := wire.DeriveOperationID([]byte("get chunk X"))

	msgA, msgB := wire.NewMsgID(), wire.NewMsgID()
	chA := tbl.register(opID, msgA)
	chB := tbl.register(opID, msgB)

	require.Equal(t, 2, tbl.ListenerCount(opID), "two concurrent send_query calls for the same query must produce two listener entries")

	tbl.deliver(opID, "shared response")
	assert.Equal(t, "shared response", <-chA)
	assert.Equal(t, "shared response", <-chB)
}

func TestQueryTableRemovingOneListenerLeavesOtherUnaffected(t *testing.T) {
	tbl := newQueryTable()
	opID := wire.DeriveOperationID([]byte("get chunk X"))

	msgA, msgB := wire.NewMsgID(), wire.NewMsgID()
	chB := tbl.register(opID, msgA)
	_ = chB
	tbl.register(opID, msgB)

	tbl.remove(opID, msgA)
	require.Equal(t, 1, tbl.ListenerCount(opID))
	require.True(t, tbl.EntryExists(opID))

	tbl.remove(opID, msgB)
	assert.Equal(t, 0, tbl.ListenerCount(opID))
	assert.False(t, tbl.EntryExists(opID), "entry must be erased once its listener set is empty")
}

func TestQueryTableDeliverToUnknownOperationIDIsNoop(t *testing.T) {
	tbl := newQueryTable()
	assert.NotPanics(t, func() {
		tbl.deliver(wire.DeriveOperationID([]byte("nothing registered")), "x")
	})
}
