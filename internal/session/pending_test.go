package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldermesh/sectionnet/internal/wire"
)

func TestCmdTableRegisterBeforeDeliver(t *testing.T) {
	tbl := newCmdTable()
	id := wire.NewMsgID()

	assert.False(t, tbl.has(id), "must not be registered before register() is called")
	pc := tbl.register(id, 1)
	assert.True(t, tbl.has(id), "spec.md §5: entry must be visible before any bytes leave the process")

	ok := tbl.deliver(id, ackResult{ok: true})
	require.True(t, ok)

	res := <-pc.ch
	assert.True(t, res.ok)
}

func TestCmdTableDeliverToUnknownIDIsNoop(t *testing.T) {
	tbl := newCmdTable()
	ok := tbl.deliver(wire.NewMsgID(), ackResult{ok: true})
	assert.False(t, ok)
}

func TestCmdTableRemoveErasesEntry(t *testing.T) {
	tbl := newCmdTable()
	id := wire.NewMsgID()
	tbl.register(id, 1)
	require.Equal(t, 1, tbl.Len())

	tbl.remove(id)
	assert.Equal(t, 0, tbl.Len())
	assert.False(t, tbl.has(id))
}

func TestCmdTableDeliverNeverBlocksOnFullChannel(t *testing.T) {
	tbl := newCmdTable()
	id := wire.NewMsgID()
	pc := tbl.register(id, 1)
	require.True(t, tbl.deliver(id, ackResult{ok: true}))

	// Channel is now full (buffer size 1); a second delivery must not
	// block, and must report that it was dropped.
	assert.False(t, tbl.deliver(id, ackResult{ok: true}))

	<-pc.ch
}
