package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldermesh/sectionnet/internal/address"
)

func TestMsgIDUniqueAndRoundTrips(t *testing.T) {
	a := NewMsgID()
	b := NewMsgID()

	assert.NotEqual(t, a, b)
	assert.Len(t, a.String(), 32)
}

func TestDeriveOperationIDIsDeterministic(t *testing.T) {
	payload := []byte("get_balance(alice)")

	id1 := DeriveOperationID(payload)
	id2 := DeriveOperationID(payload)
	assert.Equal(t, id1, id2)

	other := DeriveOperationID([]byte("get_balance(bob)"))
	assert.NotEqual(t, id1, other)
}

func TestMessageValidate(t *testing.T) {
	msg := Message{ID: NewMsgID(), Dst: Dst{Name: address.XorName{}}, Auth: AuthKindClient, Payload: []byte("x")}
	require.NoError(t, msg.Validate())

	unauth := msg
	unauth.Auth = AuthKindUnknown
	require.Error(t, unauth.Validate())

	badKey := msg
	badKey.Dst.SectionPK = []byte{1, 2, 3}
	require.Error(t, badKey.Validate())

	goodKey := msg
	goodKey.Dst.SectionPK = make([]byte, 48)
	require.NoError(t, goodKey.Validate())
}

func TestAuthKindString(t *testing.T) {
	assert.Equal(t, "client", AuthKindClient.String())
	assert.Equal(t, "node", AuthKindNode.String())
	assert.Equal(t, "section", AuthKindSection.String())
	assert.Equal(t, "unknown", AuthKindUnknown.String())
}
