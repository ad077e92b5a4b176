package section

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldermesh/sectionnet/internal/address"
	"github.com/eldermesh/sectionnet/internal/peer"
)

type alwaysTrustVerifier struct{ trust bool }

func (v alwaysTrustVerifier) Verify(genesisKey []byte, chain ProofChain, targetKey []byte) bool {
	return v.trust
}

func makeSAP(prefix address.Prefix, elderCount int) Authority {
	elders := make([]peer.Peer, elderCount)
	for i := range elders {
		name := prefix.Name()
		name[address.Len-1] = byte(i + 1)
		elders[i] = peer.Peer{Name: name, Addr: "127.0.0.1:0"}
	}
	pk := make([]byte, 48)
	pk[0] = prefix.Name()[0]
	return Authority{Prefix: prefix, PublicKey: pk, Elders: elders}
}

func TestInsertWithoutChainThenClosestExactMatch(t *testing.T) {
	tree := NewTree([]byte("genesis"), alwaysTrustVerifier{trust: true})
	sap := makeSAP(address.MustParsePrefix(""), MinElders)
	require.NoError(t, tree.InsertWithoutChain(sap))

	got, ok := tree.Closest(address.XorName{0x42})
	require.True(t, ok)
	assert.Equal(t, sap.Prefix, got.Prefix)
}

func TestUpdateRejectsUnanchoredChain(t *testing.T) {
	tree := NewTree([]byte("genesis"), alwaysTrustVerifier{trust: false})
	sap := makeSAP(address.MustParsePrefix(""), MinElders)
	err := tree.Update(sap, ProofChain{})
	assert.Error(t, err)
	assert.Equal(t, 0, tree.KnownSectionsCount())
}

func TestSplitReplacesParentAtomically(t *testing.T) {
	tree := NewTree([]byte("genesis"), alwaysTrustVerifier{trust: true})
	parent := makeSAP(address.MustParsePrefix(""), MinElders)
	require.NoError(t, tree.InsertWithoutChain(parent))

	zeroPfx, onePfx := address.MustParsePrefix("0"), address.MustParsePrefix("1")
	zero, one := makeSAP(zeroPfx, MinElders), makeSAP(onePfx, MinElders)

	require.NoError(t, tree.Update(zero, ProofChain{Keys: [][]byte{[]byte("genesis"), zero.PublicKey}}))
	require.NoError(t, tree.Update(one, ProofChain{Keys: [][]byte{[]byte("genesis"), one.PublicKey}}))

	assert.Equal(t, 2, tree.KnownSectionsCount(), "parent prefix must be replaced by its two children")

	zeroName := address.XorName{0x00}
	got, ok := tree.Closest(zeroName)
	require.True(t, ok)
	assert.Equal(t, zeroPfx, got.Prefix)

	oneName := address.XorName{0xFF}
	got, ok = tree.Closest(oneName)
	require.True(t, ok)
	assert.Equal(t, onePfx, got.Prefix)
}

func TestClosestFallsBackToLongestCommonPrefix(t *testing.T) {
	tree := NewTree([]byte("genesis"), alwaysTrustVerifier{trust: true})
	left := makeSAP(address.MustParsePrefix("00"), MinElders)
	right := makeSAP(address.MustParsePrefix("11"), MinElders)
	require.NoError(t, tree.InsertWithoutChain(left))
	require.NoError(t, tree.InsertWithoutChain(right))

	target := address.XorName{0b0100_0000} // matches neither, closer to "00"
	got, ok := tree.Closest(target)
	require.True(t, ok)
	assert.Equal(t, left.Prefix, got.Prefix)
}

func TestClosestHonoursIgnoreList(t *testing.T) {
	tree := NewTree([]byte("genesis"), alwaysTrustVerifier{trust: true})
	only := makeSAP(address.MustParsePrefix(""), MinElders)
	require.NoError(t, tree.InsertWithoutChain(only))

	_, ok := tree.Closest(address.XorName{0x01}, only.Prefix)
	assert.False(t, ok)
}

func TestSectionsDAGIsOrderedByPrefix(t *testing.T) {
	tree := NewTree([]byte("genesis"), alwaysTrustVerifier{trust: true})
	a := makeSAP(address.MustParsePrefix("1"), MinElders)
	b := makeSAP(address.MustParsePrefix("0"), MinElders)
	require.NoError(t, tree.InsertWithoutChain(a))
	require.NoError(t, tree.InsertWithoutChain(b))

	dag := tree.SectionsDAG()
	require.Len(t, dag, 2)
	assert.Equal(t, "0", dag[0].Prefix.String())
	assert.Equal(t, "1", dag[1].Prefix.String())
}

func TestSAPValidateRejectsTooFewElders(t *testing.T) {
	sap := makeSAP(address.MustParsePrefix(""), MinElders-1)
	assert.Error(t, sap.Validate())
}

func TestSAPValidateRejectsMismatchedElder(t *testing.T) {
	sap := makeSAP(address.MustParsePrefix("1"), MinElders)
	sap.Elders[0].Name = address.XorName{0x00} // doesn't match prefix "1"
	assert.Error(t, sap.Validate())
}
