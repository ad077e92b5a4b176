package address

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrefixMatches(t *testing.T) {
	p := MustParsePrefix("101")
	match := XorName{}
	match[0] = 0b1010_0000
	nomatch := XorName{}
	nomatch[0] = 0b1000_0000

	assert.True(t, p.Matches(match))
	assert.False(t, p.Matches(nomatch))
}

func TestPrefixIsCompatible(t *testing.T) {
	parent := MustParsePrefix("10")
	child := MustParsePrefix("101")
	sibling := MustParsePrefix("110")

	assert.True(t, parent.IsCompatible(child))
	assert.True(t, child.IsCompatible(parent))
	assert.False(t, child.IsCompatible(sibling))
}

func TestPrefixSiblingsSplitCover(t *testing.T) {
	p := MustParsePrefix("10")
	zero, one := p.Siblings()

	assert.Equal(t, "100", zero.String())
	assert.Equal(t, "101", one.String())
	assert.True(t, zero.IsExtensionOf(p))
	assert.True(t, one.IsExtensionOf(p))
	assert.False(t, zero.IsCompatible(one))
}

func TestPrefixParentRoundTrip(t *testing.T) {
	p := MustParsePrefix("1011")
	assert.Equal(t, "101", p.Parent().String())
}

func TestPrefixLessTieBreak(t *testing.T) {
	a := MustParsePrefix("100")
	b := MustParsePrefix("101")
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
}

func TestEmptyPrefixMatchesEverything(t *testing.T) {
	var p Prefix
	assert.Equal(t, 0, p.Len())
	assert.True(t, p.Matches(XorName{0xFF}))
}
