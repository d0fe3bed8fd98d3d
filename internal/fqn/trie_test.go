package fqn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrieInsertLookupContains(t *testing.T) {
	tr := NewTrie()
	tr.Insert("myproject.pkg.service.ProcessOrder", KindFunction)

	assert.True(t, tr.Contains("myproject.pkg.service.ProcessOrder"))
	kind, ok := tr.Lookup("myproject.pkg.service.ProcessOrder")
	require.True(t, ok)
	assert.Equal(t, KindFunction, kind)

	assert.False(t, tr.Contains("myproject.pkg.service"))
	assert.False(t, tr.Contains("myproject.pkg.service.OtherFunc"))
}

func TestTrieInsertIdempotent(t *testing.T) {
	tr := NewTrie()
	tr.Insert("a.b.C", KindClass)
	tr.Insert("a.b.C", KindClass)

	assert.Equal(t, 1, tr.Len())
	kind, ok := tr.Lookup("a.b.C")
	require.True(t, ok)
	assert.Equal(t, KindClass, kind)
}

func TestTrieInsertConflictingKindKeepsFirst(t *testing.T) {
	tr := NewTrie()
	tr.Insert("a.b.Thing", KindClass)
	tr.Insert("a.b.Thing", KindFunction)

	kind, ok := tr.Lookup("a.b.Thing")
	require.True(t, ok)
	assert.Equal(t, KindClass, kind, "first-inserted kind should win on conflict")
	assert.Equal(t, 1, tr.Len())
}

func TestTriePrefixScan(t *testing.T) {
	tr := NewTrie()
	tr.Insert("proj.mod.A", KindClass)
	tr.Insert("proj.mod.A.method1", KindMethod)
	tr.Insert("proj.mod.A.method2", KindMethod)
	tr.Insert("proj.mod.B", KindClass)
	tr.Insert("proj.other.C", KindClass)

	results := tr.PrefixScan("proj.mod")
	require.Len(t, results, 4)

	var fqns []string
	for _, e := range results {
		fqns = append(fqns, e.FQN)
	}
	assert.Contains(t, fqns, "proj.mod.A")
	assert.Contains(t, fqns, "proj.mod.A.method1")
	assert.Contains(t, fqns, "proj.mod.A.method2")
	assert.Contains(t, fqns, "proj.mod.B")
	assert.NotContains(t, fqns, "proj.other.C")

	// Results are sorted lexicographically.
	for i := 1; i < len(fqns); i++ {
		assert.LessOrEqual(t, fqns[i-1], fqns[i])
	}
}

func TestTriePrefixScanNoMatch(t *testing.T) {
	tr := NewTrie()
	tr.Insert("proj.mod.A", KindClass)

	assert.Empty(t, tr.PrefixScan("proj.nothere"))
}

func TestTriePrefixScanEmptyPrefixScansAll(t *testing.T) {
	tr := NewTrie()
	tr.Insert("a.B", KindClass)
	tr.Insert("c.D", KindFunction)

	results := tr.PrefixScan("")
	assert.Len(t, results, 2)
}

func TestTrieEmptyFQNIgnored(t *testing.T) {
	tr := NewTrie()
	tr.Insert("", KindClass)

	assert.Equal(t, 0, tr.Len())
	assert.False(t, tr.Contains(""))
}
