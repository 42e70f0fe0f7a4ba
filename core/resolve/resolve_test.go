package resolve

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FocuswithJustin/phyloconv/core/errors"
	"github.com/FocuswithJustin/phyloconv/core/event"
)

func otu(id string) Key    { return Key{event.ContentOTU, id} }
func otuSet(id string) Key { return Key{event.ContentOTUSet, id} }
func charSet(id string) Key {
	return Key{event.ContentCharacterSet, id}
}

func TestRequire(t *testing.T) {
	r := New()
	r.Declare(otu("t1"))
	require.True(t, r.Has(otu("t1")))
	require.False(t, r.Has(otuSet("t1")), "keys of different types must not collide")

	require.NoError(t, r.Require("s1", otu("t1")))
	err := r.Require("s2", otu("t9"))
	var dl *errors.DanglingLinkError
	require.True(t, errors.As(err, &dl))
	require.Equal(t, "s2", dl.From)
	require.Equal(t, "t9", dl.To)
	require.Equal(t, "OTU", dl.Kind)
}

func TestVerifyLinks(t *testing.T) {
	r := New()
	r.Link("s1", otu("t1"))
	r.Link("s2", otu("t2"))
	r.Declare(otu("t1"))
	err := r.VerifyLinks()
	require.ErrorIs(t, err, errors.ErrConsistency)
	require.Contains(t, err.Error(), `"t2"`)

	r.Declare(otu("t2"))
	require.NoError(t, r.VerifyLinks())
}

func TestExpandNested(t *testing.T) {
	r := New()
	r.DefineSet(otuSet("apes"), []Key{otu("Homo"), otu("Pan"), otuSet("gorillas")}, nil)
	r.DefineSet(otuSet("gorillas"), []Key{otu("Gorilla"), otu("Pan")}, nil)

	x, err := r.Expand(otuSet("apes"))
	require.NoError(t, err)
	require.Equal(t, []Key{otu("Homo"), otu("Pan"), otu("Gorilla")}, x.Members)
}

func TestExpandIntervals(t *testing.T) {
	r := New()
	r.DefineSet(charSet("first"), nil, []Interval{{0, 3}, {10, 12}})
	r.DefineSet(charSet("all"), []Key{charSet("first")}, []Interval{{3, 5}, {11, 20}})

	x, err := r.Expand(charSet("all"))
	require.NoError(t, err)
	require.Equal(t, []Interval{{0, 5}, {10, 20}}, x.Intervals)
	require.True(t, x.Contains(4))
	require.False(t, x.Contains(5))
	require.True(t, x.Contains(19))
}

func TestExpandDiamond(t *testing.T) {
	// a -> b, a -> c, b -> d, c -> d is not a cycle.
	r := New()
	r.DefineSet(charSet("a"), []Key{charSet("b"), charSet("c")}, nil)
	r.DefineSet(charSet("b"), []Key{charSet("d")}, nil)
	r.DefineSet(charSet("c"), []Key{charSet("d")}, nil)
	r.DefineSet(charSet("d"), nil, []Interval{{0, 1}})
	require.NoError(t, r.ExpandAll())
}

func TestExpandCycle(t *testing.T) {
	tests := []struct {
		name     string
		define   func(r *Resolver)
		root     Key
		wantPath []string
	}{
		{
			name: "self reference",
			define: func(r *Resolver) {
				r.DefineSet(charSet("A"), []Key{charSet("A")}, []Interval{{0, 3}})
			},
			root:     charSet("A"),
			wantPath: []string{"A", "A"},
		},
		{
			name: "transitive",
			define: func(r *Resolver) {
				r.DefineSet(charSet("A"), []Key{charSet("B")}, []Interval{{0, 3}})
				r.DefineSet(charSet("B"), []Key{charSet("A")}, []Interval{{1, 2}})
			},
			root:     charSet("A"),
			wantPath: []string{"A", "B", "A"},
		},
		{
			name: "cycle below root",
			define: func(r *Resolver) {
				r.DefineSet(otuSet("root"), []Key{otu("x"), otuSet("B")}, nil)
				r.DefineSet(otuSet("B"), []Key{otuSet("C")}, nil)
				r.DefineSet(otuSet("C"), []Key{otuSet("B")}, nil)
			},
			root:     otuSet("root"),
			wantPath: []string{"B", "C", "B"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New()
			tt.define(r)
			_, err := r.Expand(tt.root)
			require.Error(t, err)
			var ce *errors.CircularReferenceError
			require.True(t, errors.As(err, &ce), "got %T: %v", err, err)
			require.Equal(t, tt.wantPath, ce.Path)
			require.ErrorIs(t, err, errors.ErrConsistency)
		})
	}
}

func TestExpandLongChain(t *testing.T) {
	r := New()
	const n = 50000
	for i := 0; i < n; i++ {
		var members []Key
		if i+1 < n {
			members = []Key{otuSet(strconv.Itoa(i + 1))}
		} else {
			members = []Key{otu("leaf")}
		}
		r.DefineSet(otuSet(strconv.Itoa(i)), members, nil)
	}
	x, err := r.Expand(otuSet("0"))
	require.NoError(t, err)
	require.Equal(t, []Key{otu("leaf")}, x.Members)
}

func TestExpandUndefinedNestedSet(t *testing.T) {
	r := New()
	r.DefineSet(otuSet("a"), []Key{otuSet("missing")}, nil)
	_, err := r.Expand(otuSet("a"))
	var dl *errors.DanglingLinkError
	require.True(t, errors.As(err, &dl))
	require.Equal(t, "missing", dl.To)

	_, err = r.Expand(otuSet("never"))
	require.Error(t, err)
}

func TestReset(t *testing.T) {
	r := New()
	r.Declare(otu("a"))
	r.DefineSet(otuSet("s"), nil, nil)
	r.Link("x", otu("b"))
	r.Reset()
	require.False(t, r.Has(otu("a")))
	require.Empty(t, r.Sets())
	require.NoError(t, r.VerifyLinks())
}

func TestMergeIntervals(t *testing.T) {
	require.Nil(t, MergeIntervals(nil))
	require.Equal(t, []Interval{{0, 4}}, MergeIntervals([]Interval{{2, 4}, {0, 2}, {1, 1}}))
	require.Equal(t, []Interval{{0, 1}, {2, 3}}, MergeIntervals([]Interval{{2, 3}, {0, 1}}))
}
