package registry

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/FocuswithJustin/phyloconv/core/errors"
)

func TestNewIDSequential(t *testing.T) {
	r := New("")
	require.Equal(t, "otu1", r.NewID("otu"))
	require.Equal(t, "otu2", r.NewID("otu"))
	require.Equal(t, "seq1", r.NewID("seq"))

	// Observed ids are skipped.
	r.Observe("otu3")
	require.Equal(t, "otu4", r.NewID("otu"))
	require.Equal(t, 5, r.Count())
}

func TestNewIDUUID(t *testing.T) {
	r := New(UUID)
	calls := 0
	fixed := []uuid.UUID{
		uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		uuid.MustParse("22222222-2222-2222-2222-222222222222"),
	}
	r.newUUID = func() uuid.UUID {
		u := fixed[calls]
		calls++
		return u
	}

	first := r.NewID("n")
	require.Equal(t, "n11111111111111111111111111111111", first)
	second := r.NewID("n")
	require.Equal(t, "n22222222222222222222222222222222", second, "a colliding uuid must be redrawn")
	require.False(t, strings.Contains(second, "-"))
}

func TestRegisterID(t *testing.T) {
	r := New(Sequential)
	require.NoError(t, r.RegisterID("a"))
	err := r.RegisterID("a")
	require.Error(t, err)

	var dup *errors.DuplicateIDError
	require.True(t, errors.As(err, &dup))
	require.Equal(t, "a", dup.ID)
	require.True(t, errors.Is(err, errors.ErrConsistency))

	// NewID never returns a registered id.
	require.NoError(t, r.RegisterID("x1"))
	require.Equal(t, "x2", r.NewID("x"))
}

func TestResolveLabel(t *testing.T) {
	r := New(Sequential)
	p := LabelPolicy{}

	require.Equal(t, "Homo", r.ResolveLabel("otu1", "Homo", "taxa", p))
	require.Equal(t, "otu2_Homo", r.ResolveLabel("otu2", "Homo", "taxa", p))

	// A third claimant whose id-prefixed form collides gets a counter.
	r.ResolveLabel("otu9", "otu3_Homo", "taxa", p)
	require.Equal(t, "otu3_Homo_2", r.ResolveLabel("otu3", "Homo", "taxa", p))

	// Repeated resolution returns the recorded label.
	require.Equal(t, "Homo", r.ResolveLabel("otu1", "Pan", "taxa", p))
	require.Equal(t, "otu2_Homo", r.ResolveLabel("otu2", "Homo", "taxa", p))

	// Categories are independent.
	require.Equal(t, "Homo", r.ResolveLabel("tree1", "Homo", "trees", p))

	label, ok := r.EditedLabel("otu2")
	require.True(t, ok)
	require.Equal(t, "otu2_Homo", label)
	owner, ok := r.Owner("Homo", "taxa")
	require.True(t, ok)
	require.Equal(t, "otu1", owner)

	_, ok = r.EditedLabel("missing")
	require.False(t, ok)
}

func TestResolveLabelDeterministic(t *testing.T) {
	resolve := func() []string {
		r := New(Sequential)
		var out []string
		for _, id := range []string{"a", "b", "c", "d"} {
			out = append(out, r.ResolveLabel(id, "same", "cat", LabelPolicy{}))
		}
		return out
	}
	first := resolve()
	require.Equal(t, []string{"same", "b_same", "c_same", "d_same"}, first)
	require.Equal(t, first, resolve())
}

func TestResolveLabelPolicy(t *testing.T) {
	r := New(Sequential)
	p := LabelPolicy{
		Escape:    func(s string) string { return strings.ReplaceAll(s, " ", "_") },
		MaxLength: 6,
	}
	require.Equal(t, "Homo_s", r.ResolveLabel("o1", "Homo sapiens", "taxa", p))
	// o2_Homo sapiens -> o2_Hom, which is free.
	require.Equal(t, "o2_Hom", r.ResolveLabel("o2", "Homo sapiens", "taxa", p))
	r.ResolveLabel("o9", "o3_Hom", "taxa", p)
	got := r.ResolveLabel("o3", "Homo sapiens", "taxa", p)
	require.Equal(t, "o3_H_2", got)
	require.LessOrEqual(t, len([]rune(got)), 6)
}

func TestReset(t *testing.T) {
	r := New(Sequential)
	require.NoError(t, r.RegisterID("a"))
	r.ResolveLabel("a", "x", "cat", LabelPolicy{})
	r.NewID("n")

	r.Reset()
	require.NoError(t, r.RegisterID("a"))
	require.Equal(t, "x", r.ResolveLabel("b", "x", "cat", LabelPolicy{}))
	require.Equal(t, "n1", r.NewID("n"))
}
