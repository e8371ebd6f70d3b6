package tagexpr_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trc-go/trc/internal/tagexpr"
)

func TestMatchBareAtomIgnoresValue(t *testing.T) {
	set := tagexpr.NewSet()
	set.Add("kver:3_10")

	require.True(t, tagexpr.Match(tagexpr.Atom{Name: "kver"}, set))
}

func TestMatchValuedAtomRequiresExactValue(t *testing.T) {
	set := tagexpr.NewSet()
	set.Add("kver:3_10")

	require.True(t, tagexpr.Match(tagexpr.Atom{Name: "kver", Value: "3_10", HasValue: true}, set))
	require.False(t, tagexpr.Match(tagexpr.Atom{Name: "kver", Value: "3_12", HasValue: true}, set))
}

func TestMatchAlwaysTrue(t *testing.T) {
	require.True(t, tagexpr.Match(tagexpr.AlwaysTrue{}, tagexpr.NewSet()))
}

func TestMatchCompound(t *testing.T) {
	set := tagexpr.NewSet()
	set.Add("linux")

	expr := tagexpr.And{
		X: tagexpr.Atom{Name: "linux"},
		Y: tagexpr.Not{X: tagexpr.Atom{Name: "arm64"}},
	}

	require.True(t, tagexpr.Match(expr, set))

	set.Add("arm64")
	require.False(t, tagexpr.Match(expr, set))
}

func TestMatchOr(t *testing.T) {
	set := tagexpr.NewSet()
	set.Add("arm64")

	expr := tagexpr.Or{X: tagexpr.Atom{Name: "linux"}, Y: tagexpr.Atom{Name: "arm64"}}
	require.True(t, tagexpr.Match(expr, set))
}

func TestStringRoundTripPrecedence(t *testing.T) {
	expr := tagexpr.And{
		X: tagexpr.Or{X: tagexpr.Atom{Name: "a"}, Y: tagexpr.Atom{Name: "b"}},
		Y: tagexpr.Not{X: tagexpr.Atom{Name: "c"}},
	}

	require.Equal(t, "(a | b) & !c", expr.String())
}

func TestAtoms(t *testing.T) {
	expr := tagexpr.And{
		X: tagexpr.Atom{Name: "a"},
		Y: tagexpr.Or{X: tagexpr.Atom{Name: "b"}, Y: tagexpr.Atom{Name: "a"}},
	}

	got := tagexpr.Atoms(expr)
	require.Len(t, got, 3)
	require.Equal(t, "a", got[0].Name)
	require.Equal(t, "b", got[1].Name)
	require.Equal(t, "a", got[2].Name)
}
