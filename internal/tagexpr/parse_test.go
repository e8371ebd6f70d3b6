package tagexpr_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trc-go/trc/internal/tagexpr"
)

func TestParseEmptyIsAlwaysTrue(t *testing.T) {
	expr, err := tagexpr.Parse("   ")
	require.NoError(t, err)
	require.Equal(t, tagexpr.AlwaysTrue{}, expr)
}

func TestParseAtom(t *testing.T) {
	expr, err := tagexpr.Parse("linux")
	require.NoError(t, err)
	require.Equal(t, tagexpr.Atom{Name: "linux"}, expr)

	expr, err = tagexpr.Parse("kver:3_10")
	require.NoError(t, err)
	require.Equal(t, tagexpr.Atom{Name: "kver", Value: "3_10", HasValue: true}, expr)
}

func TestParsePrecedence(t *testing.T) {
	// "!" binds tighter than "&", which binds tighter than "|".
	expr, err := tagexpr.Parse("a | b & !c")
	require.NoError(t, err)
	require.Equal(t, tagexpr.Or{
		X: tagexpr.Atom{Name: "a"},
		Y: tagexpr.And{
			X: tagexpr.Atom{Name: "b"},
			Y: tagexpr.Not{X: tagexpr.Atom{Name: "c"}},
		},
	}, expr)
}

func TestParseParens(t *testing.T) {
	expr, err := tagexpr.Parse("(a | b) & c")
	require.NoError(t, err)
	require.Equal(t, tagexpr.And{
		X: tagexpr.Or{X: tagexpr.Atom{Name: "a"}, Y: tagexpr.Atom{Name: "b"}},
		Y: tagexpr.Atom{Name: "c"},
	}, expr)
}

func TestParseLeftAssociative(t *testing.T) {
	expr, err := tagexpr.Parse("a & b & c")
	require.NoError(t, err)
	require.Equal(t, tagexpr.And{
		X: tagexpr.And{X: tagexpr.Atom{Name: "a"}, Y: tagexpr.Atom{Name: "b"}},
		Y: tagexpr.Atom{Name: "c"},
	}, expr)
}

func TestParseRoundTrip(t *testing.T) {
	for _, src := range []string{"a", "!a", "a & b", "a | b", "(a | b) & !c"} {
		expr, err := tagexpr.Parse(src)
		require.NoError(t, err)

		reparsed, err := tagexpr.Parse(expr.String())
		require.NoError(t, err)
		require.Equal(t, expr, reparsed, "round trip through String() for %q", src)
	}
}

func TestParseErrors(t *testing.T) {
	cases := []string{"", "(a", "a &", "& a", "a b", "()"}

	for _, src := range cases {
		if src == "" {
			continue // empty parses to AlwaysTrue, covered separately
		}

		_, err := tagexpr.Parse(src)
		require.Error(t, err, "expected parse error for %q", src)

		var parseErr *tagexpr.ParseError

		require.True(t, errors.As(err, &parseErr))
		require.True(t, errors.Is(err, tagexpr.ErrParse))
	}
}
