// Package matcher implements the iteration-argument comparators that
// internal/trcdb.ArgMatcher plugs into Walker.StepToIter: exact string
// equality, case-insensitive ("casefold"), whitespace-normalized, and
// token-set comparison (SPEC_FULL.md §6 "--comparison" flag).
package matcher

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/trc-go/trc/internal/trcdb"
)

// Name identifies one of the comparator kinds selectable via --comparison.
type Name string

const (
	Exact      Name = "exact"
	Casefold   Name = "casefold"
	Normalised Name = "normalised"
	Tokens     Name = "tokens"
)

// ErrUnknownComparator is returned by Get for any Name other than the four
// above.
var ErrUnknownComparator = errors.New("matcher: unknown comparator name")

var caseFolder = cases.Fold()

// Get returns the trcdb.ArgMatcher for name.
func Get(name Name) (trcdb.ArgMatcher, error) {
	switch name {
	case Exact:
		return exact, nil
	case Casefold:
		return casefold, nil
	case Normalised:
		return normalised, nil
	case Tokens:
		return tokenSet, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownComparator, name)
	}
}

func exact(want, got string) bool {
	return want == got
}

func casefold(want, got string) bool {
	return caseFolder.String(want) == caseFolder.String(got)
}

// normalised compares after collapsing runs of whitespace to a single space
// and trimming the ends, on top of casefold equality.
func normalised(want, got string) bool {
	return casefold(collapseWhitespace(want), collapseWhitespace(got))
}

func collapseWhitespace(s string) string {
	fields := strings.Fields(s)

	return strings.Join(fields, " ")
}

// tokenSet compares the whitespace-split token multiset of each argument,
// order-independent. "b a a" matches "a b a" but not "a b".
func tokenSet(want, got string) bool {
	wantTokens := strings.Fields(want)
	gotTokens := strings.Fields(got)

	if len(wantTokens) != len(gotTokens) {
		return false
	}

	for i := range wantTokens {
		wantTokens[i] = caseFolder.String(wantTokens[i])
		gotTokens[i] = caseFolder.String(gotTokens[i])
	}

	sort.Strings(wantTokens)
	sort.Strings(gotTokens)

	for i := range wantTokens {
		if wantTokens[i] != gotTokens[i] {
			return false
		}
	}

	return true
}
