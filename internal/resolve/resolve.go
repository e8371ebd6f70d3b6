// Package resolve implements the expectation resolver (SPEC_FULL.md §4.F):
// given an iteration and an active tag set, it picks the single expected
// result entry list that applies.
package resolve

import (
	"github.com/trc-go/trc/internal/tagexpr"
	"github.com/trc-go/trc/internal/trcdb"
	"github.com/trc-go/trc/internal/trcresult"
)

// Resolve walks iterID's expected-result alternatives in declaration order
// and returns the entries that apply under activeTags:
//
//  1. If any matching alternative contains a Skipped entry, the first such
//     alternative wins (Skipped priority).
//  2. Otherwise the first matching alternative wins.
//  3. If none matches, the iteration's default status is returned as a
//     single-entry result (found=true) when one was set.
//  4. If no default exists either, found is false ("expected unknown").
func Resolve(db *trcdb.Database, iterID trcdb.NodeID, activeTags *tagexpr.Set) (trcresult.Entries, bool) {
	sets := db.ExpectSets(iterID)

	var firstMatch trcresult.Entries

	haveFirstMatch := false

	for _, set := range sets {
		if !tagexpr.Match(set.Expr, activeTags) {
			continue
		}

		if set.Entries.HasSkipped() {
			return set.Entries, true
		}

		if !haveFirstMatch {
			firstMatch = set.Entries
			haveFirstMatch = true
		}
	}

	if haveFirstMatch {
		return firstMatch, true
	}

	if status := db.DefaultStatus(iterID); status != "" {
		return trcresult.Entries{{Result: trcresult.Result{Status: status}}}, true
	}

	return nil, false
}
