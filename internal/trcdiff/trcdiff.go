// Package trcdiff implements the diff engine (SPEC_FULL.md §4.G): it
// compares two named expectation-set views of the same database and
// produces a three-axis counter matrix plus per-set key-occurrence tallies.
package trcdiff

import (
	"fmt"
	"sort"
	"strings"

	"github.com/trc-go/trc/internal/resolve"
	"github.com/trc-go/trc/internal/tagexpr"
	"github.com/trc-go/trc/internal/trcdb"
	"github.com/trc-go/trc/internal/trcresult"
)

// MatchStatus classifies one iteration's comparison under a Set pair.
type MatchStatus int

const (
	Match MatchStatus = iota
	NoMatch
	NoMatchIgnored
)

func (m MatchStatus) String() string {
	switch m {
	case Match:
		return "match"
	case NoMatch:
		return "no-match"
	case NoMatchIgnored:
		return "no-match-ignored"
	default:
		return "unknown"
	}
}

// Set names one side of a comparison: a tag predicate's active-tag view and
// a set of keys that, when solely responsible for a difference, downgrade
// that difference to no-match-ignored rather than no-match.
type Set struct {
	Name    string
	Tags    *tagexpr.Set
	Ignored map[string]bool
}

func (s Set) isIgnored(key string) bool { return s.Ignored != nil && s.Ignored[key] }

// Matrix is Compare's output: the three-axis counter plus per-set key
// tallies and any ambiguous-alternative diagnostics collected along the way.
type Matrix struct {
	Counters map[trcresult.Status]map[trcresult.Status]map[MatchStatus]int

	KeysX map[string]int
	KeysY map[string]int

	Diagnostics []string
}

func newMatrix() *Matrix {
	return &Matrix{
		Counters: make(map[trcresult.Status]map[trcresult.Status]map[MatchStatus]int),
		KeysX:    make(map[string]int),
		KeysY:    make(map[string]int),
	}
}

func (m *Matrix) inc(statusX, statusY trcresult.Status, match MatchStatus) {
	row, ok := m.Counters[statusX]
	if !ok {
		row = make(map[trcresult.Status]map[MatchStatus]int)
		m.Counters[statusX] = row
	}

	cell, ok := row[statusY]
	if !ok {
		cell = make(map[MatchStatus]int)
		row[statusY] = cell
	}

	cell[match]++
}

// Count returns the counter at (statusX, statusY, match), 0 if never incremented.
func (m *Matrix) Count(statusX, statusY trcresult.Status, match MatchStatus) int {
	return m.Counters[statusX][statusY][match]
}

// KeyCount is one entry of a sorted key-occurrence table.
type KeyCount struct {
	Key   string
	Count int
}

// SortedKeys renders an occurrence map as a list sorted descending by count,
// ties broken by key string (SPEC_FULL.md §4.G key bookkeeping).
func SortedKeys(counts map[string]int) []KeyCount {
	out := make([]KeyCount, 0, len(counts))
	for k, c := range counts {
		out = append(out, KeyCount{Key: k, Count: c})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}

		return out[i].Key < out[j].Key
	})

	return out
}

// Compare walks db once and classifies every iteration under both x and y
// (SPEC_FULL.md §4.G). The two sets must view the same database; Compare
// does not mutate it.
func Compare(db *trcdb.Database, x, y Set) (*Matrix, error) {
	m := newMatrix()
	w := trcdb.NewWalker(db)

	for {
		event := w.Move()
		if event == trcdb.MoveRoot {
			break
		}

		if event != trcdb.MoveSon && event != trcdb.MoveBrother {
			continue
		}

		id, _ := w.Current()
		if db.Kind(id) != trcdb.KindIter {
			continue
		}

		entriesX, foundX := resolve.Resolve(db, id, x.Tags)
		entriesY, foundY := resolve.Resolve(db, id, y.Tags)

		statusX := representativeStatus(entriesX, foundX)
		statusY := representativeStatus(entriesY, foundY)

		match, isAmbiguous := classify(entriesX, entriesY, x, y)
		if isAmbiguous {
			m.Diagnostics = append(m.Diagnostics, fmt.Sprintf("%s: ambiguous alternatives, compared first of each", iterPath(db, id)))
		}

		m.inc(statusX, statusY, match)

		if match != Match {
			tallyKeys(m.KeysX, entriesX)
			tallyKeys(m.KeysY, entriesY)
		}
	}

	return m, nil
}

func representativeStatus(entries trcresult.Entries, found bool) trcresult.Status {
	if !found || len(entries) == 0 {
		return ""
	}

	return entries[0].Result.Status
}

// ambiguous reports whether entries resolves to more than one distinct
// status among its alternatives — the tie-break condition of SPEC_FULL.md
// §4.G ("when an iteration resolves to multiple alternatives... if
// ambiguous, report the iteration under no-match with a diagnostic").
func ambiguous(entries trcresult.Entries) bool {
	if len(entries) < 2 {
		return false
	}

	first := entries[0].Result.Status
	for _, e := range entries[1:] {
		if e.Result.Status != first {
			return true
		}
	}

	return false
}

// classify applies SPEC_FULL.md §4.G's three rules, in priority order: an
// ambiguous resolution (multiple alternatives with different statuses on
// either side) short-circuits straight to no-match with a diagnostic,
// before the full-intersection match test ever runs.
func classify(entriesX, entriesY trcresult.Entries, x, y Set) (match MatchStatus, isAmbiguous bool) {
	if ambiguous(entriesX) || ambiguous(entriesY) {
		return NoMatch, true
	}

	if intersect(entriesX, entriesY) {
		return Match, false
	}

	keys := append(append([]string{}, collectKeys(entriesX)...), collectKeys(entriesY)...)
	if len(keys) == 0 {
		return NoMatch, false
	}

	for _, k := range keys {
		if !x.isIgnored(k) && !y.isIgnored(k) {
			return NoMatch, false
		}
	}

	return NoMatchIgnored, false
}

// intersect reports whether any entry on either side structurally equals an
// observed-equivalent entry on the other — in practice, whether the two
// expected sets share at least one identical Result.
func intersect(a, b trcresult.Entries) bool {
	for _, ea := range a {
		if b.AnyMatches(ea.Result) {
			return true
		}
	}

	return false
}

func collectKeys(entries trcresult.Entries) []string {
	var keys []string
	for _, e := range entries {
		keys = append(keys, e.Keys()...)
	}

	return keys
}

func tallyKeys(into map[string]int, entries trcresult.Entries) {
	for _, k := range collectKeys(entries) {
		into[k]++
	}
}

// iterPath renders the enclosing test path plus this iteration's argument
// vector, e.g. "/suite/basic(arch=amd64,os=linux)", for diagnostics.
func iterPath(db *trcdb.Database, id trcdb.NodeID) string {
	var parts []string

	cur := id
	for cur != db.Root() {
		if db.Kind(cur) == trcdb.KindTest {
			parts = append([]string{db.TestName(cur)}, parts...)
		}

		cur = db.Parent(cur)
	}

	path := "/" + strings.Join(parts, "/")

	if db.Kind(id) == trcdb.KindIter {
		args := db.Args(id)
		parts := make([]string, len(args))

		for i, a := range args {
			parts[i] = a.String()
		}

		path += "(" + strings.Join(parts, ",") + ")"
	}

	return path
}
