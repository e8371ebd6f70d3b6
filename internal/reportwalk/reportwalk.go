// Package reportwalk builds a render.Report by walking a database once
// under one active tag set, resolving each iteration the same way the
// update planner and diff engine do (SPEC_FULL.md §4.F), grounded on
// trcdiff.Compare's single-pass Walker.Move loop.
package reportwalk

import (
	"strings"

	"github.com/trc-go/trc/internal/render"
	"github.com/trc-go/trc/internal/resolve"
	"github.com/trc-go/trc/internal/tagexpr"
	"github.com/trc-go/trc/internal/trcdb"
	"github.com/trc-go/trc/internal/trcdiff"
	"github.com/trc-go/trc/internal/trcresult"
)

// Build walks db once under activeTags and returns the totals, per-test-path
// breakdown, and key-occurrence table a report needs.
func Build(db *trcdb.Database, activeTags *tagexpr.Set) render.Report {
	totals := make(map[trcresult.Status]int)
	keys := make(map[string]int)

	packages := make(map[string]map[trcresult.Status]int)
	var order []string

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

		entries, found := resolve.Resolve(db, id, activeTags)
		if !found || len(entries) == 0 {
			continue
		}

		status := entries[0].Result.Status
		totals[status]++

		pkgPath := testPath(db, id)

		counts, ok := packages[pkgPath]
		if !ok {
			counts = make(map[trcresult.Status]int)
			packages[pkgPath] = counts
			order = append(order, pkgPath)
		}

		counts[status]++

		for _, e := range entries {
			for _, k := range e.Keys() {
				keys[k]++
			}
		}
	}

	rows := make([]render.PackageRow, 0, len(order))
	for _, p := range order {
		rows = append(rows, render.PackageRow{Path: p, Counts: packages[p]})
	}

	return render.Report{
		Totals:   totals,
		Packages: rows,
		Keys:     trcdiff.SortedKeys(keys),
	}
}

// testPath renders the test path enclosing an iteration, e.g. "/suite/basic",
// by walking parent pointers up to the root.
func testPath(db *trcdb.Database, id trcdb.NodeID) string {
	var parts []string

	for cur := db.Parent(id); cur != db.Root(); cur = db.Parent(cur) {
		if db.Kind(cur) == trcdb.KindTest {
			parts = append([]string{db.TestName(cur)}, parts...)
		}
	}

	return "/" + strings.Join(parts, "/")
}
