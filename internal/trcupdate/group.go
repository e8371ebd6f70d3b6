package trcupdate

import (
	"sort"

	"github.com/trc-go/trc/internal/tagexpr"
)

// LogGroup is one (tag set, logs) pair from SPEC_FULL.md §4.H: the active
// tags this batch of logs ran under, and the paths to merge under that view.
type LogGroup struct {
	Name string
	Tags *tagexpr.Set
	Logs []string
}

// predicateExpr folds a LogGroup's active tag names into a conjunction,
// used to tag a newly proposed expected-result set with "this group's
// predicate" (SPEC_FULL.md §4.H phase 2 default proposal). Names are
// sorted first so the rendered predicate is stable across runs.
func predicateExpr(tags *tagexpr.Set) tagexpr.Expr {
	names := append([]string(nil), tags.Names()...)
	sort.Strings(names)

	if len(names) == 0 {
		return tagexpr.AlwaysTrue{}
	}

	expr := atomFor(tags, names[0])
	for _, name := range names[1:] {
		expr = tagexpr.And{X: expr, Y: atomFor(tags, name)}
	}

	return expr
}

func atomFor(tags *tagexpr.Set, name string) tagexpr.Expr {
	if value, _ := tags.Value(name); value != "" {
		return tagexpr.Atom{Name: name, Value: value, HasValue: true}
	}

	return tagexpr.Atom{Name: name}
}
