package trcdb_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trc-go/trc/internal/trcdb"
	"github.com/trc-go/trc/internal/trcresult"
)

func exactMatcher(a, b string) bool { return a == b }

func TestStepToTestCreateAndFind(t *testing.T) {
	db := trcdb.New()
	w := trcdb.NewWalker(db)

	presence := w.StepToTest("suite/one", true)
	require.Equal(t, trcdb.Known, presence)

	id, presence := w.Current()
	require.Equal(t, trcdb.Known, presence)
	require.Equal(t, "suite/one", db.TestName(id))

	w2 := trcdb.NewWalker(db)
	presence = w2.StepToTest("suite/one", false)
	require.Equal(t, trcdb.Known, presence)

	id2, _ := w2.Current()
	require.Equal(t, id, id2)
}

func TestStepToTestMissingWithoutCreateEntersUnknown(t *testing.T) {
	db := trcdb.New()
	w := trcdb.NewWalker(db)

	presence := w.StepToTest("nope", false)
	require.Equal(t, trcdb.Unknown, presence)
	require.True(t, w.InUnknown())
}

func TestStepBackInvertsStepToTestAndStepToIter(t *testing.T) {
	db := trcdb.New()
	w := trcdb.NewWalker(db)

	before, _ := w.Current()

	w.StepToTest("suite", true)
	w.StepToIter(trcdb.NamedArgs("p1", "a", "p2", "b"), true, false, exactMatcher)

	w.StepBack()
	w.StepBack()

	after, presence := w.Current()
	require.Equal(t, trcdb.Known, presence)
	require.Equal(t, before, after)
}

func TestStepBackInUnknownModeDecrementsDepth(t *testing.T) {
	db := trcdb.New()
	w := trcdb.NewWalker(db)

	w.StepToTest("missing", false)
	require.True(t, w.InUnknown())

	w.StepToTest("still-missing", false)
	w.StepBack()
	require.True(t, w.InUnknown(), "one step_back should only unwind one unknown level")

	w.StepBack()
	require.False(t, w.InUnknown())
}

func TestStepToIterWildcardMatch(t *testing.T) {
	db := trcdb.New()
	w := trcdb.NewWalker(db)
	w.StepToTest("suite", true)
	w.StepToIter(trcdb.NamedArgs("p1", trcdb.WildcardArg, "p2", "b"), true, false, exactMatcher)
	wildcardIter, _ := w.Current()
	w.StepBack()

	presence := w.StepToIter(trcdb.NamedArgs("p1", "anything", "p2", "b"), false, false, exactMatcher)
	require.Equal(t, trcdb.Known, presence)

	got, _ := w.Current()
	require.Equal(t, wildcardIter, got)
}

func TestStepToIterNoWildcardsSkipsWildcardBucket(t *testing.T) {
	db := trcdb.New()
	w := trcdb.NewWalker(db)
	w.StepToTest("suite", true)
	w.StepToIter(trcdb.NamedArgs("p1", trcdb.WildcardArg, "p2", "b"), true, false, exactMatcher)
	w.StepBack()

	presence := w.StepToIter(trcdb.NamedArgs("p1", "anything", "p2", "b"), false, true, exactMatcher)
	require.Equal(t, trcdb.Unknown, presence)
}

// TestStepToIterConcreteWinsOverEarlierWildcard mirrors the arena layout
// InsertIterBefore produces: a generated wildcard spliced ahead of the
// concrete iteration it was meant to cover. A subsequent step_to_iter for
// the concrete arguments must still land on the concrete iteration, not
// the wildcard that happens to come first in document order.
func TestStepToIterConcreteWinsOverEarlierWildcard(t *testing.T) {
	db := trcdb.New()
	testID := db.NewTest(db.Root(), "suite/basic")

	concrete := db.NewIter(testID, trcdb.NamedArgs("p", "b"))
	wildcard := db.InsertIterBefore(testID, concrete, trcdb.NamedArgs("p", trcdb.WildcardArg))

	require.Equal(t, []trcdb.NodeID{wildcard, concrete}, db.Children(testID), "wildcard precedes the concrete sibling it covers")

	w := trcdb.NewWalker(db)
	w.StepToTest("suite/basic", false)

	presence := w.StepToIter(trcdb.NamedArgs("p", "b"), false, false, exactMatcher)
	require.Equal(t, trcdb.Known, presence)

	got, _ := w.Current()
	require.Equal(t, concrete, got, "the non-wildcard iteration wins over an earlier wildcard")
}

func TestUserDataRoundTrip(t *testing.T) {
	db := trcdb.New()
	w := trcdb.NewWalker(db)
	w.StepToTest("suite", true)

	uid := db.NewUserID()
	_, ok := w.GetUserData(uid)
	require.False(t, ok)

	w.SetUserData(uid, 42)

	v, ok := w.GetUserData(uid)
	require.True(t, ok)
	require.Equal(t, 42, v)
}

func TestSetPropUserDataFillsAncestors(t *testing.T) {
	db := trcdb.New()
	w := trcdb.NewWalker(db)
	w.StepToTest("suite", true)
	w.StepToIter(trcdb.NamedArgs("p", "a"), true, false, exactMatcher)

	iterID, _ := w.Current()
	testID := db.Parent(iterID)

	uid := db.NewUserID()
	w.SetPropUserData(uid, "seed", func(seed any, isIter bool) any {
		if isIter {
			return "iter:" + seed.(string)
		}

		return "test:" + seed.(string)
	})

	iterVal, ok := db.GetUserData(iterID, uid)
	require.True(t, ok)
	require.Equal(t, "iter:seed", iterVal)

	testVal, ok := db.GetUserData(testID, uid)
	require.True(t, ok)
	require.Equal(t, "test:seed", testVal)
}

func TestMoveVisitsEveryNodeOnce(t *testing.T) {
	db := trcdb.New()
	w := trcdb.NewWalker(db)

	w.StepToTest("a", true)
	w.StepToIter(trcdb.NamedArgs("p", "1"), true, false, exactMatcher)
	w.StepBack()
	w.StepToIter(trcdb.NamedArgs("p", "2"), true, false, exactMatcher)
	w.StepBack()
	w.StepBack()

	w.StepToTest("b", true)
	w.StepBack()

	visited := make(map[trcdb.NodeID]int)

	mw := trcdb.NewWalker(db)

	for {
		kind := mw.Move()
		if kind == trcdb.MoveRoot {
			break
		}

		if kind == trcdb.MoveSon || kind == trcdb.MoveBrother {
			id, _ := mw.Current()
			visited[id]++
		}
	}

	require.Len(t, visited, 4, "test a, its two iterations, and test b")

	for id, count := range visited {
		require.Equalf(t, 1, count, "node %d visited more than once", id)
	}
}

func TestExpectSetsAndResultModel(t *testing.T) {
	db := trcdb.New()
	w := trcdb.NewWalker(db)
	w.StepToTest("suite", true)
	w.StepToIter(trcdb.NamedArgs("p", "a"), true, false, exactMatcher)

	id, _ := w.Current()
	db.SetIterInfo(id, trcresult.StatusPassed)
	db.AddExpectSet(id, trcdb.ExpectSet{
		Tags: "linux",
		Entries: trcresult.Entries{
			{Result: trcresult.Result{Status: trcresult.StatusFailed}},
		},
	})

	require.Equal(t, trcresult.StatusPassed, db.DefaultStatus(id))
	sets := db.ExpectSets(id)
	require.Len(t, sets, 1)
	require.True(t, strings.Contains(sets[0].Tags, "linux"))
}

func TestInsertIterBeforeSplicesAheadOfTarget(t *testing.T) {
	db := trcdb.New()
	testID := db.NewTest(db.Root(), "suite/basic")

	first := db.NewIter(testID, trcdb.NamedArgs("p", "a"))
	second := db.NewIter(testID, trcdb.NamedArgs("p", "b"))

	wildcard := db.InsertIterBefore(testID, second, trcdb.NamedArgs("p", trcdb.WildcardArg))

	require.Equal(t, []trcdb.NodeID{first, wildcard, second}, db.Children(testID))
	require.Equal(t, trcdb.NamedArgs("p", trcdb.WildcardArg), db.Args(wildcard))
}
