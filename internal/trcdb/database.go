package trcdb

import (
	"sort"

	"github.com/google/uuid"

	"github.com/trc-go/trc/internal/trcresult"
)

// UserID namespaces a caller's private annotations on the tree. Every
// package that wants to stash its own per-node state (the diff engine's
// rollup counters, the update planner's lifecycle flags) calls
// Database.NewUserID once and uses the returned UserID for every
// Get/SetUserData call it makes, so two callers never collide.
type UserID = uuid.UUID

type userDataKey struct {
	node NodeID
	user UserID
}

// Database owns the test tree's arena and the side table of per-node user
// data. The zero value is not usable; construct with New.
//
// Thread model: single writer. Concurrent read-only Walkers are safe only
// if externally serialized against any writer (SPEC_FULL.md §5); Database
// itself holds no lock.
type Database struct {
	nodes    []*node
	userData map[userDataKey]any
	globals  string
}

// New returns an empty Database containing only the root node.
func New() *Database {
	db := &Database{userData: make(map[userDataKey]any)}
	db.nodes = append(db.nodes, &node{id: 0, parent: -1, kind: KindRoot})

	return db
}

// Root returns the database's root NodeID.
func (db *Database) Root() NodeID { return 0 }

func (db *Database) node(id NodeID) *node {
	return db.nodes[id]
}

func (db *Database) newNode(kind Kind, parent NodeID) NodeID {
	id := NodeID(len(db.nodes))
	n := &node{id: id, parent: parent, kind: kind, emit: true}
	db.nodes = append(db.nodes, n)
	db.nodes[parent].children = append(db.nodes[parent].children, id)

	return id
}

// NewUserID allocates a fresh annotation namespace.
func (db *Database) NewUserID() UserID {
	return uuid.New()
}

// GetUserData returns the value previously stored under (id, uid), if any.
func (db *Database) GetUserData(id NodeID, uid UserID) (any, bool) {
	v, ok := db.userData[userDataKey{node: id, user: uid}]

	return v, ok
}

// SetUserData stores val under (id, uid), replacing any previous value.
func (db *Database) SetUserData(id NodeID, uid UserID, val any) {
	db.userData[userDataKey{node: id, user: uid}] = val
}

// SetPropUserData ensures user data exists on id and every one of its
// ancestors up to (excluding) the root. Any node that does not yet carry a
// value for uid receives one produced by generator(seed, isIter); nodes that
// already carry a value are left untouched (SPEC_FULL.md §4.C
// set_prop_user_data).
func (db *Database) SetPropUserData(id NodeID, uid UserID, seed any, generator func(seed any, isIter bool) any) {
	for cur := id; cur != db.Root(); cur = db.node(cur).parent {
		if _, ok := db.GetUserData(cur, uid); ok {
			continue
		}

		n := db.node(cur)
		db.SetUserData(cur, uid, generator(seed, n.kind == KindIter))
	}
}

// Kind reports what kind of node id is.
func (db *Database) Kind(id NodeID) Kind { return db.node(id).kind }

// Parent returns id's parent. Calling Parent on the root returns the root.
func (db *Database) Parent(id NodeID) NodeID {
	if id == db.Root() {
		return id
	}

	return db.node(id).parent
}

// Children returns id's direct children, in insertion order.
func (db *Database) Children(id NodeID) []NodeID {
	return append([]NodeID(nil), db.node(id).children...)
}

// TestName returns a KindTest node's name.
func (db *Database) TestName(id NodeID) string { return db.node(id).name }

// TestType returns a KindTest node's type ("script", "session", "package").
func (db *Database) TestType(id NodeID) string { return db.node(id).testType }

// Auxiliary returns a KindTest node's optional auxiliary attribute.
func (db *Database) Auxiliary(id NodeID) string { return db.node(id).auxiliary }

// Objective returns a KindTest node's free-text objective, set either by the
// loader or, during log ingestion, by an <objective> element when the
// update-db flag is set (SPEC_FULL.md §4.E).
func (db *Database) Objective(id NodeID) string { return db.node(id).objective }

// SetObjective overwrites a KindTest node's objective.
func (db *Database) SetObjective(id NodeID, objective string) {
	db.node(id).objective = objective
}

// AppendArg appends one named argument to a KindIter node's argument
// vector, keeping it sorted by name — the same canonical order db_io.c's
// loader maintains by inserting each parsed <arg> into its sorted position.
func (db *Database) AppendArg(id NodeID, name, value string) {
	n := db.node(id)
	n.args = sortedArgs(append(n.args, NamedArg{Name: name, Value: value}))
}

// Args returns a KindIter node's argument vector, in canonical
// argument-name order.
func (db *Database) Args(id NodeID) []NamedArg {
	return append([]NamedArg(nil), db.node(id).args...)
}

func sortedArgs(args []NamedArg) []NamedArg {
	out := append([]NamedArg(nil), args...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out
}

// DefaultStatus returns a KindIter node's inline default expected status.
func (db *Database) DefaultStatus(id NodeID) trcresult.Status { return db.node(id).defaultStatus }

// Notes returns a KindTest or KindIter node's free-text notes.
func (db *Database) Notes(id NodeID) string { return db.node(id).notes }

// ExpectSets returns a KindIter node's "results" blocks, in document order.
func (db *Database) ExpectSets(id NodeID) []ExpectSet {
	return append([]ExpectSet(nil), db.node(id).expectSets...)
}

// SetTestInfo sets a KindTest node's type and auxiliary attribute.
func (db *Database) SetTestInfo(id NodeID, testType, auxiliary string) {
	n := db.node(id)
	n.testType = testType
	n.auxiliary = auxiliary
}

// SetIterInfo sets a KindIter node's inline default expected status.
func (db *Database) SetIterInfo(id NodeID, defaultStatus trcresult.Status) {
	db.node(id).defaultStatus = defaultStatus
}

// SetNotes sets a KindTest or KindIter node's free-text notes.
func (db *Database) SetNotes(id NodeID, notes string) {
	db.node(id).notes = notes
}

// NewTest appends a new KindTest child named name to parent (root or an
// iteration), bypassing Walker's find-or-create search — used by the loader
// (internal/trcio), which already knows the document has no duplicate
// siblings to deduplicate against.
func (db *Database) NewTest(parent NodeID, name string) NodeID {
	id := db.newNode(KindTest, parent)
	db.nodes[id].name = name

	return id
}

// NewIter appends a new KindIter child with the given argument vector to
// parent, bypassing Walker's find-or-create search.
func (db *Database) NewIter(parent NodeID, args []NamedArg) NodeID {
	id := db.newNode(KindIter, parent)
	db.nodes[id].args = sortedArgs(args)

	return id
}

// InsertIterBefore creates a new KindIter child of parent with the given
// argument vector and splices it into parent's children immediately before
// the existing child before, rather than appending — used by the update
// planner to place a generated wildcard ahead of the concrete iterations it
// covers (SPEC_FULL.md §4.H phase 3).
func (db *Database) InsertIterBefore(parent NodeID, before NodeID, args []NamedArg) NodeID {
	id := NodeID(len(db.nodes))
	db.nodes = append(db.nodes, &node{id: id, parent: parent, kind: KindIter, emit: true, args: sortedArgs(args)})

	siblings := db.nodes[parent].children

	idx := len(siblings)
	for i, child := range siblings {
		if child == before {
			idx = i
			break
		}
	}

	siblings = append(siblings, 0)
	copy(siblings[idx+1:], siblings[idx:])
	siblings[idx] = id
	db.nodes[parent].children = siblings

	return id
}

// IncludeMarkers returns id's captured include-directive spans.
func (db *Database) IncludeMarkers(id NodeID) []IncludeMarker {
	return db.node(id).includeMarkers
}

// SetIncludeMarkers replaces id's captured include-directive spans.
func (db *Database) SetIncludeMarkers(id NodeID, markers []IncludeMarker) {
	db.node(id).includeMarkers = markers
}

// AddExpectSet appends a "results" block to a KindIter node.
func (db *Database) AddExpectSet(id NodeID, set ExpectSet) {
	n := db.node(id)
	n.expectSets = append(n.expectSets, set)
}

// ReplaceExpectSets replaces a KindIter node's "results" blocks wholesale —
// used by the update planner when rewriting an iteration's expectations.
func (db *Database) ReplaceExpectSets(id NodeID, sets []ExpectSet) {
	db.node(id).expectSets = sets
}

// Loaded reports whether id was parsed from an existing document, as
// opposed to synthesized by a create?-flagged walker step.
func (db *Database) Loaded(id NodeID) bool { return db.node(id).loaded }

// MarkLoaded records that id came from the loader rather than being
// synthesized during this run.
func (db *Database) MarkLoaded(id NodeID) { db.node(id).loaded = true }

// ShouldEmit reports whether the serializer should write id back out.
func (db *Database) ShouldEmit(id NodeID) bool { return db.node(id).emit }

// SetEmit controls whether the serializer writes id back out.
func (db *Database) SetEmit(id NodeID, emit bool) { db.node(id).emit = emit }

// Globals returns the database document's top-level free-form "globals"
// blob — opaque shared configuration text that sits alongside the test
// tree rather than inside it (SPEC_FULL.md §4.D node-kind list).
func (db *Database) Globals() string { return db.globals }

// SetGlobals replaces the database document's top-level "globals" blob.
func (db *Database) SetGlobals(globals string) { db.globals = globals }
