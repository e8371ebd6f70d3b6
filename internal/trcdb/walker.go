package trcdb

// WildcardArg is the argument value that step_to_iter treats as matching any
// concrete value of the argument with the same name, unless the caller's
// no_wildcards? flag is set (SPEC_FULL.md §4.C).
const WildcardArg = "*"

// ArgMatcher decides whether two iteration-argument tokens denote the same
// value. internal/matcher supplies the concrete comparators (exact,
// casefold, whitespace-normalized, token-set); trcdb only depends on this
// function type so it never imports a comparison policy.
type ArgMatcher func(want, got string) bool

// Presence reports whether a step_to_test/step_to_iter descent landed on a
// node that exists (possibly just created) or went into unknown-depth mode.
type Presence int

const (
	Known Presence = iota
	Unknown
)

// MoveKind is the event Walker.Move returns.
type MoveKind int

const (
	MoveSon MoveKind = iota
	MoveBrother
	MoveFather
	MoveRoot
)

// Walker is a cursor over a Database's tree. Its state is one of
// {at-root, at-test, at-iteration} plus an unknown-depth counter entered
// when a step_to_test/step_to_iter descent fails to find a child and the
// caller did not ask to create one (SPEC_FULL.md §4.C).
type Walker struct {
	db  *Database
	cur NodeID

	unknownDepth int

	moveStack []NodeID
	moveTop   NodeID
	moveIdx   map[NodeID]int
}

// NewWalker returns a Walker positioned at db's root.
func NewWalker(db *Database) *Walker {
	return &Walker{db: db, cur: db.Root()}
}

// Current returns the walker's current node and whether it is in unknown
// mode (in which case Current's NodeID is the last known node, not a real
// position inside the missing subtree).
func (w *Walker) Current() (NodeID, Presence) {
	if w.unknownDepth > 0 {
		return w.cur, Unknown
	}

	return w.cur, Known
}

// InUnknown reports whether the walker is currently in unknown-depth mode.
func (w *Walker) InUnknown() bool { return w.unknownDepth > 0 }

// StepToTest descends from root or from an iteration to a named child test,
// creating it if absent and create is true.
func (w *Walker) StepToTest(name string, create bool) Presence {
	if w.unknownDepth > 0 {
		w.unknownDepth++

		return Unknown
	}

	parent := w.cur
	if child, ok := w.findTest(parent, name); ok {
		w.cur = child

		return Known
	}

	if create {
		child := w.db.newNode(KindTest, parent)
		w.db.node(child).name = name
		w.cur = child

		return Known
	}

	w.unknownDepth = 1

	return Unknown
}

func (w *Walker) findTest(parent NodeID, name string) (NodeID, bool) {
	for _, id := range w.db.node(parent).children {
		n := w.db.node(id)
		if n.kind == KindTest && n.name == name {
			return id, true
		}
	}

	return 0, false
}

// StepToIter descends from a test to a child iteration whose args match via
// matcher, creating an empty one if absent and create is true. When
// noWildcards is true, iterations carrying a WildcardArg value are skipped
// during the search (used by the update planner to force a precise new
// iteration instead of falling into an existing wildcard bucket).
func (w *Walker) StepToIter(args []NamedArg, create, noWildcards bool, matcher ArgMatcher) Presence {
	if w.unknownDepth > 0 {
		w.unknownDepth++

		return Unknown
	}

	parent := w.cur
	if child, ok := w.findIter(parent, args, noWildcards, matcher); ok {
		w.cur = child

		return Known
	}

	if create {
		child := w.db.newNode(KindIter, parent)
		w.db.node(child).args = sortedArgs(args)
		w.cur = child

		return Known
	}

	w.unknownDepth = 1

	return Unknown
}

// findIter searches parent's children for an iteration whose argument
// bijection matches args. Non-wildcard iterations are tried in a first
// pass so a still-present concrete iteration always wins over an earlier
// wildcard sibling — InsertIterBefore deliberately splices a generated
// wildcard ahead of the concrete iterations it covers, so a plain
// first-match scan would return the wildcard instead. Only if no
// non-wildcard iteration matches does a second pass fall back to the
// first-declared matching wildcard (SPEC_FULL.md §3 iteration matching
// precedence).
func (w *Walker) findIter(parent NodeID, args []NamedArg, noWildcards bool, matcher ArgMatcher) (NodeID, bool) {
	children := w.db.node(parent).children

	for _, id := range children {
		n := w.db.node(id)
		if n.kind != KindIter || hasWildcard(n.args) {
			continue
		}

		if argsMatch(args, n.args, matcher) {
			return id, true
		}
	}

	if noWildcards {
		return 0, false
	}

	for _, id := range children {
		n := w.db.node(id)
		if n.kind != KindIter || !hasWildcard(n.args) {
			continue
		}

		if argsMatch(args, n.args, matcher) {
			return id, true
		}
	}

	return 0, false
}

func hasWildcard(args []NamedArg) bool {
	for _, a := range args {
		if a.Value == WildcardArg {
			return true
		}
	}

	return false
}

// argsMatch reports whether want and got denote the same iteration: every
// name in want must appear in got with a matching value, unless either
// side carries WildcardArg — an order-independent, name-keyed bijection,
// not a positional comparison (SPEC_FULL.md §3).
func argsMatch(want, got []NamedArg, matcher ArgMatcher) bool {
	if len(want) != len(got) {
		return false
	}

	for _, w := range want {
		g, ok := findNamedArg(got, w.Name)
		if !ok {
			return false
		}

		if w.Value == WildcardArg || g.Value == WildcardArg {
			continue
		}

		if !matcher(w.Value, g.Value) {
			return false
		}
	}

	return true
}

func findNamedArg(args []NamedArg, name string) (NamedArg, bool) {
	for _, a := range args {
		if a.Name == name {
			return a, true
		}
	}

	return NamedArg{}, false
}

// StepBack inverts the last descent. In unknown mode it decrements the
// depth counter without touching the tree; once the counter reaches zero
// the walker resumes at the node it was on before the unknown excursion
// began.
func (w *Walker) StepBack() {
	if w.unknownDepth > 0 {
		w.unknownDepth--

		return
	}

	if w.cur == w.db.Root() {
		return
	}

	w.cur = w.db.node(w.cur).parent
}

// GetUserData reads this walker's current node's user data under uid.
func (w *Walker) GetUserData(uid UserID) (any, bool) {
	return w.db.GetUserData(w.cur, uid)
}

// SetUserData writes this walker's current node's user data under uid.
func (w *Walker) SetUserData(uid UserID, val any) {
	w.db.SetUserData(w.cur, uid, val)
}

// SetPropUserData ensures user data exists on the current node and every
// ancestor (SPEC_FULL.md §4.C set_prop_user_data).
func (w *Walker) SetPropUserData(uid UserID, seed any, generator func(seed any, isIter bool) any) {
	w.db.SetPropUserData(w.cur, uid, seed, generator)
}

// Move advances an iterator-style depth-first traversal rooted at the node
// the walker was on when Move was first called, emitting one event per
// call: MoveSon for the first child of a node, MoveBrother for each
// subsequent child, MoveFather when backtracking out of an exhausted node,
// and MoveRoot once the traversal root itself is exhausted (SPEC_FULL.md
// §4.C). Every node below the traversal root is visited exactly once.
func (w *Walker) Move() MoveKind {
	if w.moveIdx == nil {
		w.moveIdx = make(map[NodeID]int)
		w.moveTop = w.cur
	}

	for {
		n := w.db.node(w.cur)
		idx := w.moveIdx[w.cur]

		if idx < len(n.children) {
			child := n.children[idx]
			w.moveIdx[w.cur] = idx + 1
			w.moveStack = append(w.moveStack, w.cur)
			w.cur = child

			if idx == 0 {
				return MoveSon
			}

			return MoveBrother
		}

		if w.cur == w.moveTop {
			return MoveRoot
		}

		parent := w.moveStack[len(w.moveStack)-1]
		w.moveStack = w.moveStack[:len(w.moveStack)-1]
		w.cur = parent

		return MoveFather
	}
}
