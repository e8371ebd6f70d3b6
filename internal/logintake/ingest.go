package logintake

import (
	"fmt"
	"sort"
	"strings"

	"github.com/trc-go/trc/internal/resolve"
	"github.com/trc-go/trc/internal/tagexpr"
	"github.com/trc-go/trc/internal/trcdb"
	"github.com/trc-go/trc/internal/trcio"
	"github.com/trc-go/trc/internal/trcresult"
)

// testElementNames are the element names that open a Test frame. A log may
// nest sessions, packages and scripts interchangeably; all three carry a
// "name" attribute and are otherwise identical to the state machine.
var testElementNames = map[string]bool{"test": true, "pkg": true, "session": true}

// elementTarget maps an element name to the state it would move the
// machine to, independent of whether that move is legal from the current
// state — ValidateStateTransition makes that call (SPEC_FULL.md §4.E
// "hand-written table of (state, token-kind) -> transition functions").
func elementTarget(name string) (State, bool) {
	if testElementNames[name] {
		return StateTest, true
	}

	switch name {
	case "meta":
		return StateMeta, true
	case "objective":
		return StateObjective, true
	case "verdicts":
		return StateVerdicts, true
	case "params":
		return StateParams, true
	case "logs":
		return StateLogs, true
	case "msg":
		return StateTags, true
	default:
		return 0, false
	}
}

// IterationRecord is the per-(iteration, uid) value Ingestor attaches via
// Database.SetUserData: the expectation resolved once, plus every observed
// outcome merged in across however many logs share this uid
// (SPEC_FULL.md §4.E, §4.F).
type IterationRecord struct {
	Resolved      trcresult.Entries
	ResolvedFound bool
	Observed      []trcresult.Result
}

// Options configures one Ingestor.
type Options struct {
	// Matcher decides whether two iteration argument vectors denote the
	// same iteration (SPEC_FULL.md §4.C step_to_iter).
	Matcher trcdb.ArgMatcher

	// UpdateObjective, when true, makes a log's <objective> element
	// overwrite the enclosing test's stored objective.
	UpdateObjective bool

	// IgnoreLogTags suppresses harvesting active tags from
	// <msg entity="Dispatcher" user="TRC tags"> content.
	IgnoreLogTags bool
}

type frame struct {
	state   State
	name    string
	node    trcdb.NodeID
	hasNode bool
}

// Ingestor replays one or more logs' token streams against a single Walker,
// accumulating active tags and merging observed outcomes into iterations
// under one user id. Construct with NewIngestor and call Feed once per log
// file, in order; a single Ingestor is not safe for concurrent use
// (SPEC_FULL.md §4.E concurrency note — tokenizing may be parallel, feeding
// the walker never is).
type Ingestor struct {
	db         *trcdb.Database
	walker     *trcdb.Walker
	uid        trcdb.UserID
	activeTags *tagexpr.Set
	opts       Options

	state State
	stack []frame

	skipDepth int

	inVerdict  bool
	verdictBuf strings.Builder

	pendingArgs      map[string]string
	pendingObjective string
	pendingVerdicts  []trcresult.Verdict
	pendingStatus    trcresult.Status
}

// NewIngestor returns an Ingestor that merges observed outcomes into db
// under uid, evaluating expectations against activeTags (the log group's
// tag predicate's active-tag view, accumulated further as
// "TRC tags" messages are encountered).
func NewIngestor(db *trcdb.Database, uid trcdb.UserID, activeTags *tagexpr.Set, opts Options) *Ingestor {
	return &Ingestor{
		db:         db,
		walker:     trcdb.NewWalker(db),
		uid:        uid,
		activeTags: activeTags,
		opts:       opts,
		state:      StateRoot,
	}
}

// Feed replays one log's full token stream. On a structural error, every
// node on the still-open frame stack that was not loaded from the document
// is marked not-to-emit (see abort); loaded nodes are untouched. Nodes this
// call created and already closed before the error keep their emit flag
// (SPEC_FULL.md §4.E error semantics).
func (ing *Ingestor) Feed(tokens []trcio.Token) (err error) {
	defer func() {
		if err != nil {
			ing.abort()
		}
	}()

	for _, t := range tokens {
		if ing.skipDepth > 0 {
			ing.stepSkip(t)
			continue
		}

		switch t.Kind {
		case trcio.TokStart:
			if err := ing.open(t); err != nil {
				return err
			}
		case trcio.TokEnd:
			if err := ing.close(t); err != nil {
				return err
			}
		case trcio.TokChars:
			ing.chars(t.Text)
		}
	}

	if len(ing.stack) > 0 {
		return &LogError{Path: ing.path(), Err: ErrUnterminatedLog}
	}

	return nil
}

func (ing *Ingestor) path() string {
	names := make([]string, len(ing.stack))
	for i, f := range ing.stack {
		names[i] = f.name
	}

	return "/" + strings.Join(names, "/")
}

func (ing *Ingestor) stepSkip(t trcio.Token) {
	switch t.Kind {
	case trcio.TokStart:
		ing.skipDepth++
	case trcio.TokEnd:
		ing.skipDepth--
	}
}

func (ing *Ingestor) push(f frame) { ing.stack = append(ing.stack, f) }

func (ing *Ingestor) pop() frame {
	f := ing.stack[len(ing.stack)-1]
	ing.stack = ing.stack[:len(ing.stack)-1]

	return f
}

// open handles one opening element. "verdict" inside Verdicts and "param"
// inside Params are leaves with no further nesting of interest; they are
// handled directly rather than through elementTarget/ValidateStateTransition
// since they never change ing.state.
func (ing *Ingestor) open(t trcio.Token) error {
	if ing.state == StateVerdicts && t.Name == "verdict" {
		ing.push(frame{state: ing.state, name: t.Name})
		ing.inVerdict = true
		ing.verdictBuf.Reset()

		return nil
	}

	if ing.state == StateParams && t.Name == "param" {
		ing.pendingArgs[t.Attrs["name"]] = t.Attrs["value"]
		ing.skipDepth = 1

		return nil
	}

	if ing.state == StateLogs && t.Name == "msg" {
		if t.Attrs["entity"] != "Dispatcher" || t.Attrs["user"] != "TRC tags" {
			ing.skipDepth = 1

			return nil
		}
	}

	target, known := elementTarget(t.Name)
	if !known || ValidateStateTransition(ing.state, target) != nil {
		ing.skipDepth = 1

		return nil
	}

	if target == StateTest {
		return ing.openTest(t)
	}

	ing.push(frame{state: ing.state, name: t.Name})
	ing.state = target

	if target == StateMeta {
		ing.resetPending()

		if raw, ok := t.Attrs["result"]; ok && raw != "" {
			status, err := trcresult.ParseStatus(raw)
			if err != nil {
				return &LogError{Path: ing.path(), Err: err}
			}

			ing.pendingStatus = status
		}
	}

	return nil
}

func (ing *Ingestor) openTest(t trcio.Token) error {
	name := t.Attrs["name"]
	ing.walker.StepToTest(name, true)

	id, _ := ing.walker.Current()

	ing.push(frame{state: ing.state, name: t.Name, node: id, hasNode: true})
	ing.state = StateTest

	return nil
}

func (ing *Ingestor) close(t trcio.Token) error {
	if ing.inVerdict && t.Name == "verdict" {
		ing.inVerdict = false
		ing.pop()

		v, err := trcresult.NewVerdict(strings.TrimSpace(ing.verdictBuf.String()))
		if err != nil {
			return &LogError{Path: ing.path(), Err: err}
		}

		ing.pendingVerdicts = append(ing.pendingVerdicts, v)

		return nil
	}

	if len(ing.stack) == 0 {
		return &LogError{Path: "/", Err: fmt.Errorf("%w: </%s>", ErrUnexpectedClose, t.Name)}
	}

	top := ing.stack[len(ing.stack)-1]
	if top.name != t.Name {
		return &LogError{Path: ing.path(), Err: fmt.Errorf("%w: expected </%s>, got </%s>", ErrUnexpectedClose, top.name, t.Name)}
	}

	ing.pop()
	ing.state = top.state

	switch t.Name {
	case "meta":
		return ing.commitMeta()
	case "objective":
		if ing.opts.UpdateObjective {
			testID, _ := ing.walker.Current()
			ing.db.SetObjective(testID, strings.TrimSpace(ing.pendingObjective))
		}
	case "test", "pkg", "session":
		ing.walker.StepBack()
	}

	return nil
}

func (ing *Ingestor) chars(text string) {
	switch {
	case ing.inVerdict:
		ing.verdictBuf.WriteString(text)
	case ing.state == StateObjective:
		ing.pendingObjective += text
	case ing.state == StateTags:
		if ing.opts.IgnoreLogTags {
			return
		}

		for _, tok := range splitTagTokens(text) {
			ing.activeTags.Add(tok)
		}
	}
}

func splitTagTokens(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})

	out := make([]string, 0, len(fields))

	for _, f := range fields {
		if trimmed := strings.TrimSpace(f); trimmed != "" {
			out = append(out, trimmed)
		}
	}

	return out
}

func (ing *Ingestor) resetPending() {
	ing.pendingArgs = make(map[string]string)
	ing.pendingObjective = ""
	ing.pendingVerdicts = nil
	ing.pendingStatus = ""
}

// commitMeta runs step_to_iter with the collected argument vector (in
// canonical argument-name order, so the same set of params always produces
// the same vector regardless of the order they appeared in the log) and
// merges the pending observed result into the iteration's per-uid record
// (SPEC_FULL.md §4.E "Closing </meta>").
func (ing *Ingestor) commitMeta() error {
	args := canonicalArgs(ing.pendingArgs)

	ing.walker.StepToIter(args, true, false, ing.opts.Matcher)

	iterID, _ := ing.walker.Current()

	observed := trcresult.Result{Status: ing.pendingStatus, Verdicts: ing.pendingVerdicts}

	if existing, ok := ing.db.GetUserData(iterID, ing.uid); ok {
		rec := existing.(*IterationRecord)
		rec.Observed = append(rec.Observed, observed)
	} else {
		entries, found := resolve.Resolve(ing.db, iterID, ing.activeTags)
		ing.db.SetUserData(iterID, ing.uid, &IterationRecord{
			Resolved:      entries,
			ResolvedFound: found,
			Observed:      []trcresult.Result{observed},
		})
	}

	ing.walker.StepBack()

	return nil
}

func canonicalArgs(pending map[string]string) []trcdb.NamedArg {
	names := make([]string, 0, len(pending))
	for name := range pending {
		names = append(names, name)
	}

	sort.Strings(names)

	args := make([]trcdb.NamedArg, len(names))
	for i, name := range names {
		args[i] = trcdb.NamedArg{Name: name, Value: pending[name]}
	}

	return args
}

// abort marks any test node this Ingestor created (i.e. not already
// Database.Loaded) along the still-open frame stack as not-to-emit, so a
// structural error never leaves a half-built test visible in a later Save
// (SPEC_FULL.md §4.E error semantics).
func (ing *Ingestor) abort() {
	for _, f := range ing.stack {
		if f.hasNode && !ing.db.Loaded(f.node) {
			ing.db.SetEmit(f.node, false)
		}
	}
}
