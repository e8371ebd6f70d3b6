package trcupdate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/trc-go/trc/internal/logintake"
	"github.com/trc-go/trc/internal/tagexpr"
	"github.com/trc-go/trc/internal/trcdb"
	"github.com/trc-go/trc/internal/trcio"
	"github.com/trc-go/trc/internal/trcresult"
)

// IterationPlan is the per-iteration bookkeeping the planner accumulates
// across its four phases (SPEC_FULL.md §4.H).
type IterationPlan struct {
	ID    trcdb.NodeID
	State State

	Old       trcresult.Entries
	Observed  []trcresult.Result
	Conflicts []trcresult.Result
	Proposed  trcresult.Entries

	GroupExpr tagexpr.Expr
	RuleID    string
}

// Plan drives the four update phases over one database. Construct with
// NewPlan, call Ingest once per log group, then Propose, GenerateWildcards
// and Commit in order.
type Plan struct {
	db      *trcdb.Database
	matcher trcdb.ArgMatcher
	rules   *RuleFile

	entries   map[trcdb.NodeID]*IterationPlan
	wildcards map[trcdb.NodeID]string // node -> rule id that produced it ("" if default)

	// Diagnostics collects notes about partitions GenerateWildcards chose
	// not to collapse (SPEC_FULL.md §4.H phase 3 is a heuristic, not an
	// exhaustive search; skipped partitions are reported, not silently
	// dropped).
	Diagnostics []string
}

// NewPlan returns a Plan over db. rules may be nil (no substitution rules:
// every conflicted iteration gets the default union proposal).
func NewPlan(db *trcdb.Database, matcher trcdb.ArgMatcher, rules *RuleFile) *Plan {
	return &Plan{
		db:        db,
		matcher:   matcher,
		rules:     rules,
		entries:   make(map[trcdb.NodeID]*IterationPlan),
		wildcards: make(map[trcdb.NodeID]string),
	}
}

func (p *Plan) transition(e *IterationPlan, to State) error {
	if err := ValidateStateTransition(e.State, to); err != nil {
		return err
	}

	e.State = to

	return nil
}

// Ingest replays one log group's logs under a fresh user id (phase 1),
// recording each touched iteration's old expectations, observed outcomes,
// and any conflicts between them.
func (p *Plan) Ingest(ctx context.Context, group LogGroup) error {
	if len(group.Logs) == 0 {
		return ErrNoLogs
	}

	streams, err := logintake.ReadLogs(ctx, group.Logs)
	if err != nil {
		return err
	}

	uid := p.db.NewUserID()
	ing := logintake.NewIngestor(p.db, uid, group.Tags, logintake.Options{Matcher: p.matcher})

	for _, tokens := range streams {
		if err := ing.Feed(tokens); err != nil {
			return fmt.Errorf("trcupdate: ingesting group %q: %w", group.Name, err)
		}
	}

	expr := predicateExpr(group.Tags)

	for _, id := range iterNodes(p.db) {
		raw, ok := p.db.GetUserData(id, uid)
		if !ok {
			continue
		}

		rec := raw.(*logintake.IterationRecord)

		entry := &IterationPlan{ID: id, State: StateUntouched, GroupExpr: expr}
		if err := p.transition(entry, StateIngested); err != nil {
			return err
		}

		entry.Old = rec.Resolved
		entry.Observed = rec.Observed

		for _, obs := range rec.Observed {
			if !rec.Resolved.AnyMatches(obs) {
				entry.Conflicts = append(entry.Conflicts, obs)
			}
		}

		p.entries[id] = entry
	}

	return nil
}

func iterNodes(db *trcdb.Database) []trcdb.NodeID {
	w := trcdb.NewWalker(db)

	var ids []trcdb.NodeID

	for {
		event := w.Move()
		if event == trcdb.MoveRoot {
			break
		}

		if event != trcdb.MoveSon && event != trcdb.MoveBrother {
			continue
		}

		id, _ := w.Current()
		if db.Kind(id) == trcdb.KindIter {
			ids = append(ids, id)
		}
	}

	return ids
}

// Propose runs phase 2: every touched iteration with conflicts gets either
// a rule-driven substitution or the default union proposal; untouched
// conflicts-free iterations are marked unchanged.
func (p *Plan) Propose() error {
	for _, e := range p.entries {
		if len(e.Conflicts) == 0 {
			if err := p.transition(e, StateUnchanged); err != nil {
				return err
			}

			continue
		}

		if err := p.transition(e, StateProposed); err != nil {
			return err
		}

		if rule := p.matchRule(e); rule != nil {
			e.Proposed = resultsToEntries(rule.NewResults)
			e.RuleID = rule.ID

			if err := p.transition(e, StateRewritten); err != nil {
				return err
			}

			continue
		}

		e.Proposed = unionEntries(e.Old, e.Conflicts)
	}

	return nil
}

func resultsToEntries(patterns []ResultPattern) trcresult.Entries {
	entries := make(trcresult.Entries, 0, len(patterns))
	for _, p := range patterns {
		entries = append(entries, trcresult.Entry{Result: p.result()})
	}

	return entries
}

func unionEntries(old trcresult.Entries, conflicts []trcresult.Result) trcresult.Entries {
	out := append(trcresult.Entries(nil), old...)

	for _, c := range conflicts {
		if !out.AnyMatches(c) {
			out = append(out, trcresult.Entry{Result: c})
		}
	}

	return out
}

// matchRule returns the first rule (declaration order) whose shape matches
// e and whose match clause fits e's outcome. A rule's shape matches when it
// lists e's path explicitly or its Test+ArgPattern fits e's arguments; an
// explicit rule gets no priority over an earlier argument-pattern rule.
func (p *Plan) matchRule(e *IterationPlan) *Rule {
	if p.rules == nil {
		return nil
	}

	path := iterPath(p.db, e.ID)
	testID := p.db.Parent(e.ID)
	testName := p.db.TestName(testID)
	args := p.db.Args(e.ID)

	for i := range p.rules.Rules {
		r := &p.rules.Rules[i]
		if !r.appliesToExplicit(path) && !r.appliesToArgs(testName, args) {
			continue
		}

		if r.matchesOutcome(e.Old, e.Conflicts) {
			return r
		}
	}

	return nil
}

// ValidateRules checks every rule's explicit Iterations references an
// iteration that actually exists in db — a hard error raised before any
// commit, independent of whether the rule ever matches an outcome
// (SPEC_FULL.md §4.H Failure).
func (p *Plan) ValidateRules() error {
	if p.rules == nil {
		return nil
	}

	known := make(map[string]bool)
	for _, id := range iterNodes(p.db) {
		known[iterPath(p.db, id)] = true
	}

	for _, r := range p.rules.Rules {
		for _, path := range r.Iterations {
			if !known[path] {
				return fmt.Errorf("%w: %s (rule %s)", ErrUnknownIterationPath, path, r.ID)
			}
		}
	}

	return nil
}

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
		path += "(" + argsString(db.Args(id)) + ")"
	}

	return path
}

func argsString(args []trcdb.NamedArg) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}

	return strings.Join(parts, ",")
}

// Entries returns the current per-iteration plans, keyed by node id.
func (p *Plan) Entries() map[trcdb.NodeID]*IterationPlan { return p.entries }

// Commit runs phase 4: every proposed/rewritten iteration's expected-result
// set is replaced in the database, tagged under its group's predicate
// (SPEC_FULL.md §4.D, §4.H phase 4), then trcio.Save writes only what this
// run touched plus whatever the database already carried.
func (p *Plan) Commit(ctx context.Context, path string) error {
	for _, e := range p.entries {
		switch e.State {
		case StateUnchanged:
			continue
		case StateProposed, StateRewritten:
		default:
			continue
		}

		p.db.ReplaceExpectSets(e.ID, []trcdb.ExpectSet{{
			Expr:    e.GroupExpr,
			Tags:    e.GroupExpr.String(),
			Entries: e.Proposed,
		}})

		if e.RuleID != "" {
			p.wildcards[e.ID] = e.RuleID
		}
	}

	annotate := func(db *trcdb.Database, id trcdb.NodeID) map[string]string {
		if ruleID, ok := p.wildcards[id]; ok {
			return map[string]string{"rule": ruleID}
		}

		return nil
	}

	if err := trcio.Save(ctx, p.db, path, trcio.SaveOptions{Annotate: annotate}); err != nil {
		for _, e := range p.entries {
			if e.State == StateProposed || e.State == StateRewritten || e.State == StateUnchanged {
				_ = p.transition(e, StateRolledBack)
			}
		}

		return err
	}

	for _, e := range p.entries {
		switch e.State {
		case StateProposed, StateRewritten, StateUnchanged:
			_ = p.transition(e, StateCommitted)
		}
	}

	return nil
}

// GenerateWildcards runs phase 3: groups of sibling iterations whose phase-2
// proposals came out identical and whose argument vectors vary in exactly
// one position are collapsed into a single wildcard iteration covering that
// position, inserted ahead of the concrete iterations it replaces. Groups
// that vary across more than one argument position are left as concrete
// iterations and recorded in Diagnostics instead of silently skipped — a
// minimal single-axis collapse, not the full combinatorial cover, is what
// this phase implements (SPEC_FULL.md §4.H phase 3).
func (p *Plan) GenerateWildcards() {
	byOutcome := make(map[string][]*IterationPlan)

	for _, e := range p.entries {
		if e.State != StateProposed && e.State != StateRewritten {
			continue
		}

		parent := p.db.Parent(e.ID)
		key := fmt.Sprintf("%d|%s", parent, entriesKey(e.Proposed))
		byOutcome[key] = append(byOutcome[key], e)
	}

	for _, members := range byOutcome {
		if len(members) < 2 {
			continue
		}

		parent := p.db.Parent(members[0].ID)

		varyName, ok := singleVaryingArgName(p.db, members)
		if !ok {
			p.Diagnostics = append(p.Diagnostics, fmt.Sprintf(
				"test %s: %d iterations share a proposed outcome but vary across more than one argument; leaving them concrete",
				p.db.TestName(parent), len(members)))

			continue
		}

		template := append([]trcdb.NamedArg(nil), p.db.Args(members[0].ID)...)
		for i := range template {
			if template[i].Name == varyName {
				template[i].Value = trcdb.WildcardArg
			}
		}

		before := members[0].ID
		for _, m := range members[1:] {
			if m.ID < before {
				before = m.ID
			}
		}

		wildcardID := p.db.InsertIterBefore(parent, before, template)
		p.db.ReplaceExpectSets(wildcardID, []trcdb.ExpectSet{{
			Expr:    members[0].GroupExpr,
			Tags:    members[0].GroupExpr.String(),
			Entries: members[0].Proposed,
		}})

		ruleID := members[0].RuleID
		if ruleID != "" {
			p.wildcards[wildcardID] = ruleID
		}

		p.entries[wildcardID] = &IterationPlan{
			ID:        wildcardID,
			State:     members[0].State,
			GroupExpr: members[0].GroupExpr,
			Proposed:  members[0].Proposed,
			RuleID:    ruleID,
		}

		for _, m := range members {
			p.db.SetEmit(m.ID, false)
			delete(p.entries, m.ID)
		}
	}
}

func entriesKey(entries trcresult.Entries) string {
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = e.Result.String() + "|" + e.Key
	}

	return strings.Join(parts, ";")
}

// singleVaryingArgName reports the one argument name whose value differs
// across members' argument vectors, if exactly one such name exists. Each
// member's vector is matched to the first by name, not position, so the
// result is correct even if two iterations recorded their arguments in a
// different order.
func singleVaryingArgName(db *trcdb.Database, members []*IterationPlan) (string, bool) {
	first := db.Args(members[0].ID)

	varying := ""

	for _, m := range members[1:] {
		args := db.Args(m.ID)
		if len(args) != len(first) {
			return "", false
		}

		for _, a := range first {
			g, ok := findArgByName(args, a.Name)
			if !ok {
				return "", false
			}

			if g.Value != a.Value {
				if varying != "" && varying != a.Name {
					return "", false
				}

				varying = a.Name
			}
		}
	}

	if varying == "" {
		return "", false
	}

	return varying, true
}

func findArgByName(args []trcdb.NamedArg, name string) (trcdb.NamedArg, bool) {
	for _, a := range args {
		if a.Name == name {
			return a, true
		}
	}

	return trcdb.NamedArg{}, false
}

// sortedNodeIDs is a small determinism helper for callers that want to
// iterate Entries() in a stable order (e.g. for a report).
func sortedNodeIDs(ids map[trcdb.NodeID]*IterationPlan) []trcdb.NodeID {
	out := make([]trcdb.NodeID, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}

// SortedEntries returns the planner's per-iteration plans ordered by node id
// for deterministic reporting.
func (p *Plan) SortedEntries() []*IterationPlan {
	ids := sortedNodeIDs(p.entries)
	out := make([]*IterationPlan, len(ids))

	for i, id := range ids {
		out[i] = p.entries[id]
	}

	return out
}
