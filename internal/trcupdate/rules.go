package trcupdate

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/trc-go/trc/internal/trcdb"
	"github.com/trc-go/trc/internal/trcresult"
)

// ResultPattern matches (or constructs) one trcresult.Result in a rule file.
// An empty Status matches any status; nil Verdicts matches any verdicts.
type ResultPattern struct {
	Status   string   `yaml:"status,omitempty"`
	Verdicts []string `yaml:"verdicts,omitempty"`
}

func (p ResultPattern) matches(r trcresult.Result) bool {
	if p.Status != "" && p.Status != string(r.Status) {
		return false
	}

	if p.Verdicts == nil {
		return true
	}

	if len(p.Verdicts) != len(r.Verdicts) {
		return false
	}

	for i, v := range p.Verdicts {
		if string(r.Verdicts[i]) != v {
			return false
		}
	}

	return true
}

func (p ResultPattern) result() trcresult.Result {
	r := trcresult.Result{Status: trcresult.Status(p.Status)}
	for _, v := range p.Verdicts {
		r.Verdicts = append(r.Verdicts, trcresult.Verdict(v))
	}

	return r
}

// RuleMatch is the (old results, conflicts) side of a substitution rule.
// Both lists must be satisfied — every old-results pattern must match some
// old entry, every conflicts pattern must match some conflicting
// observation — for the rule to fire.
type RuleMatch struct {
	OldResults []ResultPattern `yaml:"old_results,omitempty"`
	Conflicts  []ResultPattern `yaml:"conflicts,omitempty"`
}

// Rule is one operator-authored substitution: when an iteration's old
// expectations and new conflicts both match Match, propose NewResults
// instead of the default union (SPEC_FULL.md §4.H phase 2).
//
// A rule names the iterations it applies to one of two ways: Iterations
// lists explicit test paths (exact match), or Test+ArgPattern names a test
// and a name-keyed argument pattern ("*" wildcards any value) that every
// iteration sharing that set of argument names is checked against.
type Rule struct {
	ID         string            `yaml:"id,omitempty"`
	Iterations []string          `yaml:"iterations,omitempty"`
	Test       string            `yaml:"test,omitempty"`
	ArgPattern map[string]string `yaml:"arg_pattern,omitempty"`
	Match      RuleMatch         `yaml:"match"`
	NewResults []ResultPattern   `yaml:"new_results"`
}

// RuleFile is the parsed form of an update rules document.
type RuleFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules parses a YAML rules file, minting a uuid-based id for any rule
// left unnamed so every committed iteration can be annotated with a rule id
// (SPEC_FULL.md §4.H "Rules file format").
func LoadRules(path string) (*RuleFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("trcupdate: reading rules file %s: %w", path, err)
	}

	var rf RuleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("trcupdate: parsing rules file %s: %w", path, err)
	}

	for i := range rf.Rules {
		if rf.Rules[i].ID == "" {
			rf.Rules[i].ID = uuid.NewString()
		}
	}

	return &rf, nil
}

// appliesToExplicit reports whether r names path explicitly.
func (r Rule) appliesToExplicit(path string) bool {
	for _, p := range r.Iterations {
		if p == path {
			return true
		}
	}

	return false
}

// appliesToArgs reports whether r's Test+ArgPattern matches testName/args:
// every argument name present in args must have a pattern entry, matching
// unless the pattern is "*".
func (r Rule) appliesToArgs(testName string, args []trcdb.NamedArg) bool {
	if r.Test == "" || r.Test != testName {
		return false
	}

	if len(r.ArgPattern) != len(args) {
		return false
	}

	for _, a := range args {
		pattern, ok := r.ArgPattern[a.Name]
		if !ok {
			return false
		}

		if pattern != "*" && pattern != a.Value {
			return false
		}
	}

	return true
}

// matchesOutcome reports whether a rule's match clause is satisfied by the
// given old expected entries and new conflicting observations.
func (r Rule) matchesOutcome(old trcresult.Entries, conflicts []trcresult.Result) bool {
	for _, pat := range r.Match.OldResults {
		if !anyEntryMatches(pat, old) {
			return false
		}
	}

	for _, pat := range r.Match.Conflicts {
		if !anyResultMatches(pat, conflicts) {
			return false
		}
	}

	return true
}

func anyEntryMatches(pat ResultPattern, entries trcresult.Entries) bool {
	for _, e := range entries {
		if pat.matches(e.Result) {
			return true
		}
	}

	return false
}

func anyResultMatches(pat ResultPattern, results []trcresult.Result) bool {
	for _, r := range results {
		if pat.matches(r) {
			return true
		}
	}

	return false
}
