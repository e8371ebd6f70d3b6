// Package tagrules loads and applies the regex-based key-substitution rules
// used when rendering report output: a bug key like "BUG-1234" substituted
// into a tracker URL, a tag expression reduced to a short display label, and
// so on.
//
// This is the one piece of process-wide state in TRC (SPEC_FULL.md §5
// "Shared resource policy"), and it is deliberately not a package-level
// singleton: callers hold an explicit *Table returned by Init and release it
// with Close when done.
package tagrules

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Rule is one regular-expression substitution: input strings matching
// Pattern are rewritten using Template, which may reference capture groups
// with Go's regexp.ReplaceAllString syntax ("$1", "${name}").
type Rule struct {
	Pattern  string `yaml:"pattern"`
	Template string `yaml:"template"`

	re *regexp.Regexp
}

// Namespace groups rules under a name a renderer asks for by key, mirroring
// the well-known namespaces a report renderer needs: "URL" for bug-tracker
// links, "TABLE" for table-cell hrefs, "SCRIPT" for test-name links, "TAGS"
// for tag-expression display labels.
type Namespace struct {
	Name  string `yaml:"name"`
	Rules []Rule `yaml:"rules"`
}

type document struct {
	Namespaces []Namespace `yaml:"namespaces"`
}

// Table is the compiled, ready-to-query form of a rules document.
type Table struct {
	namespaces map[string]Namespace
}

// Init reads and compiles the rules document at path. A missing file is not
// an error: it yields an empty Table, so callers that never configured
// key-substitution rules still get pass-through behavior from Substitute.
func Init(path string) (*Table, error) {
	t := &Table{namespaces: make(map[string]Namespace)}

	if path == "" {
		return t, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}

		return nil, fmt.Errorf("tagrules: reading %s: %w", path, err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("tagrules: parsing %s: %w", path, err)
	}

	for _, ns := range doc.Namespaces {
		for i := range ns.Rules {
			re, err := regexp.Compile(ns.Rules[i].Pattern)
			if err != nil {
				return nil, fmt.Errorf("tagrules: namespace %s: compiling pattern %q: %w", ns.Name, ns.Rules[i].Pattern, err)
			}

			ns.Rules[i].re = re
		}

		t.namespaces[ns.Name] = ns
	}

	return t, nil
}

// Close releases the table. There is currently nothing to release, but every
// caller goes through Close so a future version that memory-maps the rules
// file or watches it for changes doesn't need every call site touched.
func (t *Table) Close() error {
	return nil
}

// Substitute applies the first matching rule in namespace to input and
// returns the result. If namespace is unknown or no rule matches, input is
// returned unchanged.
func (t *Table) Substitute(namespace, input string) string {
	ns, ok := t.namespaces[namespace]
	if !ok {
		return input
	}

	for _, r := range ns.Rules {
		if r.re.MatchString(input) {
			return r.re.ReplaceAllString(input, r.Template)
		}
	}

	return input
}
