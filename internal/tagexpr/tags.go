// Package tagexpr implements the tag logic language: a small propositional
// grammar over string atoms ("linux", "kver_ge:3_10") with "&", "|", "!" and
// parentheses, used throughout TRC to select which expected-result
// alternative applies under a given active tag set (SPEC_FULL.md §4.A).
package tagexpr

import "strings"

// Set is the active tag set built up while ingesting one log
// (SPEC_FULL.md §3 "Tag"). It is unordered-with-uniqueness-by-name: adding
// "kver:3_12" after "kver:3_10" supersedes the earlier value, exactly like
// the log ingestor's tag-harvesting rule (SPEC_FULL.md §4.E, §8 boundary
// case "name:val1 followed by name:val2").
type Set struct {
	values map[string]string
}

// NewSet returns an empty active tag Set.
func NewSet() *Set {
	return &Set{values: make(map[string]string)}
}

// Add inserts a raw tag token ("NAME" or "NAME:VALUE") into the set,
// superseding any previous value recorded under the same NAME.
func (s *Set) Add(raw string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return
	}

	name, value, _ := strings.Cut(raw, ":")
	s.values[name] = value
}

// Has reports whether NAME is present in the set (with any value, including
// none).
func (s *Set) Has(name string) bool {
	if s == nil {
		return false
	}

	_, ok := s.values[name]

	return ok
}

// Value returns the value recorded for NAME and whether NAME is present.
func (s *Set) Value(name string) (string, bool) {
	if s == nil {
		return "", false
	}

	v, ok := s.values[name]

	return v, ok
}

// Names returns the set's tag names, unsorted.
func (s *Set) Names() []string {
	if s == nil {
		return nil
	}

	names := make([]string, 0, len(s.values))
	for name := range s.values {
		names = append(names, name)
	}

	return names
}
