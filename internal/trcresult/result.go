package trcresult

import (
	"errors"
	"strings"
)

// Sentinel errors for result-model validation failures.
var (
	// ErrEmptyVerdict indicates a verdict string was empty.
	ErrEmptyVerdict = errors.New("verdict cannot be empty")

	// ErrInvalidStatus indicates a status string did not name a known Status.
	ErrInvalidStatus = errors.New("status is not a recognized test status")
)

type (
	// Verdict is a non-empty string emitted by a test during execution.
	// Order among the verdicts of one Result is significant (SPEC_FULL.md §3).
	Verdict string

	// Result is an observed or expected outcome: a status plus an ordered
	// sequence of verdicts. Two Results are Equal iff their statuses match
	// and their verdict sequences match pointwise (SPEC_FULL.md §3).
	Result struct {
		Status   Status
		Verdicts []Verdict
	}

	// Entry is an Result plus the bookkeeping an *expected* entry carries:
	// an optional key (bug/tracker reference, possibly a comma-separated
	// list of atoms) and optional free-text notes.
	Entry struct {
		Result Result
		Key    string
		Notes  string
	}
)

// NewVerdict constructs a Verdict, rejecting the empty string.
func NewVerdict(s string) (Verdict, error) {
	if s == "" {
		return "", ErrEmptyVerdict
	}

	return Verdict(s), nil
}

// Equal reports whether r and other represent the same observed outcome:
// same status, and verdict slices equal pointwise (including length).
func (r Result) Equal(other Result) bool {
	if r.Status != other.Status {
		return false
	}

	if len(r.Verdicts) != len(other.Verdicts) {
		return false
	}

	for i, v := range r.Verdicts {
		if other.Verdicts[i] != v {
			return false
		}
	}

	return true
}

// String renders a Result for logs/diagnostics, e.g. "FAILED[oops, timeout]".
func (r Result) String() string {
	if len(r.Verdicts) == 0 {
		return r.Status.String()
	}

	parts := make([]string, len(r.Verdicts))
	for i, v := range r.Verdicts {
		parts[i] = string(v)
	}

	return r.Status.String() + "[" + strings.Join(parts, ", ") + "]"
}

// Keys splits a (possibly comma-separated) Entry.Key into its atoms, trimming
// whitespace and dropping empties. A bare key with no commas returns a
// single-element slice; an empty key returns nil.
func (e Entry) Keys() []string {
	if strings.TrimSpace(e.Key) == "" {
		return nil
	}

	parts := strings.Split(e.Key, ",")
	keys := make([]string, 0, len(parts))

	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			keys = append(keys, trimmed)
		}
	}

	return keys
}

// Matches reports whether observed is structurally equal to this entry's
// Result — the "is observed equal to any entry?" question callers ask after
// resolving an iteration's expected entries (SPEC_FULL.md §4.F).
func (e Entry) Matches(observed Result) bool {
	return e.Result.Equal(observed)
}

// Entries is an ordered list of expected Entry values, as returned by a
// single matched alternative in an iteration's expected-result set.
type Entries []Entry

// AnyMatches reports whether any entry in the list structurally equals observed.
func (es Entries) AnyMatches(observed Result) bool {
	for _, e := range es {
		if e.Matches(observed) {
			return true
		}
	}

	return false
}

// HasSkipped reports whether any entry in the list has StatusSkipped — used
// by the resolver's Skipped-priority rule (SPEC_FULL.md §4.F rule 1).
func (es Entries) HasSkipped() bool {
	for _, e := range es {
		if e.Result.Status.IsSkipped() {
			return true
		}
	}

	return false
}

// ParseStatus parses a status name (case-insensitive) into a Status,
// returning ErrInvalidStatus if it names nothing recognized. This is the
// single place the loader (internal/trcio) and the log ingestor
// (internal/logintake) convert wire-format strings into the Status enum.
func ParseStatus(name string) (Status, error) {
	candidate := Status(strings.ToUpper(strings.TrimSpace(name)))
	if !candidate.IsValid() {
		return "", ErrInvalidStatus
	}

	return candidate, nil
}
