package trcio

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/trc-go/trc/internal/tagexpr"
	"github.com/trc-go/trc/internal/trcdb"
	"github.com/trc-go/trc/internal/trcresult"
)

const (
	includeStartPrefix = "trc:include "
	includeEndMarker   = "trc:include-end"
)

// StrictEmptyPredicate, when true, makes Load reject a "results" block whose
// "tags" attribute is empty instead of treating it as AlwaysTrue. This
// preserves the historical strict interpretation for callers that ask for
// it (SPEC_FULL.md §4.A open-question resolution); the default (false) is
// the always-match behaviour.
var StrictEmptyPredicate = false

// Load reads the expectations database document at path into a fresh
// Database. Transient I/O errors are retried with bounded exponential
// backoff before being propagated (SPEC_FULL.md §4.D, §7).
func Load(ctx context.Context, path string) (*trcdb.Database, error) {
	var data []byte

	readErr := backoff.Retry(func() error {
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		data = b

		return nil
	}, retryPolicy(ctx))
	if readErr != nil {
		return nil, fmt.Errorf("trcio: reading %s: %w", path, readErr)
	}

	db := trcdb.New()

	tok := NewTokenizer(data)
	if err := loadDocument(tok, db); err != nil {
		return nil, err
	}

	return db, nil
}

func retryPolicy(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 10 * time.Second

	return backoff.WithContext(b, ctx)
}

func loadDocument(tok *Tokenizer, db *trcdb.Database) error {
	for {
		t, err := tok.Next()
		if err != nil {
			return fmt.Errorf("trcio: %w: %v", ErrMalformed, err)
		}

		if t.Kind != TokStart {
			continue
		}

		if t.Name != "database" {
			return &DocumentError{Path: "/", Err: fmt.Errorf("%w: expected <database>, got <%s>", ErrMalformed, t.Name)}
		}

		break
	}

	return parseTestList(tok, db, db.Root(), "/", "database")
}

// parseTestList consumes zero or more <test> elements and include-marker
// comments until endTag closes, attaching each test as a child of parent.
func parseTestList(tok *Tokenizer, db *trcdb.Database, parent trcdb.NodeID, path, endTag string) error {
	for {
		t, err := tok.Next()
		if err != nil {
			return fmt.Errorf("trcio: %w: %v", ErrMalformed, err)
		}

		switch t.Kind {
		case TokEnd:
			if t.Name == endTag {
				return nil
			}

			return &DocumentError{Path: path, Err: fmt.Errorf("%w: expected </%s>, got </%s>", ErrMalformed, endTag, t.Name)}
		case TokComment:
			if err := consumeComment(tok, db, parent, t); err != nil {
				return &DocumentError{Path: path, Err: err}
			}
		case TokStart:
			switch t.Name {
			case "test":
				if err := parseTest(tok, db, parent, path, t); err != nil {
					return err
				}
			case "globals":
				text, err := readText(tok, "globals")
				if err != nil {
					return &DocumentError{Path: path, Err: err}
				}

				db.SetGlobals(text)
			default:
				return &DocumentError{Path: path, Err: fmt.Errorf("%w: unexpected <%s>", ErrMalformed, t.Name)}
			}
		}
	}
}

func parseTest(tok *Tokenizer, db *trcdb.Database, parent trcdb.NodeID, path string, start Token) error {
	name := start.Attrs["name"]
	id := db.NewTest(parent, name)
	db.SetTestInfo(id, start.Attrs["type"], start.Attrs["auxiliary"])
	db.MarkLoaded(id)

	testPath := path + "/test[" + name + "]"

	return parseIterList(tok, db, id, testPath)
}

// parseIterList consumes a <test>'s body: an optional <objective>, an
// optional <notes>, then zero or more <iter> elements and include-marker
// comments, until </test> closes.
func parseIterList(tok *Tokenizer, db *trcdb.Database, testID trcdb.NodeID, path string) error {
	for {
		t, err := tok.Next()
		if err != nil {
			return fmt.Errorf("trcio: %w: %v", ErrMalformed, err)
		}

		switch t.Kind {
		case TokEnd:
			if t.Name == "test" {
				return nil
			}

			return &DocumentError{Path: path, Err: fmt.Errorf("%w: expected </test>, got </%s>", ErrMalformed, t.Name)}
		case TokComment:
			if err := consumeComment(tok, db, testID, t); err != nil {
				return &DocumentError{Path: path, Err: err}
			}
		case TokStart:
			switch t.Name {
			case "iter":
				if err := parseIter(tok, db, testID, path, t); err != nil {
					return err
				}
			case "objective":
				text, err := readText(tok, "objective")
				if err != nil {
					return &DocumentError{Path: path, Err: err}
				}

				db.SetObjective(testID, text)
			case "notes":
				text, err := readText(tok, "notes")
				if err != nil {
					return &DocumentError{Path: path, Err: err}
				}

				db.SetNotes(testID, text)
			default:
				return &DocumentError{Path: path, Err: fmt.Errorf("%w: unexpected <%s>", ErrMalformed, t.Name)}
			}
		}
	}
}

func parseIter(tok *Tokenizer, db *trcdb.Database, testID trcdb.NodeID, path string, start Token) error {
	id := db.NewIter(testID, nil)
	db.MarkLoaded(id)

	if raw, ok := start.Attrs["result"]; ok && raw != "" {
		status, err := trcresult.ParseStatus(raw)
		if err != nil {
			return &DocumentError{Path: path, Err: err}
		}

		db.SetIterInfo(id, status)
	}

	iterPath := path + "/iter"

	for {
		t, err := tok.Next()
		if err != nil {
			return fmt.Errorf("trcio: %w: %v", ErrMalformed, err)
		}

		switch t.Kind {
		case TokEnd:
			if t.Name == "iter" {
				return nil
			}

			return &DocumentError{Path: iterPath, Err: fmt.Errorf("%w: expected </iter>, got </%s>", ErrMalformed, t.Name)}
		case TokComment:
			if err := consumeComment(tok, db, id, t); err != nil {
				return &DocumentError{Path: iterPath, Err: err}
			}
		case TokStart:
			switch t.Name {
			case "arg":
				argName, ok := t.Attrs["name"]
				if !ok || argName == "" {
					return &DocumentError{Path: iterPath, Err: fmt.Errorf("%w: <arg> missing name attribute", ErrMalformed)}
				}

				text, err := readText(tok, "arg")
				if err != nil {
					return &DocumentError{Path: iterPath, Err: err}
				}

				db.AppendArg(id, argName, text)
			case "notes":
				text, err := readText(tok, "notes")
				if err != nil {
					return &DocumentError{Path: iterPath, Err: err}
				}

				db.SetNotes(id, text)
			case "results":
				if err := parseResults(tok, db, id, iterPath, t); err != nil {
					return err
				}
			case "test":
				if err := parseTest(tok, db, id, iterPath, t); err != nil {
					return err
				}
			default:
				return &DocumentError{Path: iterPath, Err: fmt.Errorf("%w: unexpected <%s>", ErrMalformed, t.Name)}
			}
		}
	}
}

func parseResults(tok *Tokenizer, db *trcdb.Database, iterID trcdb.NodeID, path string, start Token) error {
	tags := start.Attrs["tags"]
	if strings.TrimSpace(tags) == "" && StrictEmptyPredicate {
		return &DocumentError{Path: path + "/results", Err: fmt.Errorf("%w: empty tags attribute", ErrMalformed)}
	}

	expr, err := tagexpr.Parse(tags)
	if err != nil {
		return &DocumentError{Path: path + "/results", Err: err}
	}

	set := trcdb.ExpectSet{Tags: tags, Expr: expr, Key: start.Attrs["key"], Notes: start.Attrs["notes"]}

	for {
		t, terr := tok.Next()
		if terr != nil {
			return fmt.Errorf("trcio: %w: %v", ErrMalformed, terr)
		}

		switch t.Kind {
		case TokEnd:
			if t.Name == "results" {
				db.AddExpectSet(iterID, set)

				return nil
			}

			return &DocumentError{Path: path, Err: fmt.Errorf("%w: expected </results>, got </%s>", ErrMalformed, t.Name)}
		case TokStart:
			if t.Name != "result" {
				return &DocumentError{Path: path, Err: fmt.Errorf("%w: unexpected <%s>", ErrMalformed, t.Name)}
			}

			entry, err := parseResultEntry(tok, t)
			if err != nil {
				return &DocumentError{Path: path + "/result", Err: err}
			}

			set.Entries = append(set.Entries, entry)
		}
	}
}

func parseResultEntry(tok *Tokenizer, start Token) (trcresult.Entry, error) {
	status, err := trcresult.ParseStatus(start.Attrs["value"])
	if err != nil {
		return trcresult.Entry{}, err
	}

	entry := trcresult.Entry{
		Result: trcresult.Result{Status: status},
		Key:    start.Attrs["key"],
		Notes:  start.Attrs["notes"],
	}

	for {
		t, err := tok.Next()
		if err != nil {
			return trcresult.Entry{}, err
		}

		switch t.Kind {
		case TokEnd:
			if t.Name == "result" {
				return entry, nil
			}

			return trcresult.Entry{}, fmt.Errorf("%w: expected </result>, got </%s>", ErrMalformed, t.Name)
		case TokStart:
			if t.Name != "verdict" {
				return trcresult.Entry{}, fmt.Errorf("%w: unexpected <%s>", ErrMalformed, t.Name)
			}

			text, err := readText(tok, "verdict")
			if err != nil {
				return trcresult.Entry{}, err
			}

			v, err := trcresult.NewVerdict(text)
			if err != nil {
				return trcresult.Entry{}, err
			}

			entry.Result.Verdicts = append(entry.Result.Verdicts, v)
		}
	}
}

// readText accumulates character data up to and including the matching end
// tag named tag, returning the concatenated, trimmed text.
func readText(tok *Tokenizer, tag string) (string, error) {
	var sb strings.Builder

	for {
		t, err := tok.Next()
		if err != nil {
			return "", err
		}

		switch t.Kind {
		case TokChars:
			sb.WriteString(t.Text)
		case TokEnd:
			if t.Name == tag {
				return strings.TrimSpace(sb.String()), nil
			}

			return "", fmt.Errorf("%w: expected </%s>, got </%s>", ErrMalformed, tag, t.Name)
		}
	}
}

// consumeComment recognizes include-directive comment pairs and attaches an
// opaque IncludeMarker to parent; any other comment is ignored. The content
// bracketed by a "trc:include"/"trc:include-end" pair is treated as an
// opaque byte span and is not parsed into the tree — it round-trips
// verbatim without the loader needing to understand its internals
// (SPEC_FULL.md §4.D).
func consumeComment(tok *Tokenizer, db *trcdb.Database, parent trcdb.NodeID, comment Token) error {
	text := strings.TrimSpace(comment.Text)

	if text == includeEndMarker {
		return fmt.Errorf("%w: stray %q", ErrIncludeUnterminated, text)
	}

	if !strings.HasPrefix(text, includeStartPrefix) {
		return nil
	}

	name := strings.TrimSpace(strings.TrimPrefix(text, includeStartPrefix))
	start := comment.OffsetAfter
	beforeChild := len(db.Children(parent))

	for {
		t, err := tok.Next()
		if err != nil {
			return fmt.Errorf("%w: %q", ErrIncludeUnterminated, text)
		}

		if t.Kind == TokComment && strings.TrimSpace(t.Text) == includeEndMarker {
			raw := tok.Raw(start, t.OffsetBefore)
			markers := append(db.IncludeMarkers(parent), trcdb.IncludeMarker{Name: name, BeforeChild: beforeChild, Raw: raw})
			db.SetIncludeMarkers(parent, markers)

			return nil
		}
	}
}
