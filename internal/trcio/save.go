package trcio

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gofrs/flock"

	"github.com/trc-go/trc/internal/trcdb"
	"github.com/trc-go/trc/internal/trcresult"
)

// SavePredicate decides whether a node is written back out. The default
// (nil SaveOptions.ShouldSave) uses Database.ShouldEmit. Skipping a node skips
// its entire subtree — there is no way to emit a child whose parent element
// was not written.
type SavePredicate func(db *trcdb.Database, id trcdb.NodeID) bool

// AnnotateFunc returns extra attributes to merge onto a node's start
// element, e.g. the update planner stamping a rule id onto a newly
// generated iteration (SPEC_FULL.md §4.D, §4.H).
type AnnotateFunc func(db *trcdb.Database, id trcdb.NodeID) map[string]string

// SaveOptions customizes Save's per-node behaviour.
type SaveOptions struct {
	ShouldSave SavePredicate
	Annotate   AnnotateFunc

	// LockTimeout bounds how long Save waits for the advisory file lock.
	// Zero means 5 seconds.
	LockTimeout time.Duration
}

// docWriter threads an xml.Encoder and its backing buffer through the
// serializer so an include marker's captured raw span (valid XML bytes
// sliced verbatim from the original document) can be written directly to
// the buffer, bypassing the encoder's own escaping — the same "don't
// reconstruct it" trick the loader uses to capture it.
type docWriter struct {
	enc *xml.Encoder
	buf *bytes.Buffer
}

func (w *docWriter) token(t xml.Token) error { return w.enc.EncodeToken(t) }

func (w *docWriter) raw(b []byte) error {
	if err := w.enc.Flush(); err != nil {
		return err
	}

	_, err := w.buf.Write(b)

	return err
}

// Save serializes db to path, guarded by an advisory file lock so two CLI
// invocations never race on a save (SPEC_FULL.md §4.D, §5 single-writer
// invariant). Transient I/O errors are retried with bounded exponential
// backoff before being propagated.
func Save(ctx context.Context, db *trcdb.Database, path string, opts SaveOptions) error {
	if opts.ShouldSave == nil {
		opts.ShouldSave = func(db *trcdb.Database, id trcdb.NodeID) bool { return db.ShouldEmit(id) }
	}

	timeout := opts.LockTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	lock := flock.New(path + ".lock")

	locked, err := lock.TryLockContext(lockCtx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("trcio: acquiring lock for %s: %w", path, err)
	}

	if !locked {
		return fmt.Errorf("%w: %s", ErrLocked, path)
	}

	defer lock.Unlock()

	var buf bytes.Buffer

	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")

	dw := &docWriter{enc: enc, buf: &buf}

	if err := writeDocument(dw, db, opts); err != nil {
		return err
	}

	if err := enc.Flush(); err != nil {
		return fmt.Errorf("trcio: encoding %s: %w", path, err)
	}

	writeErr := backoff.Retry(func() error {
		return os.WriteFile(path, buf.Bytes(), 0o644)
	}, retryPolicy(ctx))
	if writeErr != nil {
		return fmt.Errorf("trcio: writing %s: %w", path, writeErr)
	}

	return nil
}

func writeDocument(dw *docWriter, db *trcdb.Database, opts SaveOptions) error {
	root := xml.StartElement{Name: xml.Name{Local: "database"}}
	if err := dw.token(root); err != nil {
		return err
	}

	if globals := db.Globals(); globals != "" {
		if err := writeTextElement(dw, "globals", globals); err != nil {
			return err
		}
	}

	if err := writeTestList(dw, db, db.Root(), opts); err != nil {
		return err
	}

	return dw.token(root.End())
}

func writeIncludeMarkers(dw *docWriter, db *trcdb.Database, parent trcdb.NodeID, beforeChild int) error {
	for _, m := range db.IncludeMarkers(parent) {
		if m.BeforeChild != beforeChild {
			continue
		}

		if err := dw.token(xml.Comment(" " + includeStartPrefix + m.Name + " ")); err != nil {
			return err
		}

		if err := dw.raw(m.Raw); err != nil {
			return err
		}

		if err := dw.token(xml.Comment(" " + includeEndMarker + " ")); err != nil {
			return err
		}
	}

	return nil
}

func writeTestList(dw *docWriter, db *trcdb.Database, parent trcdb.NodeID, opts SaveOptions) error {
	children := db.Children(parent)

	for i, id := range children {
		if err := writeIncludeMarkers(dw, db, parent, i); err != nil {
			return err
		}

		if !opts.ShouldSave(db, id) {
			continue
		}

		if err := writeTest(dw, db, id, opts); err != nil {
			return err
		}
	}

	return writeIncludeMarkers(dw, db, parent, len(children))
}

func writeTest(dw *docWriter, db *trcdb.Database, id trcdb.NodeID, opts SaveOptions) error {
	attrs := []xml.Attr{{Name: xml.Name{Local: "name"}, Value: db.TestName(id)}}
	if t := db.TestType(id); t != "" {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "type"}, Value: t})
	}

	if aux := db.Auxiliary(id); aux != "" {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "auxiliary"}, Value: aux})
	}

	attrs = append(attrs, annotationAttrs(db, id, opts)...)

	start := xml.StartElement{Name: xml.Name{Local: "test"}, Attr: attrs}
	if err := dw.token(start); err != nil {
		return err
	}

	if obj := db.Objective(id); obj != "" {
		if err := writeTextElement(dw, "objective", obj); err != nil {
			return err
		}
	}

	if notes := db.Notes(id); notes != "" {
		if err := writeTextElement(dw, "notes", notes); err != nil {
			return err
		}
	}

	if err := writeIterList(dw, db, id, opts); err != nil {
		return err
	}

	return dw.token(start.End())
}

func writeIterList(dw *docWriter, db *trcdb.Database, parent trcdb.NodeID, opts SaveOptions) error {
	children := db.Children(parent)

	for i, id := range children {
		if err := writeIncludeMarkers(dw, db, parent, i); err != nil {
			return err
		}

		if !opts.ShouldSave(db, id) {
			continue
		}

		if err := writeIter(dw, db, id, opts); err != nil {
			return err
		}
	}

	return writeIncludeMarkers(dw, db, parent, len(children))
}

func writeIter(dw *docWriter, db *trcdb.Database, id trcdb.NodeID, opts SaveOptions) error {
	var attrs []xml.Attr

	if status := db.DefaultStatus(id); status != "" {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "result"}, Value: string(status)})
	}

	attrs = append(attrs, annotationAttrs(db, id, opts)...)

	start := xml.StartElement{Name: xml.Name{Local: "iter"}, Attr: attrs}
	if err := dw.token(start); err != nil {
		return err
	}

	for _, arg := range db.Args(id) {
		if err := writeArgElement(dw, arg); err != nil {
			return err
		}
	}

	if notes := db.Notes(id); notes != "" {
		if err := writeTextElement(dw, "notes", notes); err != nil {
			return err
		}
	}

	for _, set := range db.ExpectSets(id) {
		if err := writeResultsBlock(dw, set); err != nil {
			return err
		}
	}

	if err := writeTestList(dw, db, id, opts); err != nil {
		return err
	}

	return dw.token(start.End())
}

func writeResultsBlock(dw *docWriter, set trcdb.ExpectSet) error {
	attrs := []xml.Attr{{Name: xml.Name{Local: "tags"}, Value: set.Tags}}
	if set.Key != "" {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "key"}, Value: set.Key})
	}

	if set.Notes != "" {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "notes"}, Value: set.Notes})
	}

	start := xml.StartElement{Name: xml.Name{Local: "results"}, Attr: attrs}
	if err := dw.token(start); err != nil {
		return err
	}

	for _, entry := range set.Entries {
		if err := writeResultEntry(dw, entry); err != nil {
			return err
		}
	}

	return dw.token(start.End())
}

func writeResultEntry(dw *docWriter, entry trcresult.Entry) error {
	attrs := []xml.Attr{{Name: xml.Name{Local: "value"}, Value: string(entry.Result.Status)}}
	if entry.Key != "" {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "key"}, Value: entry.Key})
	}

	if entry.Notes != "" {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "notes"}, Value: entry.Notes})
	}

	start := xml.StartElement{Name: xml.Name{Local: "result"}, Attr: attrs}
	if err := dw.token(start); err != nil {
		return err
	}

	for _, v := range entry.Result.Verdicts {
		if err := writeTextElement(dw, "verdict", string(v)); err != nil {
			return err
		}
	}

	return dw.token(start.End())
}

// writeArgElement writes one <arg name="...">value</arg> element, the
// named form db_io.c requires and alloc_and_get_test_arg rejects loading
// without.
func writeArgElement(dw *docWriter, arg trcdb.NamedArg) error {
	start := xml.StartElement{Name: xml.Name{Local: "arg"}, Attr: []xml.Attr{{Name: xml.Name{Local: "name"}, Value: arg.Name}}}
	if err := dw.token(start); err != nil {
		return err
	}

	if err := dw.token(xml.CharData(arg.Value)); err != nil {
		return err
	}

	return dw.token(start.End())
}

func writeTextElement(dw *docWriter, name, text string) error {
	start := xml.StartElement{Name: xml.Name{Local: name}}
	if err := dw.token(start); err != nil {
		return err
	}

	if err := dw.token(xml.CharData(text)); err != nil {
		return err
	}

	return dw.token(start.End())
}

func annotationAttrs(db *trcdb.Database, id trcdb.NodeID, opts SaveOptions) []xml.Attr {
	if opts.Annotate == nil {
		return nil
	}

	extra := opts.Annotate(db, id)
	if len(extra) == 0 {
		return nil
	}

	attrs := make([]xml.Attr, 0, len(extra))
	for k, v := range extra {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: k}, Value: v})
	}

	return attrs
}
