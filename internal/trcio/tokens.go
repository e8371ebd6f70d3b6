// Package trcio implements the expectations-database loader/serializer
// (SPEC_FULL.md §4.D): a streaming XML tokenizer shared with
// internal/logintake (component E), which consumes the same kind of token
// stream over the execution log instead of the database document.
package trcio

import (
	"bytes"
	"encoding/xml"
)

// TokenKind identifies the shape of one Token.
type TokenKind int

const (
	TokStart TokenKind = iota
	TokEnd
	TokChars
	TokComment
)

// Token is one SAX-style event from a Tokenizer: an element open/close, a
// run of character data, or a comment (used to recognize include-directive
// markers).
type Token struct {
	Kind  TokenKind
	Name  string
	Attrs map[string]string
	Text  string

	// OffsetBefore and OffsetAfter bracket the raw bytes this token was
	// decoded from, letting callers slice the original document verbatim
	// (the include-marker span capture trick, SPEC_FULL.md §4.D).
	OffsetBefore int64
	OffsetAfter  int64
}

// Tokenizer wraps an xml.Decoder in token mode over an in-memory document,
// surfacing a smaller, SAX-shaped event set that internal/trcio's loader and
// internal/logintake's ingestion state machine both drive.
type Tokenizer struct {
	dec  *xml.Decoder
	data []byte
}

// NewTokenizer returns a Tokenizer over the whole document. Holding the
// document in memory (rather than a true streaming io.Reader) is what lets
// the loader slice out verbatim include-marker byte ranges without
// reconstructing them from re-serialized tokens.
func NewTokenizer(data []byte) *Tokenizer {
	return &Tokenizer{dec: xml.NewDecoder(bytes.NewReader(data)), data: data}
}

// Raw returns the document bytes between two offsets previously reported on
// a Token, e.g. to capture an include span between two comment markers.
func (t *Tokenizer) Raw(from, to int64) []byte {
	return t.data[from:to]
}

// Next returns the next Token, or io.EOF once the document is exhausted.
func (t *Tokenizer) Next() (Token, error) {
	before := t.dec.InputOffset()

	raw, err := t.dec.Token()
	if err != nil {
		return Token{}, err
	}

	after := t.dec.InputOffset()

	switch v := raw.(type) {
	case xml.StartElement:
		attrs := make(map[string]string, len(v.Attr))
		for _, a := range v.Attr {
			attrs[a.Name.Local] = a.Value
		}

		return Token{Kind: TokStart, Name: v.Name.Local, Attrs: attrs, OffsetBefore: before, OffsetAfter: after}, nil
	case xml.EndElement:
		return Token{Kind: TokEnd, Name: v.Name.Local, OffsetBefore: before, OffsetAfter: after}, nil
	case xml.CharData:
		return Token{Kind: TokChars, Text: string(v), OffsetBefore: before, OffsetAfter: after}, nil
	case xml.Comment:
		return Token{Kind: TokComment, Text: string(v), OffsetBefore: before, OffsetAfter: after}, nil
	default:
		// Directives, processing instructions: skip transparently by
		// recursing for the next real token.
		return t.Next()
	}
}

