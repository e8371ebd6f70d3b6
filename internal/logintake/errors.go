package logintake

import "errors"

// Sentinel errors for malformed log documents.
var (
	// ErrUnexpectedElement indicates an opening element that is neither a
	// valid state transition nor recognized Skip-worthy content.
	ErrUnexpectedElement = errors.New("logintake: unexpected element")

	// ErrUnexpectedClose indicates a closing tag that does not match the
	// currently open element.
	ErrUnexpectedClose = errors.New("logintake: unexpected closing tag")

	// ErrUnterminatedLog indicates the token stream ended with elements
	// still open.
	ErrUnterminatedLog = errors.New("logintake: unterminated log document")
)

// LogError wraps a structural ingestion failure with the element path it
// occurred at, mirroring internal/trcio's DocumentError.
type LogError struct {
	Path string
	Err  error
}

func (e *LogError) Error() string { return "logintake: " + e.Path + ": " + e.Err.Error() }

func (e *LogError) Unwrap() error { return e.Err }
