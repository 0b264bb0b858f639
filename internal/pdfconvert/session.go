// =============================================================================
// DOETH Attestation Generator - Rendering Session
// =============================================================================
//
// The external rendering resource used for DOCX to PDF conversion is modeled
// as an explicit acquire/use/release handle: one Session is opened for a
// whole batch, every conversion goes through it sequentially, and Close runs
// on every exit path. Opening the session is the expensive part, so it is
// never done per document.
//
// =============================================================================

package pdfconvert

import (
	"context"
	"fmt"
)

// Session is an exclusively-owned handle on the external rendering resource.
// Sessions are not safe for concurrent use; the batch serializes against one
// session by contract.
type Session interface {
	// Convert renders the document at src into the target format and
	// returns the path of the produced file. A *SessionError return means
	// the session is unusable and the batch must stop.
	Convert(ctx context.Context, src string) (string, error)

	// Close releases the session. Idempotent.
	Close() error
}

// Opener acquires a fresh session. The batch converter calls it exactly once
// per batch.
type Opener func() (Session, error)

// ConversionError is a recoverable, document-level conversion failure: the
// document is skipped and the batch continues.
type ConversionError struct {
	Document string
	Err      error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("converting %s: %v", e.Document, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// SessionError means the rendering session itself is broken. Batch-fatal:
// documents already converted remain valid, the rest are abandoned.
type SessionError struct {
	Err error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("rendering session failed: %v", e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }
