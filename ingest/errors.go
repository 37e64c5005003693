package ingest

import "fmt"

// ValidationError rejects a file before it is queued: oversized, empty, or
// structurally invalid uploads.
type ValidationError struct {
	Filename string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid file %q: %s", e.Filename, e.Reason)
}

// DecodingError wraps a per-file decode failure. It is recorded on the
// owning UploadedFile and never aborts the enclosing session.
type DecodingError struct {
	Filename string
	Err      error
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("failed to decode %q: %v", e.Filename, e.Err)
}

func (e *DecodingError) Unwrap() error { return e.Err }

// PartialBatchFailure marks one failed chunk. The chunk's writes roll back
// as a unit; processing continues with the next chunk.
type PartialBatchFailure struct {
	ChunkIndex int
	RowCount   int
	Err        error
}

func (e *PartialBatchFailure) Error() string {
	return fmt.Sprintf("chunk %d (%d rows) failed: %v", e.ChunkIndex, e.RowCount, e.Err)
}

func (e *PartialBatchFailure) Unwrap() error { return e.Err }

// SessionSetupError is the only fatal class: the session record itself
// cannot be created or read.
type SessionSetupError struct {
	SessionId string
	Err       error
}

func (e *SessionSetupError) Error() string {
	return fmt.Sprintf("session %s setup failed: %v", e.SessionId, e.Err)
}

func (e *SessionSetupError) Unwrap() error { return e.Err }

// RowError records one skipped row. Rows fail individually and are
// collected into the session error list instead of crossing chunk
// boundaries as failures.
type RowError struct {
	RowNumber int
	Reason    string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.RowNumber, e.Reason)
}
