package transfer

import (
	"errors"
	"fmt"

	"github.com/oyoms/go-officeclient/chunk"
)

var (
	// ErrSessionCreateFailed is returned when the remote refuses to open (or re-open) a session.
	ErrSessionCreateFailed = errors.New("session create failed")
	// ErrSessionExpired is returned when a request hits an expired session even after a refresh.
	ErrSessionExpired = errors.New("session expired")
	// ErrSessionClosed is returned when a closed session is used.
	ErrSessionClosed = errors.New("session closed")
	// ErrChunkTransferFailed matches every *ChunkError.
	ErrChunkTransferFailed = errors.New("chunk transfer failed")
	// ErrRowCountMismatch is returned when a range read yields a different number of rows than requested.
	ErrRowCountMismatch = errors.New("row count mismatch")
)

// ChunkError aborts a multi-chunk operation. Remote state written by earlier chunks is left as-is.
type ChunkError struct {
	Index int
	Count int
	Range chunk.Range
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d/%d (offset %d, length %d): %s", e.Index+1, e.Count, e.Range.Offset, e.Range.Length, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrChunkTransferFailed) true for any chunk failure.
func (e *ChunkError) Is(target error) bool {
	return target == ErrChunkTransferFailed
}
