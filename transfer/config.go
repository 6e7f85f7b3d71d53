package transfer

import (
	"fmt"

	"github.com/oyoms/go-officeclient/chunk"
)

const (
	// DefaultInlineThreshold is the largest payload the remote accepts in a single request.
	DefaultInlineThreshold = 4 * 1024 * 1024
	// DefaultMaxChunkBytes is the default upload chunk size.
	DefaultMaxChunkBytes = 5 * 1024 * 1024
	// ChunkAlignment is the granularity upload sessions expect chunk sizes in.
	ChunkAlignment = 320 * 1024

	// DefaultReadCells bounds the number of cells fetched per range read.
	DefaultReadCells = 500000
	// DefaultWriteCells bounds the number of cells sent per range write.
	DefaultWriteCells = 250000
)

// Config holds configuration for the chunk uploader.
type Config struct {
	// InlineThreshold: payloads smaller than this are sent in one request, without an upload session.
	// Default: 4 MiB
	InlineThreshold int64

	// MaxChunkBytes is the size of every chunk but the last.
	// Default: 5 MiB
	MaxChunkBytes int64
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		InlineThreshold: DefaultInlineThreshold,
		MaxChunkBytes:   DefaultMaxChunkBytes,
	}
}

// Validate ...
func (c Config) Validate() error {
	if c.MaxChunkBytes < 1 {
		return fmt.Errorf("%w: %d", chunk.ErrInvalidChunkSize, c.MaxChunkBytes)
	}
	if c.InlineThreshold < 0 {
		return fmt.Errorf("negative inline threshold: %d", c.InlineThreshold)
	}
	return nil
}

// AlignChunkSize rounds size down to a multiple of ChunkAlignment, never below one alignment unit.
func AlignChunkSize(size int64) int64 {
	aligned := size - size%ChunkAlignment
	if aligned < ChunkAlignment {
		return ChunkAlignment
	}
	return aligned
}
