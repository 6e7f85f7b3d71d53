package transfer

import (
	"fmt"
	"io"
	"os"

	"github.com/oyoms/go-officeclient/chunk"
)

// ChunkProvider supplies the bytes of a planned range.
type ChunkProvider interface {
	GetChunk(r chunk.Range) ([]byte, error)
}

// NewChunkProvider picks random access when the payload supports it, sequential reads otherwise.
// Offsets are always relative to the start of the payload.
func NewChunkProvider(payload io.Reader) ChunkProvider {
	if ra, ok := payload.(io.ReaderAt); ok {
		return &ReaderAtChunkProvider{r: ra}
	}
	return &StreamChunkProvider{r: payload}
}

// ReaderAtChunkProvider reads chunks from any offset.
type ReaderAtChunkProvider struct {
	r io.ReaderAt
}

// NewReaderAtChunkProvider ...
func NewReaderAtChunkProvider(r io.ReaderAt) *ReaderAtChunkProvider {
	return &ReaderAtChunkProvider{r: r}
}

// GetChunk returns exactly r.Length bytes starting at r.Offset.
func (p *ReaderAtChunkProvider) GetChunk(r chunk.Range) ([]byte, error) {
	data := make([]byte, r.Length)
	n, err := io.ReadFull(io.NewSectionReader(p.r, r.Offset, r.Length), data)
	if err != nil {
		return nil, fmt.Errorf("read %d bytes at offset %d (got %d): %w", r.Length, r.Offset, n, err)
	}
	return data, nil
}

// StreamChunkProvider reads a forward-only stream; chunks must be requested in plan order.
type StreamChunkProvider struct {
	r      io.Reader
	offset int64
}

// NewStreamChunkProvider ...
func NewStreamChunkProvider(r io.Reader) *StreamChunkProvider {
	return &StreamChunkProvider{r: r}
}

// GetChunk returns the next r.Length bytes of the stream.
func (p *StreamChunkProvider) GetChunk(r chunk.Range) ([]byte, error) {
	if r.Offset != p.offset {
		return nil, fmt.Errorf("out of order chunk: stream is at offset %d, chunk starts at %d", p.offset, r.Offset)
	}

	data := make([]byte, r.Length)
	n, err := io.ReadFull(p.r, data)
	p.offset += int64(n)
	if err != nil {
		return nil, fmt.Errorf("read %d bytes at offset %d (got %d): %w", r.Length, r.Offset, n, err)
	}
	return data, nil
}

// FileChunkProvider reads chunks from a file on disk.
type FileChunkProvider struct {
	ReaderAtChunkProvider
	file *os.File
	size int64
}

// NewFileChunkProvider opens path for chunked reading.
func NewFileChunkProvider(path string) (*FileChunkProvider, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("stat file: %w", err)
	}

	return &FileChunkProvider{
		ReaderAtChunkProvider: ReaderAtChunkProvider{r: file},
		file:                  file,
		size:                  info.Size(),
	}, nil
}

// Size returns the file size at open time.
func (p *FileChunkProvider) Size() int64 {
	return p.size
}

// Read lets the provider be passed where a payload stream is expected.
func (p *FileChunkProvider) Read(b []byte) (int, error) {
	return p.file.Read(b)
}

// ReadAt ...
func (p *FileChunkProvider) ReadAt(b []byte, off int64) (int, error) {
	return p.file.ReadAt(b, off)
}

// Close closes the underlying file.
func (p *FileChunkProvider) Close() error {
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}
