// Package transfer moves payloads that exceed single-request limits: chunked uploads
// against offset-addressed upload targets, chunked range reads and writes, and the
// session that protects a sequence of workbook requests.
package transfer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
	"github.com/oyoms/go-officeclient/chunk"
	"github.com/oyoms/go-officeclient/graph"
)

// Target is the remote object an upload writes to.
type Target interface {
	// Inline stores the whole payload with a single request.
	Inline(ctx context.Context, payload []byte) (*graph.Response, error)
	// Open creates an upload session for totalSize bytes and returns its upload URL.
	Open(ctx context.Context, totalSize int64) (string, error)
}

// CompletionChecker is implemented by targets whose upload sessions do not answer
// intermediate chunks with 202 Accepted.
type CompletionChecker interface {
	UploadComplete(resp *graph.Response) bool
}

// Uploader pushes payloads chunk by chunk, strictly in offset order.
type Uploader struct {
	config   Config
	logger   log.Logger
	progress ProgressFunc
}

// NewUploader creates a new Uploader with the given configuration.
func NewUploader(config Config, logger log.Logger) *Uploader {
	return &Uploader{
		config: config,
		logger: logger,
	}
}

// OnProgress registers fn to be called after every uploaded chunk.
func (u *Uploader) OnProgress(fn ProgressFunc) {
	u.progress = fn
}

// Config ...
func (u *Uploader) Config() Config {
	return u.config
}

// Upload sends totalSize bytes of payload to target. Chunk requests go through session.
// The response that completed the upload is returned; on failure no cleanup of the
// remote upload session is attempted.
func (u *Uploader) Upload(ctx context.Context, payload io.Reader, totalSize int64, target Target, session Executor) (*graph.Response, error) {
	if err := u.config.Validate(); err != nil {
		return nil, err
	}
	if totalSize < 0 {
		return nil, fmt.Errorf("negative payload size: %d", totalSize)
	}

	provider := NewChunkProvider(payload)

	if totalSize == 0 || totalSize < u.config.InlineThreshold {
		data, err := provider.GetChunk(chunk.Range{Offset: 0, Length: totalSize})
		if err != nil {
			return nil, fmt.Errorf("read payload: %w", err)
		}

		u.logger.Debugf("Uploading %s in a single request", units.HumanSizeWithPrecision(float64(totalSize), 3))
		resp, err := target.Inline(ctx, data)
		if err != nil {
			return resp, fmt.Errorf("inline upload: %w", err)
		}
		return resp, nil
	}

	plan, err := chunk.New(totalSize, u.config.MaxChunkBytes)
	if err != nil {
		return nil, err
	}

	uploadURL, err := target.Open(ctx, totalSize)
	if err != nil {
		return nil, fmt.Errorf("open upload target: %w", err)
	}

	u.logger.Debugf("Uploading %d chunks, %dB each", len(plan), u.config.MaxChunkBytes)

	complete := isUploadComplete
	if checker, ok := target.(CompletionChecker); ok {
		complete = checker.UploadComplete
	}

	st := newStats()
	var resp *graph.Response
	for i, rng := range plan {
		if err := ctx.Err(); err != nil {
			return nil, &ChunkError{Index: i, Count: len(plan), Range: rng, Err: err}
		}

		data, err := provider.GetChunk(rng)
		if err != nil {
			return nil, &ChunkError{Index: i, Count: len(plan), Range: rng, Err: err}
		}

		u.logger.Debugf("Uploading chunk %d/%d [%s] [avg=%v]",
			i+1, len(plan), rng.ContentRange(totalSize), st.average().Round(time.Millisecond))

		start := time.Now()
		resp, err = session.Execute(ctx, chunkRequest(uploadURL, rng, totalSize, data))
		if err != nil {
			return resp, &ChunkError{Index: i, Count: len(plan), Range: rng, Err: err}
		}
		st.update(rng.Length, time.Since(start))

		if u.progress != nil {
			u.progress(st.snapshot(totalSize, len(plan)))
		}

		if complete(resp) {
			if i < len(plan)-1 {
				u.logger.Debugf("Remote finalized the upload after chunk %d/%d", i+1, len(plan))
			}
			return resp, nil
		}
	}

	return resp, nil
}

func chunkRequest(uploadURL string, rng chunk.Range, totalSize int64, data []byte) *graph.Request {
	header := http.Header{}
	header.Set("Content-Type", "application/octet-stream")
	header.Set("Content-Range", rng.ContentRange(totalSize))

	return &graph.Request{
		Method:    http.MethodPut,
		Path:      uploadURL,
		Header:    header,
		Body:      data,
		Anonymous: true,
	}
}

// isUploadComplete reports the remote's terminal answer; 202 Accepted means "send the next range".
func isUploadComplete(resp *graph.Response) bool {
	return resp != nil && (resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated)
}
