package transfer

import (
	"context"
	"fmt"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/oyoms/go-officeclient/address"
	"github.com/oyoms/go-officeclient/chunk"
	"github.com/oyoms/go-officeclient/graph"
)

// RangeRequestFunc builds the read request for one block of cells.
type RangeRequestFunc func(rng address.Range) *graph.Request

// RowDecoder extracts the rows of one block from the remote answer.
type RowDecoder func(resp *graph.Response) ([][]string, error)

// RangeReader pulls a large block of cells in bounded requests.
type RangeReader struct {
	request RangeRequestFunc
	decode  RowDecoder
	logger  log.Logger
}

// NewRangeReader reads blocks with request and decodes them with DecodeText.
func NewRangeReader(request RangeRequestFunc, logger log.Logger) *RangeReader {
	return &RangeReader{
		request: request,
		decode:  DecodeText,
		logger:  logger,
	}
}

// WithDecoder swaps the row decoder.
func (r *RangeReader) WithDecoder(decode RowDecoder) *RangeReader {
	r.decode = decode
	return r
}

// Read returns totalRows x totalCols cells starting at topLeft, row-major, trimmed of
// surrounding whitespace. Each request covers at most maxCells cells but always at least one row.
func (r *RangeReader) Read(ctx context.Context, session Executor, topLeft address.Cell, totalRows, totalCols, maxCells int) ([][]string, error) {
	if totalRows < 1 || totalCols < 1 {
		return [][]string{}, nil
	}

	plan, err := rowPlan(totalRows, totalCols, maxCells)
	if err != nil {
		return nil, err
	}
	r.logger.Debugf("Reading %dx%d cells from %s in %d requests", totalRows, totalCols, topLeft, len(plan))

	result := make([][]string, 0, totalRows)
	for i, rng := range plan {
		span, err := blockSpan(topLeft, rng, totalCols)
		if err != nil {
			return nil, &ChunkError{Index: i, Count: len(plan), Range: rng, Err: err}
		}

		resp, err := session.Execute(ctx, r.request(span))
		if err != nil {
			return nil, &ChunkError{Index: i, Count: len(plan), Range: rng, Err: err}
		}

		rows, err := r.decode(resp)
		if err != nil {
			return nil, &ChunkError{Index: i, Count: len(plan), Range: rng, Err: err}
		}
		if int64(len(rows)) != rng.Length {
			err := fmt.Errorf("%w: %s returned %d rows, want %d", ErrRowCountMismatch, span, len(rows), rng.Length)
			return nil, &ChunkError{Index: i, Count: len(plan), Range: rng, Err: err}
		}

		for _, row := range rows {
			result = append(result, trimRow(row))
		}
	}

	return result, nil
}

// DecodeText reads the "text" matrix of a range resource.
func DecodeText(resp *graph.Response) ([][]string, error) {
	var body struct {
		Text [][]string `json:"text"`
	}
	if err := resp.Decode(&body); err != nil {
		return nil, err
	}
	return body.Text, nil
}

// RowsPerChunk is the number of whole rows that fit into maxCells, at least one.
func RowsPerChunk(totalCols, maxCells int) int {
	if totalCols < 1 {
		return maxCells
	}
	rows := maxCells / totalCols
	if rows < 1 {
		return 1
	}
	return rows
}

func rowPlan(totalRows, totalCols, maxCells int) (chunk.Plan, error) {
	if maxCells < 1 {
		return nil, fmt.Errorf("%w: %d cells", chunk.ErrInvalidChunkSize, maxCells)
	}
	return chunk.New(int64(totalRows), int64(RowsPerChunk(totalCols, maxCells)))
}

func blockSpan(topLeft address.Cell, rng chunk.Range, cols int) (address.Range, error) {
	start, err := topLeft.Shift(int(rng.Offset), 0)
	if err != nil {
		return address.Range{}, err
	}
	return address.Span(start, int(rng.Length), cols)
}

func trimRow(row []string) []string {
	trimmed := make([]string, len(row))
	for i, v := range row {
		trimmed[i] = strings.TrimSpace(v)
	}
	return trimmed
}
