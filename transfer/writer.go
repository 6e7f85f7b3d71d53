package transfer

import (
	"context"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/oyoms/go-officeclient/address"
	"github.com/oyoms/go-officeclient/graph"
)

// RangeWriteFunc builds the write request for one block of rows.
type RangeWriteFunc func(rng address.Range, values [][]interface{}) *graph.Request

// RangeWriter pushes a large block of cells in bounded requests.
type RangeWriter struct {
	request       RangeWriteFunc
	ignoreTimeout bool
	logger        log.Logger
}

// NewRangeWriter ...
func NewRangeWriter(request RangeWriteFunc, ignoreTimeout bool, logger log.Logger) *RangeWriter {
	return &RangeWriter{
		request:       request,
		ignoreTimeout: ignoreTimeout,
		logger:        logger,
	}
}

// Write stores rows starting at topLeft. Short rows are padded with empty strings so every
// block is rectangular. Blocks are written top to bottom; a failed block aborts the rest.
func (w *RangeWriter) Write(ctx context.Context, session Executor, topLeft address.Cell, rows [][]interface{}, maxCells int) error {
	cols := 0
	for _, row := range rows {
		if len(row) > cols {
			cols = len(row)
		}
	}
	if len(rows) == 0 || cols == 0 {
		return nil
	}

	plan, err := rowPlan(len(rows), cols, maxCells)
	if err != nil {
		return err
	}
	w.logger.Debugf("Writing %dx%d cells to %s in %d requests", len(rows), cols, topLeft, len(plan))

	for i, rng := range plan {
		span, err := blockSpan(topLeft, rng, cols)
		if err != nil {
			return &ChunkError{Index: i, Count: len(plan), Range: rng, Err: err}
		}

		block := padRows(rows[rng.Offset:rng.Offset+rng.Length], cols)
		req := w.request(span, block)
		req.IgnoreTimeout = w.ignoreTimeout

		if _, err := session.Execute(ctx, req); err != nil {
			return &ChunkError{Index: i, Count: len(plan), Range: rng, Err: err}
		}
	}

	return nil
}

func padRows(rows [][]interface{}, cols int) [][]interface{} {
	padded := make([][]interface{}, len(rows))
	for i, row := range rows {
		if len(row) == cols {
			padded[i] = row
			continue
		}
		full := make([]interface{}, cols)
		copy(full, row)
		for j := len(row); j < cols; j++ {
			full[j] = ""
		}
		padded[i] = full
	}
	return padded
}
