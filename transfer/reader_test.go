package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/oyoms/go-officeclient/address"
	"github.com/oyoms/go-officeclient/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rangeRequest(rng address.Range) *graph.Request {
	return &graph.Request{
		Method: http.MethodGet,
		Path:   fmt.Sprintf("/workbook/worksheets/Data/range(address='%s')?$select=text", rng),
	}
}

// textBlock renders a "text" payload of rows x cols cells padded with spaces.
func textBlock(firstRow, rows, cols int) fakeResult {
	text := make([][]string, rows)
	for r := range text {
		text[r] = make([]string, cols)
		for c := range text[r] {
			text[r][c] = fmt.Sprintf("  r%dc%d ", firstRow+r, c)
		}
	}
	data, _ := json.Marshal(map[string]interface{}{"text": text})
	return body(http.StatusOK, string(data))
}

func TestRangeReader_Read_Chunked(t *testing.T) {
	doer := &fakeDoer{results: []fakeResult{textBlock(0, 6, 40), textBlock(6, 6, 40)}}
	reader := NewRangeReader(rangeRequest, log.NewLogger())

	rows, err := reader.Read(context.Background(), Direct{Doer: doer}, address.MustParse("A1"), 12, 40, 250)
	require.NoError(t, err)

	require.Len(t, doer.requests, 2)
	assert.Equal(t, "/workbook/worksheets/Data/range(address='A1:AN6')?$select=text", doer.requests[0].Path)
	assert.Equal(t, "/workbook/worksheets/Data/range(address='A7:AN12')?$select=text", doer.requests[1].Path)

	require.Len(t, rows, 12)
	for r, row := range rows {
		require.Len(t, row, 40)
		assert.Equal(t, fmt.Sprintf("r%dc0", r), row[0])
		assert.Equal(t, fmt.Sprintf("r%dc39", r), row[39])
	}
}

func TestRangeReader_Read_OffsetTopLeft(t *testing.T) {
	doer := &fakeDoer{results: []fakeResult{textBlock(0, 2, 3), textBlock(2, 1, 3)}}

	rows, err := NewRangeReader(rangeRequest, log.NewLogger()).
		Read(context.Background(), Direct{Doer: doer}, address.MustParse("C5"), 3, 3, 7)
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	require.Len(t, doer.requests, 2)
	assert.Contains(t, doer.requests[0].Path, "'C5:E6'")
	assert.Contains(t, doer.requests[1].Path, "'C7:E7'")
}

func TestRangeReader_Read_WiderThanBudget(t *testing.T) {
	doer := &fakeDoer{results: []fakeResult{textBlock(0, 1, 10), textBlock(1, 1, 10)}}

	rows, err := NewRangeReader(rangeRequest, log.NewLogger()).
		Read(context.Background(), Direct{Doer: doer}, address.MustParse("A1"), 2, 10, 4)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Len(t, doer.requests, 2, "one row per request when a row exceeds the cell budget")
}

func TestRangeReader_Read_Empty(t *testing.T) {
	doer := &fakeDoer{}

	rows, err := NewRangeReader(rangeRequest, log.NewLogger()).
		Read(context.Background(), Direct{Doer: doer}, address.MustParse("A1"), 0, 5, 100)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Empty(t, doer.requests)
}

func TestRangeReader_Read_RowCountMismatch(t *testing.T) {
	doer := &fakeDoer{results: []fakeResult{textBlock(0, 2, 2)}}

	_, err := NewRangeReader(rangeRequest, log.NewLogger()).
		Read(context.Background(), Direct{Doer: doer}, address.MustParse("A1"), 3, 2, 6)
	assert.ErrorIs(t, err, ErrRowCountMismatch)
	assert.ErrorIs(t, err, ErrChunkTransferFailed)
}

func TestRangeReader_Read_Failure(t *testing.T) {
	doer := &fakeDoer{results: []fakeResult{textBlock(0, 1, 2), failure(http.StatusBadRequest)}}

	_, err := NewRangeReader(rangeRequest, log.NewLogger()).
		Read(context.Background(), Direct{Doer: doer}, address.MustParse("A1"), 2, 2, 2)

	var chunkErr *ChunkError
	require.True(t, errors.As(err, &chunkErr))
	assert.Equal(t, 1, chunkErr.Index)
}

func TestRangeReader_WithDecoder(t *testing.T) {
	doer := &fakeDoer{results: []fakeResult{body(http.StatusOK, `{"values":[[1," x "]]}`)}}
	decodeValues := func(resp *graph.Response) ([][]string, error) {
		var b struct {
			Values [][]interface{} `json:"values"`
		}
		if err := resp.Decode(&b); err != nil {
			return nil, err
		}
		out := make([][]string, len(b.Values))
		for i, row := range b.Values {
			for _, v := range row {
				out[i] = append(out[i], fmt.Sprint(v))
			}
		}
		return out, nil
	}

	rows, err := NewRangeReader(rangeRequest, log.NewLogger()).WithDecoder(decodeValues).
		Read(context.Background(), Direct{Doer: doer}, address.MustParse("A1"), 1, 2, 10)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1", "x"}}, rows)
}

func TestRowsPerChunk(t *testing.T) {
	tests := []struct {
		cols, maxCells, want int
	}{
		{cols: 40, maxCells: 250, want: 6},
		{cols: 1, maxCells: 500000, want: 500000},
		{cols: 16384, maxCells: 250000, want: 15},
		{cols: 300, maxCells: 250, want: 1},
		{cols: 5, maxCells: 5, want: 1},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d cols, %d cells", tt.cols, tt.maxCells), func(t *testing.T) {
			assert.Equal(t, tt.want, RowsPerChunk(tt.cols, tt.maxCells))
		})
	}
}
