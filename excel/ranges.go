package excel

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/oyoms/go-officeclient/address"
	"github.com/oyoms/go-officeclient/graph"
	"github.com/oyoms/go-officeclient/transfer"
)

// ApplyTo selects what ClearRange removes.
type ApplyTo string

// Clear modes.
const (
	ClearAll      ApplyTo = "All"
	ClearFormats  ApplyTo = "Formats"
	ClearContents ApplyTo = "Contents"
)

// Shift selects how DeleteRange closes the gap.
type Shift string

// Shift directions.
const (
	ShiftUp   Shift = "Up"
	ShiftLeft Shift = "Left"
)

// RangeInfo describes the used part of a sheet or range.
type RangeInfo struct {
	// Address without the sheet prefix, e.g. "B2:D40".
	Address     string `json:"address"`
	RowCount    int    `json:"rowCount"`
	ColumnCount int    `json:"columnCount"`
}

// TopLeft is the first cell of the range.
func (r RangeInfo) TopLeft() (address.Cell, error) {
	return address.Parse(r.Address)
}

// AppendOptions tune AppendRows.
type AppendOptions struct {
	// FirstColumn anchors the append; the last used row of this column decides where rows go. Default "A".
	FirstColumn string
	// Header is written above the rows when the column is still empty, or always with IncludeHeader.
	Header        []interface{}
	IncludeHeader bool
	IgnoreTimeout bool
}

// SheetNames lists the worksheets in workbook order.
func (w *Workbook) SheetNames(ctx context.Context) ([]string, error) {
	resp, err := w.execute(ctx, http.MethodGet, "/worksheets?$select=name", nil)
	if err != nil {
		return nil, fmt.Errorf("list worksheets: %w", err)
	}

	var body struct {
		Value []struct {
			Name string `json:"name"`
		} `json:"value"`
	}
	if err := resp.Decode(&body); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(body.Value))
	for _, sheet := range body.Value {
		names = append(names, sheet.Name)
	}
	return names, nil
}

// CreateSheet adds the sheet unless it already exists.
func (w *Workbook) CreateSheet(ctx context.Context, sheet string) error {
	names, err := w.SheetNames(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if name == sheet {
			return nil
		}
	}

	if _, err := w.execute(ctx, http.MethodPost, "/worksheets", map[string]string{"name": sheet}); err != nil {
		return fmt.Errorf("create worksheet %s: %w", sheet, err)
	}
	w.logger.Debugf("Created worksheet %s", sheet)
	return nil
}

// UsedRange returns the used part of the sheet, or of rangeAddress within it when given.
func (w *Workbook) UsedRange(ctx context.Context, sheet, rangeAddress string) (RangeInfo, error) {
	p := usedRangePath(sheet, rangeAddress) + "(valuesOnly=true)?$select=address,rowCount,columnCount"
	resp, err := w.execute(ctx, http.MethodGet, p, nil)
	if err != nil {
		return RangeInfo{}, fmt.Errorf("get used range of %s: %w", sheet, err)
	}

	var info RangeInfo
	if err := resp.Decode(&info); err != nil {
		return RangeInfo{}, err
	}
	info.Address = address.StripSheet(info.Address)
	return info, nil
}

// ReadRange returns the displayed text of the used range, cell whitespace trimmed. Large ranges
// are fetched in blocks of whole rows.
func (w *Workbook) ReadRange(ctx context.Context, sheet, rangeAddress string) ([][]string, error) {
	info, err := w.UsedRange(ctx, sheet, rangeAddress)
	if err != nil {
		return nil, err
	}
	topLeft, err := info.TopLeft()
	if err != nil {
		return nil, err
	}

	reader := transfer.NewRangeReader(func(rng address.Range) *graph.Request {
		return w.request(http.MethodGet, rangePath(sheet, rng.String())+"?$select=text", nil)
	}, w.logger)

	rows, err := reader.Read(ctx, w.session, topLeft, info.RowCount, info.ColumnCount, w.readCells)
	if err != nil {
		return nil, fmt.Errorf("read %s!%s: %w", sheet, info.Address, err)
	}
	return rows, nil
}

// WriteRows writes rows with their first cell at location, creating the sheet if needed.
// With ignoreTimeout a remote gateway timeout on a block is tolerated.
func (w *Workbook) WriteRows(ctx context.Context, sheet, location string, rows [][]interface{}, ignoreTimeout bool) error {
	if err := w.CreateSheet(ctx, sheet); err != nil {
		return err
	}

	topLeft, err := address.Parse(location)
	if err != nil {
		return err
	}

	writer := transfer.NewRangeWriter(func(rng address.Range, values [][]interface{}) *graph.Request {
		return w.request(http.MethodPatch, rangePath(sheet, rng.String()), map[string]interface{}{"values": values})
	}, ignoreTimeout, w.logger)

	if err := writer.Write(ctx, w.session, topLeft, rows, w.writeCells); err != nil {
		return fmt.Errorf("write %s!%s: %w", sheet, location, err)
	}
	return nil
}

// WriteColumns writes rows one column at a time, for payloads the remote rejects as a whole.
func (w *Workbook) WriteColumns(ctx context.Context, sheet, location string, rows [][]interface{}, ignoreTimeout bool) error {
	topLeft, err := address.Parse(location)
	if err != nil {
		return err
	}

	cols := 0
	for _, row := range rows {
		if len(row) > cols {
			cols = len(row)
		}
	}

	for c := 0; c < cols; c++ {
		column := make([][]interface{}, len(rows))
		for r, row := range rows {
			if c < len(row) {
				column[r] = []interface{}{row[c]}
			} else {
				column[r] = []interface{}{""}
			}
		}

		start, err := topLeft.Shift(0, c)
		if err != nil {
			return err
		}
		if err := w.WriteRows(ctx, sheet, start.String(), column, ignoreTimeout); err != nil {
			return err
		}
	}
	return nil
}

// AppendRows writes rows below the last used row of the anchor column.
func (w *Workbook) AppendRows(ctx context.Context, sheet string, rows [][]interface{}, opts AppendOptions) error {
	if err := w.CreateSheet(ctx, sheet); err != nil {
		return err
	}

	column := opts.FirstColumn
	if column == "" {
		column = "A"
	}
	if _, err := address.ColumnNumber(column); err != nil {
		return err
	}

	location, empty, err := w.nextFreeRow(ctx, sheet, column)
	if err != nil {
		return err
	}

	if opts.Header != nil && (empty || opts.IncludeHeader) {
		rows = append([][]interface{}{opts.Header}, rows...)
	}
	return w.WriteRows(ctx, sheet, location, rows, opts.IgnoreTimeout)
}

// nextFreeRow finds the cell under the last used cell of column. An empty column starts at row 1.
func (w *Workbook) nextFreeRow(ctx context.Context, sheet, column string) (string, bool, error) {
	p := usedRangePath(sheet, column+":"+column) + "(valuesOnly=true)/lastCell?$select=address"
	resp, err := w.execute(ctx, http.MethodGet, p, nil)
	if err != nil {
		if isEmptyRange(err) {
			w.logger.Debugf("Column %s of %s is empty: %s", column, sheet, err)
			return column + "1", true, nil
		}
		return "", false, fmt.Errorf("find last row of %s: %w", sheet, err)
	}

	var last struct {
		Address string `json:"address"`
	}
	if err := resp.Decode(&last); err != nil {
		return "", false, err
	}

	cell, err := address.Parse(last.Address)
	if err != nil {
		return "", false, err
	}
	next, err := cell.Shift(1, 0)
	if err != nil {
		return "", false, err
	}
	return next.String(), false, nil
}

// isEmptyRange reports whether err is the remote's answer for a used range without cells.
func isEmptyRange(err error) bool {
	return graph.IsNotFound(err) && !graph.IsInvalidSession(err) && !errors.Is(err, transfer.ErrSessionExpired)
}

// WriteValue writes one value into a cell, creating the sheet if needed.
func (w *Workbook) WriteValue(ctx context.Context, sheet, cell string, value interface{}) error {
	if err := w.CreateSheet(ctx, sheet); err != nil {
		return err
	}

	body := map[string]interface{}{"values": [][]interface{}{{value}}}
	if _, err := w.execute(ctx, http.MethodPatch, rangePath(sheet, cell), body); err != nil {
		return fmt.Errorf("write %s!%s: %w", sheet, cell, err)
	}
	return nil
}

// ClearRange clears the used part of the sheet, or of rangeAddress when given.
func (w *Workbook) ClearRange(ctx context.Context, sheet, rangeAddress string, applyTo ApplyTo) error {
	switch applyTo {
	case ClearAll, ClearFormats, ClearContents:
	default:
		return fmt.Errorf("invalid clear mode %q", applyTo)
	}

	if _, err := w.execute(ctx, http.MethodPost, usedRangePath(sheet, rangeAddress)+"/clear", map[string]ApplyTo{"applyTo": applyTo}); err != nil {
		return fmt.Errorf("clear %s: %w", sheet, err)
	}
	return nil
}

// DeleteRange deletes the used part of the sheet, or of rangeAddress when given, shifting the rest.
func (w *Workbook) DeleteRange(ctx context.Context, sheet, rangeAddress string, shift Shift) error {
	switch shift {
	case ShiftUp, ShiftLeft:
	default:
		return fmt.Errorf("invalid shift %q", shift)
	}

	if _, err := w.execute(ctx, http.MethodPost, usedRangePath(sheet, rangeAddress)+"/delete", map[string]Shift{"shift": shift}); err != nil {
		return fmt.Errorf("delete %s: %w", sheet, err)
	}
	return nil
}
