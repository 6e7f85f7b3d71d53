package excel

import (
	"context"
)

// Sheet binds the range operations of a Workbook to one worksheet.
type Sheet struct {
	Name     string
	workbook *Workbook
}

// Sheet returns a handle on name, creating the worksheet if it does not exist.
func (w *Workbook) Sheet(ctx context.Context, name string) (*Sheet, error) {
	if err := w.CreateSheet(ctx, name); err != nil {
		return nil, err
	}
	return &Sheet{Name: name, workbook: w}, nil
}

// UsedRange ...
func (s *Sheet) UsedRange(ctx context.Context, rangeAddress string) (RangeInfo, error) {
	return s.workbook.UsedRange(ctx, s.Name, rangeAddress)
}

// Read ...
func (s *Sheet) Read(ctx context.Context, rangeAddress string) ([][]string, error) {
	return s.workbook.ReadRange(ctx, s.Name, rangeAddress)
}

// Write ...
func (s *Sheet) Write(ctx context.Context, location string, rows [][]interface{}, ignoreTimeout bool) error {
	return s.workbook.WriteRows(ctx, s.Name, location, rows, ignoreTimeout)
}

// Append ...
func (s *Sheet) Append(ctx context.Context, rows [][]interface{}, opts AppendOptions) error {
	return s.workbook.AppendRows(ctx, s.Name, rows, opts)
}

// WriteValue ...
func (s *Sheet) WriteValue(ctx context.Context, cell string, value interface{}) error {
	return s.workbook.WriteValue(ctx, s.Name, cell, value)
}

// Clear ...
func (s *Sheet) Clear(ctx context.Context, rangeAddress string, applyTo ApplyTo) error {
	return s.workbook.ClearRange(ctx, s.Name, rangeAddress, applyTo)
}

// Delete ...
func (s *Sheet) Delete(ctx context.Context, rangeAddress string, shift Shift) error {
	return s.workbook.DeleteRange(ctx, s.Name, rangeAddress, shift)
}
