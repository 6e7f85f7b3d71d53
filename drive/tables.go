package drive

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"path"
	"strings"

	"github.com/xuri/excelize/v2"
)

const defaultTableSheet = "Sheet1"

// tableTarget appends ext to the file name of targetPath when missing and returns the
// name and its parent folder. A bare name lands in the drive root.
func tableTarget(targetPath, ext string) (string, string, error) {
	clean := path.Clean("/" + strings.TrimSpace(targetPath))
	name := path.Base(clean)
	if name == "/" {
		return "", "", fmt.Errorf("no file name in %q", targetPath)
	}
	if !strings.HasSuffix(strings.ToLower(name), ext) {
		name += ext
	}

	folder := path.Dir(clean)
	if folder == "/" {
		return name, "", nil
	}
	return name, folder + "/", nil
}

// UploadCSV writes rows as a CSV file to targetPath, adding the .csv extension when missing.
func (c *Client) UploadCSV(ctx context.Context, rows [][]string, targetPath string) (*Item, error) {
	name, folder, err := tableTarget(targetPath, ".csv")
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("encode %s: %w", name, err)
	}

	return c.UploadStream(ctx, bytes.NewReader(buf.Bytes()), int64(buf.Len()), name, folder)
}

// UploadXLSX writes rows into a new workbook at targetPath, adding the .xlsx extension when
// missing. An empty sheet name means Sheet1.
func (c *Client) UploadXLSX(ctx context.Context, rows [][]interface{}, sheet, targetPath string) (*Item, error) {
	name, folder, err := tableTarget(targetPath, ".xlsx")
	if err != nil {
		return nil, err
	}

	data, err := buildWorkbook(rows, sheet)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", name, err)
	}

	return c.UploadStream(ctx, bytes.NewReader(data), int64(len(data)), name, folder)
}

func buildWorkbook(rows [][]interface{}, sheet string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck

	if sheet != "" && sheet != defaultTableSheet {
		if err := f.SetSheetName(defaultTableSheet, sheet); err != nil {
			return nil, err
		}
	} else {
		sheet = defaultTableSheet
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
