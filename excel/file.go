package excel

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"strings"

	"github.com/oyoms/go-officeclient/drive"
	"github.com/oyoms/go-officeclient/graph"
	"github.com/xuri/excelize/v2"
)

// CalculationMode of the workbook application.
type CalculationMode string

// Calculation modes.
const (
	CalculationAutomatic CalculationMode = "automatic"
	CalculationManual    CalculationMode = "manual"
)

// Access is the permission granted by a share.
type Access string

// Access levels.
const (
	AccessView Access = "view"
	AccessEdit Access = "edit"
)

func (a Access) validate() error {
	if a != AccessView && a != AccessEdit {
		return fmt.Errorf("access must be %q or %q, got %q", AccessView, AccessEdit, a)
	}
	return nil
}

// SetCalculationMode switches between automatic and manual recalculation.
func (w *Workbook) SetCalculationMode(ctx context.Context, mode CalculationMode) error {
	if mode != CalculationAutomatic && mode != CalculationManual {
		return fmt.Errorf("invalid calculation mode %q", mode)
	}

	if _, err := w.execute(ctx, http.MethodPatch, "/application", map[string]CalculationMode{"calculationMode": mode}); err != nil {
		return fmt.Errorf("set calculation mode: %w", err)
	}
	w.logger.Donef("Calculation mode set to %s", mode)
	return nil
}

// ShareWithOrg creates an organization-wide link and returns its URL.
func (w *Workbook) ShareWithOrg(ctx context.Context, access Access) (string, error) {
	if err := access.validate(); err != nil {
		return "", err
	}

	resp, err := w.doer.Do(ctx, &graph.Request{
		Method: http.MethodPost,
		Path:   w.item.Path() + "/createLink",
		JSON:   map[string]string{"type": string(access), "scope": "organization"},
	})
	if err != nil {
		return "", fmt.Errorf("create link: %w", err)
	}

	var permission struct {
		Link struct {
			WebURL string `json:"webUrl"`
		} `json:"link"`
	}
	if err := resp.Decode(&permission); err != nil {
		return "", err
	}
	return permission.Link.WebURL, nil
}

// ShareWithUsers grants access to the given addresses, optionally emailing them an invitation.
func (w *Workbook) ShareWithUsers(ctx context.Context, emails []string, access Access, sendInvitation bool) error {
	if err := access.validate(); err != nil {
		return err
	}
	if len(emails) == 0 {
		return fmt.Errorf("no recipients")
	}

	role := "read"
	if access == AccessEdit {
		role = "write"
	}

	recipients := make([]map[string]string, 0, len(emails))
	for _, email := range emails {
		recipients = append(recipients, map[string]string{"email": email})
	}

	_, err := w.doer.Do(ctx, &graph.Request{
		Method: http.MethodPost,
		Path:   w.item.Path() + "/invite",
		JSON: map[string]interface{}{
			"roles":          []string{role},
			"recipients":     recipients,
			"sendInvitation": sendInvitation,
			"requireSignIn":  true,
		},
	})
	if err != nil {
		return fmt.Errorf("invite: %w", err)
	}
	return nil
}

// SaveAs copies the workbook, into destination when given, otherwise next to the original.
// Name clashes are renamed by the remote. A name without extension gets ".xlsx".
func (w *Workbook) SaveAs(ctx context.Context, newName string, destination *drive.Item) error {
	body := map[string]interface{}{"@microsoft.graph.conflictBehavior": "rename"}
	if newName != "" {
		if !strings.HasSuffix(newName, ".xlsx") && !strings.HasSuffix(newName, ".csv") {
			newName += ".xlsx"
		}
		body["name"] = newName
	}
	if destination != nil {
		body["parentReference"] = map[string]string{
			"driveId": destination.ParentReference.DriveID,
			"id":      destination.ID,
		}
	}

	if _, err := w.doer.Do(ctx, &graph.Request{Method: http.MethodPost, Path: w.item.Path() + "/copy", JSON: body}); err != nil {
		return fmt.Errorf("copy workbook: %w", err)
	}
	return nil
}

// ReadCSV downloads the backing file and parses it as CSV. Workbook files are rejected.
func (w *Workbook) ReadCSV(ctx context.Context) ([][]string, error) {
	resp, err := w.doer.Do(ctx, &graph.Request{Method: http.MethodGet, Path: w.item.Path() + "/content"})
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", w.item.Name, err)
	}
	if strings.Contains(resp.Header.Get("Content-Type"), "xml") {
		return nil, fmt.Errorf("%s is not a CSV file", w.item.Name)
	}

	reader := csv.NewReader(bytes.NewReader(resp.Body))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", w.item.Name, err)
	}
	return records, nil
}

// ImportXLSX copies a sheet of a local workbook into sheet, starting at location. An empty
// localSheet means the first sheet of the file.
func (w *Workbook) ImportXLSX(ctx context.Context, localPath, localSheet, sheet, location string, ignoreTimeout bool) error {
	rows, err := ReadLocalSheet(localPath, localSheet)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		w.logger.Warnf("%s has no data, nothing to import", localPath)
		return nil
	}
	return w.WriteRows(ctx, sheet, location, rows, ignoreTimeout)
}

// ReadLocalSheet loads the cell values of a local xlsx sheet as write-ready rows.
func ReadLocalSheet(localPath, localSheet string) ([][]interface{}, error) {
	f, err := excelize.OpenFile(localPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close() //nolint:errcheck

	if localSheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("%s has no sheets", localPath)
		}
		localSheet = sheets[0]
	}

	cells, err := f.GetRows(localSheet)
	if err != nil {
		return nil, fmt.Errorf("read %s of %s: %w", localSheet, localPath, err)
	}

	rows := make([][]interface{}, len(cells))
	for i, row := range cells {
		rows[i] = make([]interface{}, len(row))
		for j, v := range row {
			rows[i][j] = v
		}
	}
	return rows, nil
}
