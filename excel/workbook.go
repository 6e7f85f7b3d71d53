// Package excel edits workbooks stored in a drive through the workbook REST surface. Every call
// of a Workbook runs inside one persistent editing session that is renewed once when it expires.
package excel

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/oyoms/go-officeclient/drive"
	"github.com/oyoms/go-officeclient/graph"
	"github.com/oyoms/go-officeclient/transfer"
)

// Scopes are the permissions the workbook client needs.
var Scopes = drive.Scopes

// ErrInvalidSource is returned when neither a share URL nor a usable drive item identifies the workbook.
var ErrInvalidSource = errors.New("share URL or drive item does not identify a workbook")

// Source identifies a workbook either by a sharing link or by an already resolved drive item.
type Source struct {
	ShareURL string
	Item     *drive.Item
}

// EncodeShareURL turns a sharing link into a shares resource ID.
func EncodeShareURL(shareURL string) string {
	return "u!" + base64.RawURLEncoding.EncodeToString([]byte(shareURL))
}

// Workbook is an open editing session on one workbook. It is not safe for concurrent use.
type Workbook struct {
	doer       graph.Doer
	item       drive.Item
	resource   string
	session    *transfer.Session
	logger     log.Logger
	readCells  int
	writeCells int
}

// Open resolves src and starts a persistent session on the workbook.
func Open(ctx context.Context, doer graph.Doer, src Source, logger log.Logger) (*Workbook, error) {
	item, err := resolveSource(ctx, doer, src)
	if err != nil {
		return nil, err
	}

	w := &Workbook{
		doer:       doer,
		item:       *item,
		resource:   item.Path() + "/workbook",
		logger:     logger,
		readCells:  transfer.DefaultReadCells,
		writeCells: transfer.DefaultWriteCells,
	}

	session, err := transfer.OpenSession(ctx, doer, sessionOpener{doer: doer, resource: w.resource}, logger)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", item.Name, err)
	}
	w.session = session

	logger.Debugf("Opened workbook %s", item.Name)
	return w, nil
}

func resolveSource(ctx context.Context, doer graph.Doer, src Source) (*drive.Item, error) {
	item := src.Item
	if item == nil {
		if src.ShareURL == "" {
			return nil, ErrInvalidSource
		}

		resp, err := doer.Do(ctx, &graph.Request{
			Method: http.MethodGet,
			Path:   fmt.Sprintf("/shares/%s/driveItem", EncodeShareURL(src.ShareURL)),
		})
		if err != nil {
			return nil, fmt.Errorf("resolve share URL: %w", err)
		}
		item = &drive.Item{}
		if err := resp.Decode(item); err != nil {
			return nil, err
		}
	}

	if item.ID == "" || item.ParentReference.DriveID == "" {
		return nil, ErrInvalidSource
	}
	return item, nil
}

// sessionOpener creates and closes persistent workbook sessions.
type sessionOpener struct {
	doer     graph.Doer
	resource string
}

func (o sessionOpener) OpenSession(ctx context.Context) (string, error) {
	resp, err := o.doer.Do(ctx, &graph.Request{
		Method: http.MethodPost,
		Path:   o.resource + "/createSession",
		JSON:   map[string]bool{"persistChanges": true},
	})
	if err != nil {
		return "", err
	}

	var session struct {
		ID string `json:"id"`
	}
	if err := resp.Decode(&session); err != nil {
		return "", err
	}
	return session.ID, nil
}

func (o sessionOpener) CloseSession(ctx context.Context, handle string) error {
	header := http.Header{}
	header.Set(transfer.SessionHeader, handle)

	_, err := o.doer.Do(ctx, &graph.Request{
		Method: http.MethodPost,
		Path:   o.resource + "/closeSession",
		Header: header,
		JSON:   map[string]interface{}{},
	})
	return err
}

// Close ends the session. Failures are only logged.
func (w *Workbook) Close(ctx context.Context) {
	w.session.Close(ctx)
}

// Item is the drive item backing the workbook.
func (w *Workbook) Item() drive.Item {
	return w.item
}

// SetChunkCells bounds how many cells a single read or write request may carry. Zero keeps the current value.
func (w *Workbook) SetChunkCells(read, write int) {
	if read > 0 {
		w.readCells = read
	}
	if write > 0 {
		w.writeCells = write
	}
}

func (w *Workbook) execute(ctx context.Context, method, p string, body interface{}) (*graph.Response, error) {
	return w.session.Execute(ctx, w.request(method, p, body))
}

func (w *Workbook) request(method, p string, body interface{}) *graph.Request {
	return &graph.Request{
		Method: method,
		Path:   w.resource + p,
		JSON:   body,
	}
}

func sheetPath(sheet string) string {
	return "/worksheets/" + url.PathEscape(sheet)
}

func rangePath(sheet, rangeAddress string) string {
	return fmt.Sprintf("%s/range(address='%s')", sheetPath(sheet), rangeAddress)
}

// usedRangePath scopes to the whole sheet when rangeAddress is empty.
func usedRangePath(sheet, rangeAddress string) string {
	if rangeAddress == "" {
		return sheetPath(sheet) + "/usedRange"
	}
	return rangePath(sheet, rangeAddress) + "/usedRange"
}
