package excel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/oyoms/go-officeclient/address"
	"github.com/oyoms/go-officeclient/graph"
	"github.com/oyoms/go-officeclient/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const (
	testShareURL = "https://contoso.sharepoint.com/:x:/g/personal/jane/EbSheet?e=4:x+y/z"
	workbookPath = "/drives/d1/items/wb"
)

var (
	sheetRoute = regexp.MustCompile(`^/worksheets/([^/]+)/(.*)$`)
	rangeRoute = regexp.MustCompile(`^range\(address='([^']*)'\)(.*)$`)
)

type call struct {
	Method  string
	Path    string
	Query   string
	Session string
	Body    map[string]interface{}
}

// fakeWorkbook serves one workbook with sparse cell storage per sheet.
type fakeWorkbook struct {
	t      *testing.T
	server *httptest.Server

	mu        sync.Mutex
	sheets    []string
	cells     map[string]map[address.Cell]interface{}
	sessions  int
	current   string
	closed    []string
	calls     []call
	csv       string
	expireOne bool
	timeout   bool

	lastCellStatus int
	lastCellCode   string
}

func newFakeWorkbook(t *testing.T, sheets ...string) *fakeWorkbook {
	f := &fakeWorkbook{
		t:     t,
		cells: map[string]map[address.Cell]interface{}{},
	}
	for _, s := range sheets {
		f.addSheet(s)
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeWorkbook) doer() graph.Doer {
	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = 0
	httpClient.Logger = nil
	return graph.NewClient(httpClient, f.server.URL, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "token"}), log.NewLogger())
}

func (f *fakeWorkbook) open(t *testing.T) *Workbook {
	wb, err := Open(context.Background(), f.doer(), Source{ShareURL: testShareURL}, log.NewLogger())
	require.NoError(t, err)
	return wb
}

func (f *fakeWorkbook) addSheet(name string) {
	f.sheets = append(f.sheets, name)
	f.cells[name] = map[address.Cell]interface{}{}
}

func (f *fakeWorkbook) set(sheet, cell string, v interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cells[sheet][address.MustParse(cell)] = v
}

func (f *fakeWorkbook) expireSession() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expireOne = true
}

func (f *fakeWorkbook) timeoutNextWrite() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeout = true
}

// failLastCell answers every lastCell lookup with the given error.
func (f *fakeWorkbook) failLastCell(status int, code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCellStatus = status
	f.lastCellCode = code
}

func (f *fakeWorkbook) get(sheet, cell string) interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cells[sheet][address.MustParse(cell)]
}

// callsTo returns the recorded calls whose path contains fragment.
func (f *fakeWorkbook) callsTo(method, fragment string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()

	var matched []call
	for _, c := range f.calls {
		if c.Method == method && strings.Contains(c.Path, fragment) {
			matched = append(matched, c)
		}
	}
	return matched
}

func (f *fakeWorkbook) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c := call{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Session: r.Header.Get(transfer.SessionHeader)}
	if r.ContentLength != 0 && r.Header.Get("Content-Type") == "application/json" {
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&c.Body))
	}
	f.calls = append(f.calls, c)

	p := r.URL.Path
	switch {
	case p == "/shares/"+EncodeShareURL(testShareURL)+"/driveItem":
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id":              "wb",
			"name":            "Book.xlsx",
			"parentReference": map[string]string{"driveId": "d1"},
		})
	case strings.HasPrefix(p, workbookPath+"/workbook"):
		f.workbook(w, r, c, strings.TrimPrefix(p, workbookPath+"/workbook"))
	case p == workbookPath+"/createLink":
		writeJSON(w, http.StatusOK, map[string]interface{}{"link": map[string]string{"webUrl": "https://contoso.sharepoint.com/link"}})
	case p == workbookPath+"/invite":
		writeJSON(w, http.StatusOK, map[string]interface{}{"value": []interface{}{}})
	case p == workbookPath+"/copy":
		w.WriteHeader(http.StatusAccepted)
	case p == workbookPath+"/content":
		w.Header().Set("Content-Type", "text/csv")
		_, _ = fmt.Fprint(w, f.csv)
	default:
		f.t.Errorf("unexpected request %s %s", r.Method, p)
		w.WriteHeader(http.StatusBadRequest)
	}
}

func (f *fakeWorkbook) workbook(w http.ResponseWriter, r *http.Request, c call, rest string) {
	switch rest {
	case "/createSession":
		assert.Equal(f.t, true, c.Body["persistChanges"])
		f.sessions++
		f.current = fmt.Sprintf("session-%d", f.sessions)
		writeJSON(w, http.StatusCreated, map[string]string{"id": f.current})
		return
	case "/closeSession":
		f.closed = append(f.closed, c.Session)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if c.Session != f.current || f.expireOne {
		f.expireOne = false
		graphError(w, http.StatusNotFound, graph.CodeInvalidSession, "The target session is invalid.")
		return
	}

	switch {
	case rest == "/worksheets" && r.Method == http.MethodGet:
		var value []map[string]string
		for _, s := range f.sheets {
			value = append(value, map[string]string{"name": s})
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"value": value})
	case rest == "/worksheets" && r.Method == http.MethodPost:
		f.addSheet(c.Body["name"].(string))
		writeJSON(w, http.StatusCreated, c.Body)
	case rest == "/application":
		writeJSON(w, http.StatusOK, c.Body)
	default:
		m := sheetRoute.FindStringSubmatch(rest)
		if m == nil {
			f.t.Errorf("unexpected workbook request %s %s", r.Method, rest)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.sheet(w, r, c, m[1], m[2])
	}
}

func (f *fakeWorkbook) sheet(w http.ResponseWriter, r *http.Request, c call, sheet, rest string) {
	cells, ok := f.cells[sheet]
	if !ok {
		graphError(w, http.StatusNotFound, "ItemNotFound", "The requested resource doesn't exist.")
		return
	}

	rangeAddress, suffix := "", rest
	if m := rangeRoute.FindStringSubmatch(rest); m != nil {
		rangeAddress, suffix = m[1], strings.TrimPrefix(m[2], "/")
	}

	switch suffix {
	case "usedRange(valuesOnly=true)":
		used, ok := f.usedRange(cells, rangeAddress)
		if !ok {
			used = address.Range{Start: address.MustParse("A1"), End: address.MustParse("A1")}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"address":     sheet + "!" + used.String(),
			"rowCount":    used.Rows(),
			"columnCount": used.Columns(),
		})
	case "usedRange(valuesOnly=true)/lastCell":
		if f.lastCellStatus != 0 {
			graphError(w, f.lastCellStatus, f.lastCellCode, "lastCell failed")
			return
		}
		used, ok := f.usedRange(cells, rangeAddress)
		if !ok {
			graphError(w, http.StatusNotFound, "ItemNotFound", "The requested resource doesn't exist.")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"address": sheet + "!" + used.End.String()})
	case "usedRange/clear", "usedRange/delete":
		for k := range cells {
			delete(cells, k)
		}
		w.WriteHeader(http.StatusOK)
	case "":
		rng, err := address.ParseRange(rangeAddress)
		require.NoError(f.t, err)

		switch r.Method {
		case http.MethodGet:
			text := make([][]string, rng.Rows())
			for i := range text {
				text[i] = make([]string, rng.Columns())
				for j := range text[i] {
					if v, ok := cells[address.Cell{Column: rng.Start.Column + j, Row: rng.Start.Row + i}]; ok {
						text[i][j] = fmt.Sprintf(" %v ", v)
					}
				}
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{"text": text})
		case http.MethodPatch:
			if f.timeout {
				f.timeout = false
				graphError(w, http.StatusGatewayTimeout, "", "")
				return
			}
			values := c.Body["values"].([]interface{})
			require.Len(f.t, values, rng.Rows())
			for i, row := range values {
				cols := row.([]interface{})
				require.Len(f.t, cols, rng.Columns())
				for j, v := range cols {
					cells[address.Cell{Column: rng.Start.Column + j, Row: rng.Start.Row + i}] = v
				}
			}
			writeJSON(w, http.StatusOK, map[string]string{"address": sheet + "!" + rangeAddress})
		}
	default:
		f.t.Errorf("unexpected sheet request %s %s", r.Method, rest)
		w.WriteHeader(http.StatusBadRequest)
	}
}

// usedRange bounds the non-empty cells, restricted to the columns of scope when given ("A:A" or "B2:D9").
func (f *fakeWorkbook) usedRange(cells map[address.Cell]interface{}, scope string) (address.Range, bool) {
	minCol, maxCol := 1, 1<<20
	if scope != "" {
		first, _, _ := strings.Cut(scope, ":")
		if n, err := address.ColumnNumber(strings.TrimRight(first, "0123456789")); err == nil {
			minCol, maxCol = n, n
			if rng, err := address.ParseRange(scope); err == nil {
				minCol, maxCol = rng.Start.Column, rng.End.Column
			}
		}
	}

	var used address.Range
	found := false
	for cell, v := range cells {
		if v == "" || cell.Column < minCol || cell.Column > maxCol {
			continue
		}
		if !found {
			used = address.Range{Start: cell, End: cell}
			found = true
			continue
		}
		used.Start.Row = min(used.Start.Row, cell.Row)
		used.Start.Column = min(used.Start.Column, cell.Column)
		used.End.Row = max(used.End.Row, cell.Row)
		used.End.Column = max(used.End.Column, cell.Column)
	}
	return used, found
}

func graphError(w http.ResponseWriter, status int, code, message string) {
	if code == "" {
		w.WriteHeader(status)
		return
	}
	writeJSON(w, status, map[string]interface{}{"error": map[string]string{"code": code, "message": message}})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeWorkbook) sessionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions
}

func (f *fakeWorkbook) closedSessions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.closed...)
}

func (f *fakeWorkbook) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeWorkbook) setCSV(content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.csv = content
}
