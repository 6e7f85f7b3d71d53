package drive

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/oyoms/go-officeclient/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const driveID = "d1"

type fakeEntry struct {
	item    Item
	parent  string
	content []byte
}

type uploadSession struct {
	parent string
	name   string
	data   []byte
}

// fakeDrive is an in-memory drive served over HTTP with the resource paths the client uses.
type fakeDrive struct {
	t      *testing.T
	server *httptest.Server

	mu       sync.Mutex
	entries  map[string]*fakeEntry
	sessions map[string]*uploadSession
	nextID   int
	// log of "METHOD path" for every request
	requests []string
	ranges   []string
	// keep answering 202 after the last chunk
	neverFinish bool
}

func newFakeDrive(t *testing.T) *fakeDrive {
	d := &fakeDrive{
		t:        t,
		entries:  map[string]*fakeEntry{},
		sessions: map[string]*uploadSession{},
	}
	d.entries["root"] = &fakeEntry{item: Item{ID: "root", Name: "root", ParentReference: ParentReference{DriveID: driveID}, Folder: &struct {
		ChildCount int `json:"childCount"`
	}{}}}
	d.server = httptest.NewServer(http.HandlerFunc(d.serve))
	t.Cleanup(d.server.Close)
	return d
}

func (d *fakeDrive) client() *Client {
	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = 0
	httpClient.Logger = nil
	doer := graph.NewClient(httpClient, d.server.URL, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "token"}), log.NewLogger())
	return NewClient(doer, log.NewLogger()).WithDownloadClient(d.server.Client())
}

func (d *fakeDrive) serve(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p := r.URL.Path
	d.requests = append(d.requests, r.Method+" "+p)

	switch {
	case strings.HasPrefix(p, "/upload/"):
		d.uploadChunk(w, r, strings.TrimPrefix(p, "/upload/"))
	case strings.HasPrefix(p, "/content/"):
		e, ok := d.entries[strings.TrimPrefix(p, "/content/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		http.ServeContent(w, r, e.item.Name, time.Time{}, strings.NewReader(string(e.content)))
	case p == "/me/drive/root":
		d.writeItem(w, http.StatusOK, "root")
	case strings.HasPrefix(p, "/me/drive/root:/"):
		id := "root"
		for _, name := range strings.Split(strings.TrimPrefix(p, "/me/drive/root:/"), "/") {
			child, ok := d.child(id, name)
			if !ok {
				d.notFound(w)
				return
			}
			id = child
		}
		d.writeItem(w, http.StatusOK, id)
	case strings.HasPrefix(p, "/drives/"+driveID+"/items/"):
		d.itemRequest(w, r, strings.TrimPrefix(p, "/drives/"+driveID+"/items/"))
	default:
		d.t.Errorf("unexpected request: %s %s", r.Method, p)
		w.WriteHeader(http.StatusBadRequest)
	}
}

func (d *fakeDrive) itemRequest(w http.ResponseWriter, r *http.Request, rest string) {
	if parent, ok := strings.CutSuffix(rest, "/children"); ok {
		var body map[string]interface{}
		require.NoError(d.t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(d.t, http.MethodPost, r.Method)
		assert.Equal(d.t, "fail", body["@microsoft.graph.conflictBehavior"])
		assert.NotNil(d.t, body["folder"])

		id := d.add(parent, body["name"].(string), true, nil)
		d.writeItem(w, http.StatusCreated, id)
		return
	}

	parent, sub, _ := strings.Cut(rest, ":/")
	name, action, _ := strings.Cut(sub, ":/")

	switch action {
	case "":
		child, ok := d.child(parent, name)
		if !ok {
			d.notFound(w)
			return
		}
		d.writeItem(w, http.StatusOK, child)
	case "content":
		assert.Equal(d.t, "application/octet-stream", r.Header.Get("Content-Type"))
		data, err := io.ReadAll(r.Body)
		require.NoError(d.t, err)
		d.writeItem(w, http.StatusCreated, d.add(parent, name, false, data))
	case "createUploadSession":
		key := strconv.Itoa(len(d.sessions) + 1)
		d.sessions[key] = &uploadSession{parent: parent, name: name}
		writeJSON(w, http.StatusOK, map[string]string{"uploadUrl": d.server.URL + "/upload/" + key})
	default:
		d.t.Errorf("unexpected action %q", action)
		w.WriteHeader(http.StatusBadRequest)
	}
}

func (d *fakeDrive) uploadChunk(w http.ResponseWriter, r *http.Request, key string) {
	assert.Empty(d.t, r.Header.Get("Authorization"))
	s, ok := d.sessions[key]
	if !ok {
		d.notFound(w)
		return
	}

	var start, end, total int
	_, err := fmt.Sscanf(r.Header.Get("Content-Range"), "bytes %d-%d/%d", &start, &end, &total)
	require.NoError(d.t, err)
	d.ranges = append(d.ranges, r.Header.Get("Content-Range"))
	assert.Equal(d.t, len(s.data), start, "chunks arrive in order")

	data, err := io.ReadAll(r.Body)
	require.NoError(d.t, err)
	assert.Equal(d.t, end-start+1, len(data))
	s.data = append(s.data, data...)

	if len(s.data) < total || d.neverFinish {
		writeJSON(w, http.StatusAccepted, map[string]interface{}{"nextExpectedRanges": []string{fmt.Sprintf("%d-", len(s.data))}})
		return
	}
	d.writeItem(w, http.StatusCreated, d.add(s.parent, s.name, false, s.data))
}

func (d *fakeDrive) add(parent, name string, folder bool, content []byte) string {
	if id, ok := d.child(parent, name); ok && !folder {
		d.entries[id].content = content
		d.entries[id].item.Size = int64(len(content))
		return id
	}

	d.nextID++
	id := fmt.Sprintf("item-%d", d.nextID)
	item := Item{
		ID:              id,
		Name:            name,
		ETag:            fmt.Sprintf(`"{GUID-%d},1"`, d.nextID),
		Size:            int64(len(content)),
		ParentReference: ParentReference{DriveID: driveID, ID: parent},
	}
	if folder {
		item.Folder = &struct {
			ChildCount int `json:"childCount"`
		}{}
	} else {
		item.DownloadURL = d.server.URL + "/content/" + id
	}
	d.entries[id] = &fakeEntry{item: item, parent: parent, content: content}
	return id
}

func (d *fakeDrive) child(parent, name string) (string, bool) {
	for id, e := range d.entries {
		if e.parent == parent && e.item.Name == name && id != "root" {
			return id, true
		}
	}
	return "", false
}

// pathOf returns the folder chain of an entry, e.g. "/Reports/2024/data.csv".
func (d *fakeDrive) pathOf(id string) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	var parts []string
	for id != "root" {
		e := d.entries[id]
		parts = append([]string{e.item.Name}, parts...)
		id = e.parent
	}
	return "/" + strings.Join(parts, "/")
}

func (d *fakeDrive) contentOf(id string) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.entries[id].content
}

func (d *fakeDrive) writeItem(w http.ResponseWriter, status int, id string) {
	writeJSON(w, status, d.entries[id].item)
}

func (d *fakeDrive) notFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]interface{}{
		"error": map[string]string{"code": "itemNotFound", "message": "The resource could not be found."},
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
