package drive

import (
	"fmt"
	"net/url"
	"strings"
)

// ParentReference locates the folder an item lives in.
type ParentReference struct {
	DriveID string `json:"driveId"`
	ID      string `json:"id"`
	Path    string `json:"path"`
}

// Item is the subset of a driveItem resource the client works with.
type Item struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	ETag            string          `json:"eTag"`
	WebURL          string          `json:"webUrl"`
	Size            int64           `json:"size"`
	ParentReference ParentReference `json:"parentReference"`
	Folder          *struct {
		ChildCount int `json:"childCount"`
	} `json:"folder,omitempty"`
	File *struct {
		MimeType string `json:"mimeType"`
	} `json:"file,omitempty"`
	DownloadURL string `json:"@microsoft.graph.downloadUrl"`
}

// Path is the item's addressable resource path, independent of its location in the folder tree.
func (i Item) Path() string {
	return fmt.Sprintf("/drives/%s/items/%s", i.ParentReference.DriveID, i.ID)
}

// IsFolder ...
func (i Item) IsFolder() bool {
	return i.Folder != nil
}

// ETagID extracts the bare item GUID from an eTag such as "{6F8C...},1".
func (i Item) ETagID() string {
	tag := strings.Trim(i.ETag, `"`)
	start := strings.IndexByte(tag, '{')
	end := strings.IndexByte(tag, '}')
	if start < 0 || end <= start {
		return ""
	}
	return tag[start+1 : end]
}

// escapePath escapes every segment of a slash separated path, dropping empty ones.
func escapePath(p string) string {
	var parts []string
	for _, part := range strings.Split(p, "/") {
		if part == "" || part == "." {
			continue
		}
		parts = append(parts, url.PathEscape(part))
	}
	return strings.Join(parts, "/")
}
