package drive

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/docker/go-units"
	"github.com/oyoms/go-officeclient/graph"
	"github.com/oyoms/go-officeclient/transfer"
)

// uploadTarget is a file path under a resolved parent folder.
type uploadTarget struct {
	doer     graph.Doer
	itemPath string
}

func (t uploadTarget) Inline(ctx context.Context, payload []byte) (*graph.Response, error) {
	header := http.Header{}
	header.Set("Content-Type", "application/octet-stream")

	return t.doer.Do(ctx, &graph.Request{
		Method: http.MethodPut,
		Path:   t.itemPath + ":/content",
		Header: header,
		Body:   payload,
	})
}

func (t uploadTarget) Open(ctx context.Context, _ int64) (string, error) {
	resp, err := t.doer.Do(ctx, &graph.Request{
		Method: http.MethodPost,
		Path:   t.itemPath + ":/createUploadSession",
		JSON: map[string]interface{}{
			"item": map[string]interface{}{
				"@microsoft.graph.conflictBehavior": "replace",
			},
		},
	})
	if err != nil {
		return "", err
	}

	var session struct {
		UploadURL string `json:"uploadUrl"`
	}
	if err := resp.Decode(&session); err != nil {
		return "", err
	}
	if session.UploadURL == "" {
		return "", fmt.Errorf("upload session has no upload URL")
	}
	return session.UploadURL, nil
}

// resolveTarget splits a target path into folder and file name. An empty target means the root,
// a trailing slash means a folder that keeps the local name.
func resolveTarget(name, targetPath string) (string, string) {
	switch {
	case targetPath == "":
		return "", name
	case strings.HasSuffix(targetPath, "/"):
		return targetPath, name
	default:
		return path.Dir("/" + targetPath), path.Base(targetPath)
	}
}

// UploadFile uploads a local file. See UploadStream for the meaning of targetPath.
func (c *Client) UploadFile(ctx context.Context, localPath, targetPath string) (*Item, error) {
	provider, err := transfer.NewFileChunkProvider(localPath)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := provider.Close(); err != nil {
			c.logger.Printf("close %s: %s", localPath, err)
		}
	}()

	return c.UploadStream(ctx, provider, provider.Size(), filepath.Base(localPath), targetPath)
}

// UploadStream uploads size bytes read from r. targetPath may be empty (root, keep name), a folder
// ending with a slash (keep name) or a full file path. Missing folders are created. Payloads under
// 4 MiB go up in one request, larger ones through an upload session.
func (c *Client) UploadStream(ctx context.Context, r io.Reader, size int64, name, targetPath string) (*Item, error) {
	folderPath, fileName := resolveTarget(name, targetPath)
	if fileName == "" || fileName == "/" || fileName == "." {
		return nil, fmt.Errorf("no file name for upload to %q", targetPath)
	}

	folder, err := c.GetFolder(ctx, folderPath)
	if err != nil {
		return nil, err
	}

	target := uploadTarget{
		doer:     c.doer,
		itemPath: fmt.Sprintf("%s:/%s", folder.Path(), escapePath(fileName)),
	}

	c.logger.Infof("Uploading %s (%s) to %s", fileName, units.HumanSizeWithPrecision(float64(size), 3), path.Join("/", folderPath))
	resp, err := c.uploader.Upload(ctx, r, size, target, transfer.Direct{Doer: c.doer})
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", fileName, err)
	}

	item, err := decodeItem(resp)
	if err != nil {
		return nil, err
	}
	if item.ID == "" {
		return nil, fmt.Errorf("upload %s: remote did not return the created item (HTTP %d)", fileName, resp.StatusCode)
	}
	c.logger.Donef("Uploaded %s", item.Name)
	return item, nil
}

// UploadGlob uploads every file under dir matching pattern (doublestar syntax, e.g. "reports/**/*.csv")
// into targetFolder, keeping the relative directory layout.
func (c *Client) UploadGlob(ctx context.Context, dir, pattern, targetFolder string) ([]*Item, error) {
	fsys := os.DirFS(dir)
	matches, err := doublestar.Glob(fsys, pattern)
	if err != nil {
		return nil, fmt.Errorf("match %s: %w", pattern, err)
	}

	var items []*Item
	for _, match := range matches {
		info, err := fs.Stat(fsys, match)
		if err != nil {
			return items, err
		}
		if info.IsDir() {
			continue
		}

		folder := path.Join("/", targetFolder, path.Dir(match)) + "/"
		item, err := c.UploadFile(ctx, filepath.Join(dir, filepath.FromSlash(match)), folder)
		if err != nil {
			return items, err
		}
		items = append(items, item)
	}

	if len(items) == 0 {
		c.logger.Warnf("No files matched %s in %s", pattern, dir)
	}
	return items, nil
}
