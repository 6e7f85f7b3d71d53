// Package drive stores and fetches files in a OneDrive or SharePoint document library.
package drive

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/melbahja/got"
	"github.com/oyoms/go-officeclient/graph"
	"github.com/oyoms/go-officeclient/transfer"
)

// DefaultRoot is the signed-in user's drive root.
const DefaultRoot = "/me/drive/root"

// Scopes are the permissions the drive client needs.
var Scopes = []string{"Files.ReadWrite.All"}

// ErrChunkAlignment is returned for upload chunk sizes that are not a multiple of 320 KiB.
var ErrChunkAlignment = fmt.Errorf("chunk size must be a multiple of %d bytes", transfer.ChunkAlignment)

// Client talks to one drive root.
type Client struct {
	doer       graph.Doer
	root       string
	uploader   *transfer.Uploader
	downloader *got.Got
	logger     log.Logger
}

// NewClient creates a client rooted at DefaultRoot with the default upload limits.
func NewClient(doer graph.Doer, logger log.Logger) *Client {
	downloader := got.New()
	downloader.Client = retryhttp.NewClient(logger).StandardClient()

	return &Client{
		doer:       doer,
		root:       DefaultRoot,
		uploader:   transfer.NewUploader(transfer.DefaultConfig(), logger),
		downloader: downloader,
		logger:     logger,
	}
}

// WithRoot points the client at another drive root, e.g. "/drives/{id}/root".
func (c *Client) WithRoot(root string) *Client {
	c.root = strings.TrimSuffix(root, "/")
	return c
}

// WithDownloadClient replaces the HTTP client used for file content downloads.
func (c *Client) WithDownloadClient(client *http.Client) *Client {
	c.downloader.Client = client
	return c
}

// SetChunkSize changes the upload chunk size.
func (c *Client) SetChunkSize(size int64) error {
	if size < transfer.ChunkAlignment || size%transfer.ChunkAlignment != 0 {
		return fmt.Errorf("%w: got %d", ErrChunkAlignment, size)
	}

	config := c.uploader.Config()
	config.MaxChunkBytes = size
	c.uploader = transfer.NewUploader(config, c.logger)
	return nil
}

// OnProgress reports chunked upload progress to fn.
func (c *Client) OnProgress(fn transfer.ProgressFunc) {
	c.uploader.OnProgress(fn)
}

// Root ...
func (c *Client) Root() string {
	return c.root
}

// GetItem looks up a file or folder by its path under the root.
func (c *Client) GetItem(ctx context.Context, itemPath string) (*Item, error) {
	p := c.root
	if escaped := escapePath(itemPath); escaped != "" {
		p = fmt.Sprintf("%s:/%s", c.root, escaped)
	}
	return c.getItem(ctx, p)
}

// GetFolder resolves a folder path under the root, creating every missing folder of the chain.
func (c *Client) GetFolder(ctx context.Context, folderPath string) (*Item, error) {
	folder, err := c.getItem(ctx, c.root)
	if err != nil {
		return nil, fmt.Errorf("get drive root: %w", err)
	}

	for _, name := range strings.Split(strings.Trim(path.Clean("/"+folderPath), "/"), "/") {
		if name == "" {
			continue
		}

		child, err := c.getItem(ctx, fmt.Sprintf("%s:/%s", folder.Path(), escapePath(name)))
		if graph.IsNotFound(err) {
			c.logger.Debugf("Creating folder %s", name)
			child, err = c.createFolder(ctx, folder, name)
		}
		if err != nil {
			return nil, fmt.Errorf("resolve folder %s: %w", name, err)
		}
		folder = child
	}

	return folder, nil
}

func (c *Client) createFolder(ctx context.Context, parent *Item, name string) (*Item, error) {
	resp, err := c.doer.Do(ctx, &graph.Request{
		Method: http.MethodPost,
		Path:   parent.Path() + "/children",
		JSON: map[string]interface{}{
			"name":                              name,
			"folder":                            map[string]interface{}{},
			"@microsoft.graph.conflictBehavior": "fail",
		},
	})
	if err != nil {
		return nil, err
	}
	return decodeItem(resp)
}

func (c *Client) getItem(ctx context.Context, p string) (*Item, error) {
	resp, err := c.doer.Do(ctx, &graph.Request{Method: http.MethodGet, Path: p})
	if err != nil {
		return nil, err
	}
	return decodeItem(resp)
}

func decodeItem(resp *graph.Response) (*Item, error) {
	if resp == nil {
		return nil, errors.New("empty response")
	}
	var item Item
	if err := resp.Decode(&item); err != nil {
		return nil, err
	}
	return &item, nil
}
