package drive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/docker/go-units"
	"github.com/melbahja/got"
)

// Download saves the file at remotePath to dest. When dest is an existing directory the remote
// name is kept. The content is fetched from the pre-authenticated download URL in ranged parts.
func (c *Client) Download(ctx context.Context, remotePath, dest string) (*Item, error) {
	item, err := c.GetItem(ctx, remotePath)
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if item.IsFolder() {
		return nil, fmt.Errorf("%s is a folder", remotePath)
	}
	if item.DownloadURL == "" {
		return nil, fmt.Errorf("%s has no download URL", remotePath)
	}

	if info, err := os.Stat(dest); err == nil && info.IsDir() {
		dest = filepath.Join(dest, item.Name)
	}

	c.logger.Debugf("Download %s (%s) to %s", item.Name, units.HumanSizeWithPrecision(float64(item.Size), 3), dest)
	if err := c.downloader.Do(got.NewDownload(ctx, item.DownloadURL, dest)); err != nil {
		return nil, fmt.Errorf("download %s: %w", item.Name, err)
	}

	c.logger.Donef("Downloaded %s", dest)
	return item, nil
}
