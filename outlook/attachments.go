package outlook

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sort"

	"github.com/oyoms/go-officeclient/graph"
)

const fileAttachmentType = "#microsoft.graph.fileAttachment"

type fileAttachment struct {
	ODataType    string `json:"@odata.type"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	ContentBytes []byte `json:"contentBytes"`
}

type attachmentFile struct {
	path string
	name string
	size int64
}

func statAttachment(p string) (attachmentFile, error) {
	info, err := os.Stat(p)
	if err != nil {
		return attachmentFile{}, fmt.Errorf("attachment: %w", err)
	}
	if info.IsDir() {
		return attachmentFile{}, fmt.Errorf("attachment %s is a directory", p)
	}
	return attachmentFile{path: p, name: filepath.Base(p), size: info.Size()}, nil
}

func (a attachmentFile) contentType() string {
	if t := mime.TypeByExtension(filepath.Ext(a.name)); t != "" {
		return t
	}
	return "application/octet-stream"
}

func (a attachmentFile) load() (fileAttachment, error) {
	data, err := os.ReadFile(a.path)
	if err != nil {
		return fileAttachment{}, fmt.Errorf("read attachment: %w", err)
	}
	return a.attachment(data), nil
}

func (a attachmentFile) attachment(data []byte) fileAttachment {
	return fileAttachment{
		ODataType:    fileAttachmentType,
		Name:         a.name,
		ContentType:  a.contentType(),
		ContentBytes: data,
	}
}

// partitionAttachments orders files by size and keeps adding them to the inline set while the
// running total stays below InlineAttachmentLimit. The rest need an upload session.
func partitionAttachments(paths []string) (inline, large []attachmentFile, err error) {
	files := make([]attachmentFile, 0, len(paths))
	for _, p := range paths {
		a, err := statAttachment(p)
		if err != nil {
			return nil, nil, err
		}
		files = append(files, a)
	}
	sort.SliceStable(files, func(i, j int) bool { return files[i].size < files[j].size })

	var total int64
	for _, a := range files {
		if total+a.size < InlineAttachmentLimit {
			total += a.size
			inline = append(inline, a)
		} else {
			large = append(large, a)
		}
	}
	return inline, large, nil
}

// attachmentTarget uploads one file to a draft message.
type attachmentTarget struct {
	doer        graph.Doer
	messagePath string
	file        attachmentFile
}

// Inline is only reached for empty files, which upload sessions reject.
func (t attachmentTarget) Inline(ctx context.Context, payload []byte) (*graph.Response, error) {
	return t.doer.Do(ctx, &graph.Request{
		Method: http.MethodPost,
		Path:   t.messagePath + "/attachments",
		JSON:   t.file.attachment(payload),
	})
}

func (t attachmentTarget) Open(ctx context.Context, totalSize int64) (string, error) {
	resp, err := t.doer.Do(ctx, &graph.Request{
		Method: http.MethodPost,
		Path:   t.messagePath + "/attachments/createUploadSession",
		JSON: map[string]interface{}{
			"AttachmentItem": map[string]interface{}{
				"attachmentType": "file",
				"name":           t.file.name,
				"size":           totalSize,
				"contentType":    t.file.contentType(),
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
		return "", fmt.Errorf("attachment upload session has no upload URL")
	}
	return session.UploadURL, nil
}

// UploadComplete: attachment sessions acknowledge intermediate chunks with 200 and the last one with 201.
func (t attachmentTarget) UploadComplete(resp *graph.Response) bool {
	return resp != nil && resp.StatusCode == http.StatusCreated
}
