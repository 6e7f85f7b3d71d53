// Package outlook sends mail from the signed-in user's mailbox. Small attachments travel inside
// the message; large ones are uploaded in chunks to a draft that is sent afterwards.
package outlook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
	"github.com/oyoms/go-officeclient/graph"
	"github.com/oyoms/go-officeclient/transfer"
)

const (
	// InlineAttachmentLimit caps the combined size of attachments sent inside the message itself.
	InlineAttachmentLimit = 3 * 1024 * 1024
	// DefaultChunkSize is the chunk size of attachment upload sessions.
	DefaultChunkSize = 4 * 1024 * 1024
)

// Scopes are the permissions the mail client needs.
var Scopes = []string{"Mail.ReadWrite", "Mail.Send"}

// ErrNoRecipients is returned when a mail has no To recipient.
var ErrNoRecipients = errors.New("mail has no recipients")

// BodyType is the content type of a mail body.
type BodyType string

// Body types.
const (
	BodyText BodyType = "text"
	BodyHTML BodyType = "html"
)

// Mail is an outgoing message. Attachments are local file paths.
type Mail struct {
	Subject     string
	Body        string
	BodyType    BodyType
	From        string
	To          []string
	CC          []string
	BCC         []string
	Attachments []string
}

func (m Mail) validate() error {
	if len(m.To) == 0 {
		return ErrNoRecipients
	}
	switch m.BodyType {
	case "", BodyText, BodyHTML:
		return nil
	default:
		return fmt.Errorf("body type must be %q or %q, got %q", BodyText, BodyHTML, m.BodyType)
	}
}

type emailAddress struct {
	Address string `json:"address"`
}

type recipient struct {
	EmailAddress emailAddress `json:"emailAddress"`
}

type itemBody struct {
	ContentType BodyType `json:"contentType"`
	Content     string   `json:"content"`
}

type message struct {
	Subject       string           `json:"subject"`
	Body          itemBody         `json:"body"`
	From          *recipient       `json:"from,omitempty"`
	ToRecipients  []recipient      `json:"toRecipients"`
	CcRecipients  []recipient      `json:"ccRecipients,omitempty"`
	BccRecipients []recipient      `json:"bccRecipients,omitempty"`
	Attachments   []fileAttachment `json:"attachments,omitempty"`
}

func recipients(addresses []string) []recipient {
	if len(addresses) == 0 {
		return nil
	}
	list := make([]recipient, 0, len(addresses))
	for _, a := range addresses {
		list = append(list, recipient{EmailAddress: emailAddress{Address: a}})
	}
	return list
}

func newMessage(m Mail) message {
	bodyType := m.BodyType
	if bodyType == "" {
		bodyType = BodyText
	}

	msg := message{
		Subject:       m.Subject,
		Body:          itemBody{ContentType: bodyType, Content: m.Body},
		ToRecipients:  recipients(m.To),
		CcRecipients:  recipients(m.CC),
		BccRecipients: recipients(m.BCC),
	}
	if m.From != "" {
		msg.From = &recipient{EmailAddress: emailAddress{Address: m.From}}
	}
	return msg
}

// Client sends mail through the remote mailbox API.
type Client struct {
	doer     graph.Doer
	uploader *transfer.Uploader
	logger   log.Logger
}

// NewClient ...
func NewClient(doer graph.Doer, logger log.Logger) *Client {
	return &Client{
		doer:     doer,
		uploader: transfer.NewUploader(transfer.Config{MaxChunkBytes: DefaultChunkSize}, logger),
		logger:   logger,
	}
}

// OnProgress registers fn to observe attachment uploads.
func (c *Client) OnProgress(fn transfer.ProgressFunc) {
	c.uploader.OnProgress(fn)
}

// SendMail sends m. When every attachment fits in the inline budget the message goes out in one
// request, otherwise a draft is created, the remaining attachments are uploaded to it and the draft is sent.
func (c *Client) SendMail(ctx context.Context, m Mail) error {
	if err := m.validate(); err != nil {
		return err
	}

	inline, large, err := partitionAttachments(m.Attachments)
	if err != nil {
		return err
	}

	msg := newMessage(m)
	for _, a := range inline {
		attachment, err := a.load()
		if err != nil {
			return err
		}
		msg.Attachments = append(msg.Attachments, attachment)
	}

	if len(large) == 0 {
		_, err := c.doer.Do(ctx, &graph.Request{
			Method: http.MethodPost,
			Path:   "/me/sendMail",
			JSON:   map[string]interface{}{"message": msg, "saveToSentItems": true},
		})
		if err != nil {
			return fmt.Errorf("send mail: %w", err)
		}
		c.logger.Donef("Mail %q sent to %d recipients", m.Subject, len(m.To)+len(m.CC)+len(m.BCC))
		return nil
	}

	id, err := c.createDraft(ctx, msg)
	if err != nil {
		return err
	}
	c.logger.Debugf("Created draft %s for %d large attachments", id, len(large))

	for _, a := range large {
		if err := c.uploadAttachment(ctx, id, a); err != nil {
			return err
		}
	}

	if _, err := c.doer.Do(ctx, &graph.Request{Method: http.MethodPost, Path: messagePath(id) + "/send"}); err != nil {
		return fmt.Errorf("send draft: %w", err)
	}
	c.logger.Donef("Mail %q sent to %d recipients", m.Subject, len(m.To)+len(m.CC)+len(m.BCC))
	return nil
}

func (c *Client) createDraft(ctx context.Context, msg message) (string, error) {
	resp, err := c.doer.Do(ctx, &graph.Request{Method: http.MethodPost, Path: "/me/messages", JSON: msg})
	if err != nil {
		return "", fmt.Errorf("create draft: %w", err)
	}

	var draft struct {
		ID string `json:"id"`
	}
	if err := resp.Decode(&draft); err != nil {
		return "", err
	}
	if draft.ID == "" {
		return "", fmt.Errorf("create draft: no message id returned")
	}
	return draft.ID, nil
}

// UploadAttachment adds a local file to an existing message through an upload session.
func (c *Client) UploadAttachment(ctx context.Context, messageID, localPath string) error {
	a, err := statAttachment(localPath)
	if err != nil {
		return err
	}
	return c.uploadAttachment(ctx, messageID, a)
}

func (c *Client) uploadAttachment(ctx context.Context, messageID string, a attachmentFile) error {
	provider, err := transfer.NewFileChunkProvider(a.path)
	if err != nil {
		return err
	}
	defer func() {
		if err := provider.Close(); err != nil {
			c.logger.Printf("close %s: %s", a.path, err)
		}
	}()

	target := attachmentTarget{doer: c.doer, messagePath: messagePath(messageID), file: a}

	c.logger.Infof("Attaching %s (%s)", a.name, units.HumanSizeWithPrecision(float64(a.size), 3))
	if _, err := c.uploader.Upload(ctx, provider, provider.Size(), target, transfer.Direct{Doer: c.doer}); err != nil {
		return fmt.Errorf("attach %s: %w", a.name, err)
	}
	return nil
}

func messagePath(id string) string {
	return "/me/messages/" + url.PathEscape(id)
}
