// Package teams posts messages to chats and channels, with user mentions, inline images and
// file attachments stored in a drive.
package teams

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // formats accepted by image.DecodeConfig
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/oyoms/go-officeclient/drive"
	"github.com/oyoms/go-officeclient/graph"
)

// DefaultUploadFolder receives attachments, under the user's drive root for chats or the channel's files folder.
const DefaultUploadFolder = "OYOMS Uploads/"

// Scopes are the permissions the chat client needs.
var Scopes = []string{"ChannelMessage.Send", "Chat.ReadWrite", "User.ReadBasic.All"}

var (
	// ErrNoDestination is returned when neither a chat nor a channel is given.
	ErrNoDestination = errors.New("either a chat ID or a channel URL is required")
	// ErrAmbiguousDestination is returned when both a chat and a channel are given.
	ErrAmbiguousDestination = errors.New("only one of chat ID and channel URL may be given")
)

// tagPattern matches mentions written as $TAG(user@contoso.com) or $TAG(channel).
var tagPattern = regexp.MustCompile(`\$TAG\((.+?)\)`)

// Message is an HTML message for exactly one of ChatID or ChannelURL.
type Message struct {
	Content    string
	ChatID     string
	ChannelURL string
	// Images are local files shown inline after the content.
	Images []string
	// Attachments are local files uploaded to the drive and linked from the message.
	Attachments []string
	// Files are drive items linked without uploading.
	Files []*drive.Item
}

type mention struct {
	ID          int                    `json:"id"`
	MentionText string                 `json:"mentionText"`
	Mentioned   map[string]interface{} `json:"mentioned"`
}

type hostedContent struct {
	TemporaryID  string `json:"@microsoft.graph.temporaryId"`
	ContentBytes []byte `json:"contentBytes"`
	ContentType  string `json:"contentType"`
}

type attachment struct {
	ID          string `json:"id"`
	ContentType string `json:"contentType"`
	ContentURL  string `json:"contentUrl"`
	Name        string `json:"name"`
}

type chatMessage struct {
	Body struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
	Mentions       []mention       `json:"mentions,omitempty"`
	HostedContents []hostedContent `json:"hostedContents,omitempty"`
	Attachments    []attachment    `json:"attachments,omitempty"`
}

// Client posts chat messages.
type Client struct {
	doer         graph.Doer
	logger       log.Logger
	uploadFolder string
}

// NewClient ...
func NewClient(doer graph.Doer, logger log.Logger) *Client {
	return &Client{
		doer:         doer,
		logger:       logger,
		uploadFolder: DefaultUploadFolder,
	}
}

// WithUploadFolder changes where attachments are uploaded. A trailing slash is added when missing.
func (c *Client) WithUploadFolder(folder string) *Client {
	if !strings.HasSuffix(folder, "/") {
		folder += "/"
	}
	c.uploadFolder = folder
	return c
}

// SendMessage posts m and returns the ID of the created message.
func (c *Client) SendMessage(ctx context.Context, m Message) (string, error) {
	var channel *Channel
	switch {
	case m.ChatID == "" && m.ChannelURL == "":
		return "", ErrNoDestination
	case m.ChatID != "" && m.ChannelURL != "":
		return "", ErrAmbiguousDestination
	case m.ChannelURL != "":
		ch, err := ParseChannelURL(m.ChannelURL)
		if err != nil {
			return "", err
		}
		channel = &ch
	}

	var msg chatMessage
	content, mentions, err := c.resolveMentions(ctx, m.Content, channel)
	if err != nil {
		return "", err
	}
	msg.Mentions = mentions

	images, hosted, err := hostImages(m.Images)
	if err != nil {
		return "", err
	}
	content += images
	msg.HostedContents = hosted

	links, attachments, err := c.attach(ctx, m, channel)
	if err != nil {
		return "", err
	}
	content += links
	msg.Attachments = attachments

	msg.Body.ContentType = "html"
	msg.Body.Content = "<div>" + content + "</div>"

	p := "/chats/" + url.PathEscape(m.ChatID) + "/messages"
	if channel != nil {
		p = channel.path() + "/messages"
	}

	resp, err := c.doer.Do(ctx, &graph.Request{Method: http.MethodPost, Path: p, JSON: msg})
	if err != nil {
		return "", fmt.Errorf("post message: %w", err)
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := resp.Decode(&created); err != nil {
		return "", err
	}
	c.logger.Donef("Message posted with %d mentions, %d images and %d attachments", len(mentions), len(hosted), len(attachments))
	return created.ID, nil
}

// resolveMentions swaps every $TAG(...) for an <at> element. Users that cannot be looked up are
// written out as plain text.
func (c *Client) resolveMentions(ctx context.Context, content string, channel *Channel) (string, []mention, error) {
	var mentions []mention
	ids := map[string]int{}
	names := map[string]string{}

	for _, match := range tagPattern.FindAllStringSubmatch(content, -1) {
		user := match[1]
		if _, seen := names[user]; seen {
			continue
		}

		var m mention
		if strings.EqualFold(user, "channel") && channel != nil {
			m = mention{
				MentionText: "Here",
				Mentioned: map[string]interface{}{
					"conversation": map[string]string{
						"id":                       channel.ChannelID,
						"displayName":              "Here",
						"conversationIdentityType": "channel",
					},
				},
			}
		} else {
			id, displayName, err := c.lookupUser(ctx, user)
			if err != nil {
				if ctx.Err() != nil {
					return "", nil, ctx.Err()
				}
				c.logger.Warnf("Cannot mention %s: %s", user, err)
				names[user] = ""
				continue
			}
			m = mention{
				MentionText: displayName,
				Mentioned: map[string]interface{}{
					"user": map[string]string{
						"id":               id,
						"displayName":      displayName,
						"userIdentityType": "aadUser",
					},
				},
			}
		}

		m.ID = len(mentions)
		ids[user] = m.ID
		names[user] = m.MentionText
		mentions = append(mentions, m)
	}

	content = tagPattern.ReplaceAllStringFunc(content, func(tag string) string {
		user := tagPattern.FindStringSubmatch(tag)[1]
		id, ok := ids[user]
		if !ok {
			return user
		}
		return fmt.Sprintf(`<at id="%d">%s</at>`, id, names[user])
	})
	return content, mentions, nil
}

func (c *Client) lookupUser(ctx context.Context, user string) (string, string, error) {
	resp, err := c.doer.Do(ctx, &graph.Request{
		Method: http.MethodGet,
		Path:   fmt.Sprintf("/users('%s')?$select=id,displayName", url.PathEscape(user)),
	})
	if err != nil {
		return "", "", err
	}

	var u struct {
		ID          string `json:"id"`
		DisplayName string `json:"displayName"`
	}
	if err := resp.Decode(&u); err != nil {
		return "", "", err
	}
	return u.ID, u.DisplayName, nil
}

// hostImages embeds local images as hosted contents and returns the markup that shows them.
func hostImages(paths []string) (string, []hostedContent, error) {
	var markup strings.Builder
	var hosted []hostedContent

	for i, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return "", nil, fmt.Errorf("read image: %w", err)
		}
		config, format, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return "", nil, fmt.Errorf("decode image %s: %w", p, err)
		}

		fmt.Fprintf(&markup, `<br><span><img src="../hostedContents/%d/$value" height="%d" width="%d"></span>`, i, config.Height, config.Width)
		hosted = append(hosted, hostedContent{
			TemporaryID:  fmt.Sprint(i),
			ContentBytes: data,
			ContentType:  "image/" + format,
		})
	}
	return markup.String(), hosted, nil
}

// attach uploads local attachments and builds reference attachments for them and for m.Files.
func (c *Client) attach(ctx context.Context, m Message, channel *Channel) (string, []attachment, error) {
	if len(m.Attachments) == 0 && len(m.Files) == 0 {
		return "", nil, nil
	}

	files := append([]*drive.Item(nil), m.Files...)
	if len(m.Attachments) > 0 {
		store, err := c.attachmentDrive(ctx, channel)
		if err != nil {
			return "", nil, err
		}
		for _, p := range m.Attachments {
			item, err := store.UploadFile(ctx, p, c.uploadFolder)
			if err != nil {
				return "", nil, fmt.Errorf("upload attachment: %w", err)
			}
			files = append(files, item)
		}
	}

	var markup strings.Builder
	attachments := make([]attachment, 0, len(files))
	for _, item := range files {
		id := item.ETagID()
		if id == "" {
			return "", nil, fmt.Errorf("attachment %s has no eTag", item.Name)
		}

		parent, err := c.parentFolder(ctx, item)
		if err != nil {
			return "", nil, err
		}

		fmt.Fprintf(&markup, `<attachment id="%s"></attachment>`, id)
		attachments = append(attachments, attachment{
			ID:          id,
			ContentType: "reference",
			ContentURL:  parent.WebURL + "/" + item.Name,
			Name:        item.Name,
		})
	}
	return markup.String(), attachments, nil
}

// attachmentDrive is the user's drive for chats and the channel's files folder for channels.
func (c *Client) attachmentDrive(ctx context.Context, channel *Channel) (*drive.Client, error) {
	store := drive.NewClient(c.doer, c.logger)
	if channel == nil {
		return store, nil
	}

	resp, err := c.doer.Do(ctx, &graph.Request{Method: http.MethodGet, Path: channel.path() + "/filesFolder"})
	if err != nil {
		return nil, fmt.Errorf("get channel files folder: %w", err)
	}
	var folder drive.Item
	if err := resp.Decode(&folder); err != nil {
		return nil, err
	}
	return store.WithRoot(folder.Path()), nil
}

func (c *Client) parentFolder(ctx context.Context, item *drive.Item) (*drive.Item, error) {
	parent := drive.Item{ID: item.ParentReference.ID, ParentReference: drive.ParentReference{DriveID: item.ParentReference.DriveID}}

	resp, err := c.doer.Do(ctx, &graph.Request{Method: http.MethodGet, Path: parent.Path()})
	if err != nil {
		return nil, fmt.Errorf("get folder of %s: %w", item.Name, err)
	}
	if err := resp.Decode(&parent); err != nil {
		return nil, err
	}
	return &parent, nil
}
