package teams

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/oyoms/go-officeclient/graph"
)

// ChatFilter narrows Chats. Empty fields do not filter.
type ChatFilter struct {
	// Topic matches chats whose name contains it.
	Topic string
	// Member matches chats with a member whose display name contains it.
	Member   string
	OneOnOne bool
}

func (f ChatFilter) expression() string {
	var terms []string
	if f.Topic != "" {
		terms = append(terms, fmt.Sprintf("contains(topic, '%s')", quote(f.Topic)))
	}
	if f.Member != "" {
		terms = append(terms, fmt.Sprintf("members/any(s:contains(s/displayName, '%s'))", quote(f.Member)))
	}
	if f.OneOnOne {
		terms = append(terms, "chatType eq 'oneOnOne'")
	}
	return strings.Join(terms, " and ")
}

// quote escapes a string literal for a filter expression.
func quote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// Member of a chat.
type Member struct {
	Name  string `json:"displayName"`
	Email string `json:"email"`
}

// Chat is a chat the signed-in user takes part in.
type Chat struct {
	ID       string   `json:"id"`
	Topic    string   `json:"topic"`
	ChatType string   `json:"chatType"`
	Members  []Member `json:"members"`
}

// GroupSize ...
func (c Chat) GroupSize() int {
	return len(c.Members)
}

// Chats lists the signed-in user's chats matching filter, following result pages.
func (c *Client) Chats(ctx context.Context, filter ChatFilter) ([]Chat, error) {
	query := url.Values{}
	query.Set("$expand", "members")
	if expr := filter.expression(); expr != "" {
		query.Set("$filter", expr)
	}

	var chats []Chat
	next := "/me/chats?" + query.Encode()
	for next != "" {
		resp, err := c.doer.Do(ctx, &graph.Request{Method: http.MethodGet, Path: next})
		if err != nil {
			return nil, fmt.Errorf("list chats: %w", err)
		}

		var page struct {
			Value    []Chat `json:"value"`
			NextLink string `json:"@odata.nextLink"`
		}
		if err := resp.Decode(&page); err != nil {
			return nil, err
		}
		chats = append(chats, page.Value...)
		next = page.NextLink
	}

	c.logger.Debugf("Found %d chats", len(chats))
	return chats, nil
}
