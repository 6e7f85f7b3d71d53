package teams

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidChannelURL is returned for links that do not carry a channel and team ID.
var ErrInvalidChannelURL = errors.New("invalid channel URL")

// Channel addresses a channel of a team.
type Channel struct {
	TeamID    string
	ChannelID string
}

// ParseChannelURL reads a "Get link to channel" URL such as
// https://teams.microsoft.com/l/channel/19%3a...%40thread.tacv2/General?groupId=...&tenantId=...
func ParseChannelURL(link string) (Channel, error) {
	u, err := url.Parse(link)
	if err != nil {
		return Channel{}, fmt.Errorf("%w: %s", ErrInvalidChannelURL, err)
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	channelID := ""
	for i, segment := range segments {
		if segment == "channel" && i+1 < len(segments) {
			channelID = segments[i+1]
			break
		}
	}

	teamID := u.Query().Get("groupId")
	if channelID == "" || teamID == "" {
		return Channel{}, fmt.Errorf("%w: %s", ErrInvalidChannelURL, link)
	}
	return Channel{TeamID: teamID, ChannelID: channelID}, nil
}

func (c Channel) path() string {
	return fmt.Sprintf("/teams/%s/channels/%s", url.PathEscape(c.TeamID), url.PathEscape(c.ChannelID))
}
