package phab

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/dwilches/phabricator-slack-notifier/internal/types"
)

// Users returns the human users of the Phabricator install, keyed by PHID.
// Bots and disabled accounts are excluded. SlackID is left empty; the
// directory package fills it in from the Slack side.
func (c *Client) Users(ctx context.Context) (map[string]types.User, error) {
	c.logger.Info("Getting list of users from Phabricator")

	result, err := c.call(ctx, "user.search", map[string]any{})
	if err != nil {
		return nil, err
	}

	var page struct {
		Data []struct {
			PHID   string `json:"phid"`
			Type   string `json:"type"`
			Fields struct {
				Username string   `json:"username"`
				RealName string   `json:"realName"`
				Roles    []string `json:"roles"`
			} `json:"fields"`
		} `json:"data"`
	}
	if err := json.Unmarshal(result, &page); err != nil {
		return nil, fmt.Errorf("decode user.search result: %w", err)
	}

	users := make(map[string]types.User, len(page.Data))
	for _, u := range page.Data {
		if u.Type != "USER" {
			continue
		}
		if slices.Contains(u.Fields.Roles, "disabled") || slices.Contains(u.Fields.Roles, "bot") {
			continue
		}
		users[u.PHID] = types.User{
			PHID:     u.PHID,
			Username: u.Fields.Username,
			RealName: u.Fields.RealName,
		}
	}

	c.logger.Debug("Fetched Phabricator users", zap.Int("count", len(users)))
	return users, nil
}
