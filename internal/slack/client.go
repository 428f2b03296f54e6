// Package slack wraps the Slack Web API calls the notifier needs: listing
// workspace members and posting messages. Delivery failures are logged and
// absorbed here; they never propagate to the dispatch core.
package slack

import (
	"context"
	"fmt"

	slackapi "github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/dwilches/phabricator-slack-notifier/internal/types"
)

// severityColors maps message severity to a Slack attachment color.
var severityColors = map[types.Severity]string{
	types.SeverityNone:    "#F0F0F0",
	types.SeverityInfo:    "#28D7E5",
	types.SeverityWarn:    "warning",
	types.SeverityError:   "danger",
	types.SeveritySuccess: "good",
}

// webAPI is the slice of the Slack SDK the client uses. Narrowed to an
// interface so tests can inject a fake.
type webAPI interface {
	GetUsersContext(ctx context.Context, options ...slackapi.GetUsersOption) ([]slackapi.User, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// ClientConfig holds the configuration for creating a Client.
type ClientConfig struct {
	Token string
	// DefaultChannel receives messages that carry no channel override.
	DefaultChannel string
}

// Client posts notifications to Slack.
type Client struct {
	api            webAPI
	logger         *zap.Logger
	defaultChannel string
}

// NewClient creates a Client. Returns an error if the token or default
// channel is missing.
func NewClient(logger *zap.Logger, cfg ClientConfig) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("slack token is required")
	}
	if cfg.DefaultChannel == "" {
		return nil, fmt.Errorf("slack default channel is required")
	}
	return &Client{
		api:            slackapi.New(cfg.Token),
		logger:         logger.Named("slack"),
		defaultChannel: cfg.DefaultChannel,
	}, nil
}

// Users returns the workspace members that look like humans, keyed by real
// name. Requires the users:read scope.
func (c *Client) Users(ctx context.Context) (map[string]string, error) {
	c.logger.Info("Getting list of users from Slack")

	members, err := c.api.GetUsersContext(ctx)
	if err != nil {
		return nil, err
	}

	users := make(map[string]string, len(members))
	for _, member := range members {
		if member.IsBot || member.Deleted || member.RealName == "" {
			continue
		}
		users[member.RealName] = member.ID
	}

	c.logger.Debug("Fetched Slack users", zap.Int("count", len(users)))
	return users, nil
}

// Send posts one message as a colored attachment. Messages without a
// channel go to the default channel. Requires the chat:write scope.
// Delivery errors are logged and dropped.
func (c *Client) Send(ctx context.Context, msg types.Message) {
	channel := msg.Channel
	if channel == "" {
		channel = c.defaultChannel
	}

	severity := msg.Severity
	if severity == "" {
		severity = types.SeverityNone
	}

	attachment := slackapi.Attachment{
		Color: severityColors[severity],
		Text:  msg.Text,
	}

	_, _, err := c.api.PostMessageContext(ctx, channel, slackapi.MsgOptionAttachments(attachment))
	if err != nil {
		c.logger.Error("Couldn't send message to Slack, dropping",
			zap.String("channel", channel),
			zap.String("text", msg.Text),
			zap.Error(err))
	}
}
