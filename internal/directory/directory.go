// Package directory bridges Phabricator identities to Slack accounts. The
// two user lists are joined on real name, so the only requisite is that a
// person's full name matches between both systems.
package directory

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dwilches/phabricator-slack-notifier/internal/types"
)

// Directory is a process-scoped, read-only lookup table built once at
// startup. Safe for concurrent reads.
type Directory struct {
	byPHID     map[string]types.User
	byUsername map[string]string // username → PHID
}

// Build joins the Phabricator user map (keyed by PHID) with the Slack user
// map (real name → Slack ID). Phabricator users with no Slack match are
// kept with an empty SlackID; the miss is logged at warn level.
func Build(logger *zap.Logger, phabUsers map[string]types.User, slackUsers map[string]string) *Directory {
	logger = logger.Named("directory")

	d := &Directory{
		byPHID:     make(map[string]types.User, len(phabUsers)),
		byUsername: make(map[string]string, len(phabUsers)),
	}
	for phid, user := range phabUsers {
		slackID, ok := slackUsers[user.RealName]
		if !ok {
			logger.Warn("Couldn't find this user in Slack",
				zap.String("username", user.Username),
				zap.String("real_name", user.RealName))
		}
		user.SlackID = slackID
		d.byPHID[phid] = user
		d.byUsername[user.Username] = phid
	}

	logger.Info("Built user directory", zap.Int("users", len(d.byPHID)))
	return d
}

// User returns the directory entry for a PHID or a Phabricator username.
// ok is false when the identity is unknown.
func (d *Directory) User(id string) (types.User, bool) {
	phid := id
	if !strings.HasPrefix(id, "PHID-USER-") {
		var known bool
		phid, known = d.byUsername[id]
		if !known {
			return types.User{}, false
		}
	}
	user, ok := d.byPHID[phid]
	return user, ok
}

// Mention returns the Slack mention ("<@SLACKID>") for a PHID or username.
// ok is false when the identity is unknown or has no Slack account.
func (d *Directory) Mention(id string) (string, bool) {
	user, ok := d.User(id)
	if !ok || user.SlackID == "" {
		return "", false
	}
	return fmt.Sprintf("<@%s>", user.SlackID), true
}
