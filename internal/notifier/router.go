package notifier

import (
	"fmt"

	"github.com/dwilches/phabricator-slack-notifier/internal/types"
)

// ChannelRouter maps repository names to Slack channels. Built once from
// configuration; read-only afterwards.
type ChannelRouter struct {
	channels       map[string]string
	defaultChannel string
	debugChannel   string
}

// NewChannelRouter validates the channel map and builds a router. The
// "__default__" entry is mandatory; its absence is a configuration error,
// not a per-message condition.
func NewChannelRouter(channels map[string]string) (*ChannelRouter, error) {
	defaultChannel := channels[types.DefaultChannelKey]
	if defaultChannel == "" {
		return nil, fmt.Errorf("channel map has no %q entry", types.DefaultChannelKey)
	}
	routed := make(map[string]string, len(channels))
	for repo, channel := range channels {
		if repo == types.DefaultChannelKey || repo == types.DebugChannelKey {
			continue
		}
		routed[repo] = channel
	}
	return &ChannelRouter{
		channels:       routed,
		defaultChannel: defaultChannel,
		debugChannel:   channels[types.DebugChannelKey],
	}, nil
}

// ChannelFor returns the channel mapped to repoName, or the default channel.
func (r *ChannelRouter) ChannelFor(repoName string) string {
	if channel, ok := r.channels[repoName]; ok {
		return channel
	}
	return r.defaultChannel
}

// Default returns the mandatory fallback channel.
func (r *ChannelRouter) Default() string { return r.defaultChannel }

// Debug returns the debug sink channel. ok is false when none is configured,
// which disables debug notes entirely.
func (r *ChannelRouter) Debug() (string, bool) {
	return r.debugChannel, r.debugChannel != ""
}
