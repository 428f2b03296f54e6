package notifier

import (
	"regexp"
)

// mentionPattern matches inline Phabricator mentions: "@" followed by
// word, hyphen, or underscore characters.
var mentionPattern = regexp.MustCompile(`@([\w-]+)`)

// MentionResolver rewrites inline "@username" tokens in comment text into
// Slack mentions.
type MentionResolver struct {
	directory Directory
}

// NewMentionResolver creates a MentionResolver backed by the given directory.
func NewMentionResolver(directory Directory) *MentionResolver {
	return &MentionResolver{directory: directory}
}

// Resolve replaces every "@username" token whose username resolves in the
// directory with the corresponding Slack mention. The whole matched span,
// leading "@" included, is replaced; unresolved tokens are left untouched.
// Replacement is position-tracked, right to left, so an already-resolved
// text passes through unchanged.
func (m *MentionResolver) Resolve(text string) string {
	matches := mentionPattern.FindAllStringSubmatchIndex(text, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		start, end := matches[i][0], matches[i][1]
		username := text[matches[i][2]:matches[i][3]]
		mention, ok := m.directory.Mention(username)
		if !ok {
			continue
		}
		text = text[:start] + mention + text[end:]
	}
	return text
}
