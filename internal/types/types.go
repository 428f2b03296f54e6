package types

// ObjectType identifies the kind of Phabricator object a firehose event
// refers to. Values are as sent by the firehose webhook.
type ObjectType string

const (
	ObjectTask       ObjectType = "TASK"
	ObjectDiff       ObjectType = "DREV"
	ObjectCommit     ObjectType = "CMIT"
	ObjectProject    ObjectType = "PROJ"
	ObjectRepository ObjectType = "REPO"
)

// TransactionType is the normalized subtype of an enriched transaction.
type TransactionType string

const (
	TaskCreate         TransactionType = "task-create"
	TaskAddComment     TransactionType = "task-add-comment"
	TaskClaim          TransactionType = "task-claim"
	TaskAssign         TransactionType = "task-assign"
	TaskChangeStatus   TransactionType = "task-change-status"
	TaskChangePriority TransactionType = "task-change-priority"

	DiffCreate         TransactionType = "diff-create"
	DiffAddComment     TransactionType = "diff-add-comment"
	DiffUpdate         TransactionType = "diff-update"
	DiffAbandon        TransactionType = "diff-abandon"
	DiffReclaim        TransactionType = "diff-reclaim"
	DiffAccept         TransactionType = "diff-accept"
	DiffRequestChanges TransactionType = "diff-request-changes"
	DiffCommandeer     TransactionType = "diff-commandeer"

	CommitAddComment TransactionType = "commit-add-comment"

	ProjectCreate    TransactionType = "proj-create"
	RepositoryCreate TransactionType = "repo-create"
)

// Severity is the presentation category of a notification, mapped to a
// Slack attachment color.
type Severity string

const (
	SeverityNone    Severity = "none"
	SeverityInfo    Severity = "info"
	SeverityWarn    Severity = "warn"
	SeverityError   Severity = "error"
	SeveritySuccess Severity = "success"
)

// Reserved keys in the repository → channel map.
const (
	DefaultChannelKey = "__default__"
	DebugChannelKey   = "__debug__"
)

// Payload is the raw inbound firehose event. One per HTTP call.
type Payload struct {
	Object struct {
		Type string `json:"type"`
		PHID string `json:"phid"`
	} `json:"object"`
	Transactions []struct {
		PHID string `json:"phid"`
	} `json:"transactions"`
}

// TransactionPHIDs returns the PHIDs of the wrapped transactions in payload order.
func (p Payload) TransactionPHIDs() []string {
	phids := make([]string, 0, len(p.Transactions))
	for _, t := range p.Transactions {
		phids = append(phids, t.PHID)
	}
	return phids
}

// Transaction is the normalized, engine-agnostic representation of one
// Phabricator change, produced by the Conduit enrichment call. Only the
// fields relevant to its Type are populated.
type Transaction struct {
	Type       TransactionType
	AuthorPHID string
	// ObjectPHID is the task, diff, commit, project, or repository the
	// transaction was recorded against.
	ObjectPHID string

	// Comment is the raw comment text for *-add-comment transactions.
	Comment string
	// AssigneePHID is set for task-assign; empty means unassigned.
	AssigneePHID string
	// Old and New carry the previous and current value for
	// change-status and change-priority transactions.
	Old string
	New string
	// RepoName is the repository a diff or commit belongs to, used for
	// channel routing.
	RepoName string
}

// Message is a rendered notification ready for Slack delivery.
type Message struct {
	// Text is never empty for a rendered message.
	Text string
	// Channel overrides the default channel when non-empty.
	Channel string
	// Severity defaults to SeverityNone when empty.
	Severity Severity
}

// User is a directory entry bridging a Phabricator identity to Slack.
type User struct {
	PHID     string
	Username string
	RealName string
	// SlackID is empty when no Slack account matched the user's real name.
	SlackID string
}
