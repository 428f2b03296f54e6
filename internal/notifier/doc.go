// Package notifier converts enriched Phabricator transactions into
// human-readable Slack messages.
//
// # Contract
//
// The Dispatcher:
//  1. Receives a firehose payload (object PHID + transaction PHIDs)
//  2. Enriches the transactions through the Tracker collaborator
//  3. Renders each transaction through the per-object-type rule set:
//     tasks, diffs, commits, projects, repositories
//  4. Sends rendered messages through the Sender; diff and commit
//     messages are routed to a per-repository channel
//
// Unrecognized object types and transaction subtypes are not errors: they
// produce a debug note on the configured debug channel (if any) and
// processing continues. An unresolvable author, owner, or assignee identity
// is fatal to the whole request: the remaining batch is abandoned and a
// single error-severity report, carrying the original payload and a stack
// trace, is sent instead. Handle never returns an error to its caller.
//
// The dispatch table and rule set are built at construction and read-only
// afterwards, so one Dispatcher may serve concurrent requests.
//
// # Rendering rules
//
// Messages read "User {author} {did something} {permalink}". Comment text
// passes through the mention resolver first, which rewrites "@username"
// tokens into Slack mentions. Some rules prefix the message with the
// object owner's mention:
//
//   - task add-comment, change-status, change-priority: prefixed when an
//     owner exists and the author is not the owner
//   - diff add-comment: prefixed when the author is not the owner
//   - diff accept, request-changes, commandeer: always prefixed
package notifier
