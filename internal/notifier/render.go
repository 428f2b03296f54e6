package notifier

import (
	"context"
	"fmt"

	"github.com/dwilches/phabricator-slack-notifier/internal/types"
)

// resolveUser looks up an identity in the directory, failing the request
// when it is unknown.
func (d *Dispatcher) resolveUser(id string) (types.User, error) {
	user, ok := d.directory.User(id)
	if !ok {
		return types.User{}, &UnknownUserError{Identity: id}
	}
	return user, nil
}

// ownerInfo carries the resolved owner of a task or diff. exists is false
// for ownerless objects; mention is empty when the owner has no Slack
// account.
type ownerInfo struct {
	exists   bool
	username string
	mention  string
}

// resolveOwner fetches and resolves the owner of an object. An owner PHID
// that does not resolve in the directory is a hard failure.
func (d *Dispatcher) resolveOwner(ctx context.Context, objectPHID string) (ownerInfo, error) {
	ownerPHID, ok, err := d.tracker.Owner(ctx, objectPHID)
	if err != nil {
		return ownerInfo{}, err
	}
	if !ok {
		return ownerInfo{}, nil
	}
	owner, err := d.resolveUser(ownerPHID)
	if err != nil {
		return ownerInfo{}, err
	}
	mention, _ := d.directory.Mention(ownerPHID)
	return ownerInfo{exists: true, username: owner.Username, mention: mention}, nil
}

// prefixed prepends the owner's mention to text. No-op when the owner has
// no mention to use.
func prefixed(owner ownerInfo, text string) string {
	if owner.mention == "" {
		return text
	}
	return owner.mention + " " + text
}

// shouldNotifyOwner reports whether a message about someone else's object
// warrants pinging the owner: the object must have an owner and the author
// must not be the owner themselves.
func shouldNotifyOwner(owner ownerInfo, author types.User) bool {
	return owner.exists && author.Username != owner.username
}

func (d *Dispatcher) renderTask(ctx context.Context, tx types.Transaction) (*types.Message, error) {
	link, err := d.tracker.Link(ctx, tx.ObjectPHID)
	if err != nil {
		return nil, err
	}
	author, err := d.resolveUser(tx.AuthorPHID)
	if err != nil {
		return nil, err
	}
	owner, err := d.resolveOwner(ctx, tx.ObjectPHID)
	if err != nil {
		return nil, err
	}

	switch tx.Type {
	case types.TaskCreate:
		return &types.Message{
			Text: fmt.Sprintf("User %s created task %s", author.Username, link),
		}, nil

	case types.TaskAddComment:
		comment := d.mentions.Resolve(tx.Comment)
		text := fmt.Sprintf("User %s commented on task %s with: %s", author.Username, link, comment)
		if shouldNotifyOwner(owner, author) {
			text = prefixed(owner, text)
		}
		return &types.Message{Text: text}, nil

	case types.TaskClaim:
		return &types.Message{
			Text: fmt.Sprintf("User %s claimed task %s", author.Username, link),
		}, nil

	case types.TaskAssign:
		assignee := "nobody"
		if tx.AssigneePHID != "" {
			user, err := d.resolveUser(tx.AssigneePHID)
			if err != nil {
				return nil, err
			}
			if mention, ok := d.directory.Mention(tx.AssigneePHID); ok {
				assignee = mention
			} else {
				assignee = user.Username
			}
		}
		return &types.Message{
			Text: fmt.Sprintf("User %s assigned %s to task %s", author.Username, assignee, link),
		}, nil

	case types.TaskChangeStatus:
		text := fmt.Sprintf("User %s changed the status of task %s from %s to %s",
			author.Username, link, tx.Old, tx.New)
		if shouldNotifyOwner(owner, author) {
			text = prefixed(owner, text)
		}
		return &types.Message{Text: text}, nil

	case types.TaskChangePriority:
		text := fmt.Sprintf("User %s changed the priority of task %s from %s to %s",
			author.Username, link, tx.Old, tx.New)
		if shouldNotifyOwner(owner, author) {
			text = prefixed(owner, text)
		}
		return &types.Message{Text: text}, nil
	}

	return nil, nil
}

// diffVerbs is the wording for the plain diff lifecycle subtypes.
var diffVerbs = map[types.TransactionType]string{
	types.DiffCreate:  "created",
	types.DiffUpdate:  "updated",
	types.DiffAbandon: "abandoned",
	types.DiffReclaim: "reclaimed",
}

// diffReviewVerbs is the wording for the review subtypes that always ping
// the diff owner.
var diffReviewVerbs = map[types.TransactionType]string{
	types.DiffAccept:         "accepted",
	types.DiffRequestChanges: "requested changes to",
	types.DiffCommandeer:     "took command of",
}

func (d *Dispatcher) renderDiff(ctx context.Context, tx types.Transaction) (*types.Message, error) {
	link, err := d.tracker.Link(ctx, tx.ObjectPHID)
	if err != nil {
		return nil, err
	}
	author, err := d.resolveUser(tx.AuthorPHID)
	if err != nil {
		return nil, err
	}
	// Every diff has an owner (its author); resolution is strict.
	owner, err := d.resolveOwner(ctx, tx.ObjectPHID)
	if err != nil {
		return nil, err
	}
	if !owner.exists {
		return nil, fmt.Errorf("diff %s has no owner", tx.ObjectPHID)
	}

	channel := d.router.ChannelFor(tx.RepoName)

	if verb, ok := diffVerbs[tx.Type]; ok {
		return &types.Message{
			Text:    fmt.Sprintf("User %s %s diff %s", author.Username, verb, link),
			Channel: channel,
		}, nil
	}

	if verb, ok := diffReviewVerbs[tx.Type]; ok {
		text := fmt.Sprintf("User %s %s diff %s", author.Username, verb, link)
		return &types.Message{
			Text:    prefixed(owner, text),
			Channel: channel,
		}, nil
	}

	if tx.Type == types.DiffAddComment {
		comment := d.mentions.Resolve(tx.Comment)
		text := fmt.Sprintf("User %s commented on diff %s with %s", author.Username, link, comment)
		if author.Username != owner.username {
			text = prefixed(owner, text)
		}
		return &types.Message{Text: text, Channel: channel}, nil
	}

	return nil, nil
}

func (d *Dispatcher) renderCommit(ctx context.Context, tx types.Transaction) (*types.Message, error) {
	if tx.Type != types.CommitAddComment {
		return nil, nil
	}
	link, err := d.tracker.Link(ctx, tx.ObjectPHID)
	if err != nil {
		return nil, err
	}
	author, err := d.resolveUser(tx.AuthorPHID)
	if err != nil {
		return nil, err
	}
	return &types.Message{
		Text:    fmt.Sprintf("User %s created commit %s on repository %s", author.Username, link, tx.RepoName),
		Channel: d.router.ChannelFor(tx.RepoName),
	}, nil
}

func (d *Dispatcher) renderProject(ctx context.Context, tx types.Transaction) (*types.Message, error) {
	if tx.Type != types.ProjectCreate {
		return nil, nil
	}
	link, err := d.tracker.Link(ctx, tx.ObjectPHID)
	if err != nil {
		return nil, err
	}
	author, err := d.resolveUser(tx.AuthorPHID)
	if err != nil {
		return nil, err
	}
	return &types.Message{
		Text: fmt.Sprintf("User %s created project %s", author.Username, link),
	}, nil
}

func (d *Dispatcher) renderRepository(ctx context.Context, tx types.Transaction) (*types.Message, error) {
	if tx.Type != types.RepositoryCreate {
		return nil, nil
	}
	link, err := d.tracker.Link(ctx, tx.ObjectPHID)
	if err != nil {
		return nil, err
	}
	author, err := d.resolveUser(tx.AuthorPHID)
	if err != nil {
		return nil, err
	}
	return &types.Message{
		Text: fmt.Sprintf("User %s created repository %s", author.Username, link),
	}, nil
}
