package phab

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/dwilches/phabricator-slack-notifier/internal/types"
)

// rawTransaction is a transaction as returned by transaction.search. The
// old/new fields are raw because their shape varies by transaction type
// (plain strings for status, {name: …} objects for priority).
type rawTransaction struct {
	Type       string `json:"type"`
	AuthorPHID string `json:"authorPHID"`
	ObjectPHID string `json:"objectPHID"`
	Fields     struct {
		Old json.RawMessage `json:"old"`
		New json.RawMessage `json:"new"`
	} `json:"fields"`
	Comments []struct {
		Removed bool `json:"removed"`
		Content struct {
			Raw string `json:"raw"`
		} `json:"content"`
	} `json:"comments"`
}

// Transactions fetches the given transactions and normalizes them into the
// closed set of types.Transaction subtypes. Transactions with no rendering
// relevance are dropped; order is otherwise preserved as returned by
// Conduit. Installs where transaction.search is not implemented yield an
// empty result rather than an error.
func (c *Client) Transactions(ctx context.Context, objectType types.ObjectType, objectPHID string, txPHIDs []string) ([]types.Transaction, error) {
	result, err := c.call(ctx, "transaction.search", map[string]any{
		"objectIdentifier": objectPHID,
		"constraints":      map[string]any{"phids": txPHIDs},
	})
	if err != nil {
		if notImplemented(err) {
			c.logger.Error("Unimplemented method in Phabricator", zap.Error(err))
			return nil, nil
		}
		return nil, err
	}

	var page struct {
		Data []rawTransaction `json:"data"`
	}
	if err := json.Unmarshal(result, &page); err != nil {
		return nil, fmt.Errorf("decode transaction.search result: %w", err)
	}

	// Diff and commit transactions route by repository; resolve the name
	// once for the whole batch.
	repoName := ""
	if objectType == types.ObjectDiff || objectType == types.ObjectCommit {
		repoName, err = c.repoNameFor(ctx, objectPHID)
		if err != nil {
			return nil, err
		}
	}

	var out []types.Transaction
	for _, raw := range page.Data {
		out = append(out, c.normalize(objectType, repoName, raw)...)
	}
	return out, nil
}

// normalize converts one raw Conduit transaction into zero or more enriched
// transactions. Comment transactions fan out to one entry per live comment.
func (c *Client) normalize(objectType types.ObjectType, repoName string, raw rawTransaction) []types.Transaction {
	base := types.Transaction{
		AuthorPHID: raw.AuthorPHID,
		ObjectPHID: raw.ObjectPHID,
		RepoName:   repoName,
	}

	switch objectType {
	case types.ObjectTask:
		return c.normalizeTask(base, raw)
	case types.ObjectDiff:
		return c.normalizeDiff(base, raw)
	case types.ObjectCommit:
		if raw.Type == "comment" {
			return c.comments(base, types.CommitAddComment, raw)
		}
	case types.ObjectProject:
		if raw.Type == "create" {
			base.Type = types.ProjectCreate
			return []types.Transaction{base}
		}
	case types.ObjectRepository:
		if raw.Type == "create" {
			base.Type = types.RepositoryCreate
			return []types.Transaction{base}
		}
	default:
		// Unknown object types are not filtered here. They pass through
		// with the raw type preserved so the dispatcher can report each
		// one to the debug sink.
		base.Type = types.TransactionType(raw.Type)
		return []types.Transaction{base}
	}

	c.logger.Debug("No message will be generated",
		zap.String("object_type", string(objectType)),
		zap.String("transaction_type", raw.Type))
	return nil
}

func (c *Client) normalizeTask(base types.Transaction, raw rawTransaction) []types.Transaction {
	switch raw.Type {
	case "create":
		base.Type = types.TaskCreate
		return []types.Transaction{base}
	case "comment":
		return c.comments(base, types.TaskAddComment, raw)
	case "owner":
		// An owner change where the author takes the task is a claim;
		// anything else is an assignment (possibly to nobody).
		newOwner := stringField(raw.Fields.New)
		if raw.AuthorPHID == newOwner {
			base.Type = types.TaskClaim
			return []types.Transaction{base}
		}
		base.Type = types.TaskAssign
		base.AssigneePHID = newOwner
		return []types.Transaction{base}
	case "status":
		base.Type = types.TaskChangeStatus
		base.Old = stringField(raw.Fields.Old)
		base.New = stringField(raw.Fields.New)
		return []types.Transaction{base}
	case "priority":
		base.Type = types.TaskChangePriority
		base.Old = nameField(raw.Fields.Old)
		base.New = nameField(raw.Fields.New)
		return []types.Transaction{base}
	}
	c.logger.Debug("No message will be generated", zap.String("transaction_type", raw.Type))
	return nil
}

func (c *Client) normalizeDiff(base types.Transaction, raw rawTransaction) []types.Transaction {
	switch raw.Type {
	case "create":
		base.Type = types.DiffCreate
	case "comment", "inline":
		return c.comments(base, types.DiffAddComment, raw)
	case "update":
		base.Type = types.DiffUpdate
	case "abandon":
		base.Type = types.DiffAbandon
	case "reclaim":
		base.Type = types.DiffReclaim
	case "accept":
		base.Type = types.DiffAccept
	case "request-changes":
		base.Type = types.DiffRequestChanges
	case "commandeer":
		base.Type = types.DiffCommandeer
	default:
		c.logger.Debug("No message will be generated", zap.String("transaction_type", raw.Type))
		return nil
	}
	return []types.Transaction{base}
}

// comments expands a comment transaction into one enriched transaction per
// comment that has not been removed.
func (c *Client) comments(base types.Transaction, txType types.TransactionType, raw rawTransaction) []types.Transaction {
	var out []types.Transaction
	for _, comment := range raw.Comments {
		if comment.Removed {
			continue
		}
		tx := base
		tx.Type = txType
		tx.Comment = comment.Content.Raw
		out = append(out, tx)
	}
	return out
}

// stringField decodes a raw field that is a plain JSON string. Null or
// malformed values decode to "".
func stringField(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// nameField decodes a raw field shaped {"name": …}, as used by priority
// changes.
func nameField(raw json.RawMessage) string {
	var v struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	return v.Name
}
