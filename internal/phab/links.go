package phab

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Link returns a Slack-formatted permalink ("<url|label>") for a task,
// diff, project, repository, or commit PHID.
func (c *Client) Link(ctx context.Context, phid string) (string, error) {
	switch {
	case strings.HasPrefix(phid, "PHID-TASK-"):
		var task struct {
			ID     int `json:"id"`
			Fields struct {
				Name string `json:"name"`
			} `json:"fields"`
		}
		if err := c.searchOne(ctx, "maniphest.search", phid, &task); err != nil {
			return "", err
		}
		return fmt.Sprintf("<%s/T%d|T%d>: %s", c.baseURL, task.ID, task.ID, task.Fields.Name), nil

	case strings.HasPrefix(phid, "PHID-DREV-"):
		var diff struct {
			ID     int `json:"id"`
			Fields struct {
				Title string `json:"title"`
			} `json:"fields"`
		}
		if err := c.searchOne(ctx, "differential.revision.search", phid, &diff); err != nil {
			return "", err
		}
		return fmt.Sprintf("<%s/D%d|D%d>: %s", c.baseURL, diff.ID, diff.ID, diff.Fields.Title), nil

	case strings.HasPrefix(phid, "PHID-PROJ-"):
		var proj struct {
			ID     int `json:"id"`
			Fields struct {
				Name string `json:"name"`
			} `json:"fields"`
		}
		if err := c.searchOne(ctx, "project.search", phid, &proj); err != nil {
			return "", err
		}
		return fmt.Sprintf("<%s/project/view/%d|%s>", c.baseURL, proj.ID, proj.Fields.Name), nil

	case strings.HasPrefix(phid, "PHID-REPO-"):
		repo, err := c.repo(ctx, phid)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("<%s/source/%d|%s>", c.baseURL, repo.ID, repo.Name), nil

	case strings.HasPrefix(phid, "PHID-CMIT-"):
		commit, err := c.commit(ctx, phid)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("<%s|%s>", commit.URI, commit.Summary), nil
	}

	return "", fmt.Errorf("no permalink for PHID %q", phid)
}

// Owner returns the owner identity for a task (its assignee) or a diff (its
// author). ok is false when the object has no owner or the PHID type has no
// owner concept.
func (c *Client) Owner(ctx context.Context, phid string) (owner string, ok bool, err error) {
	switch {
	case strings.HasPrefix(phid, "PHID-TASK-"):
		var task struct {
			Fields struct {
				OwnerPHID string `json:"ownerPHID"`
			} `json:"fields"`
		}
		if err := c.searchOne(ctx, "maniphest.search", phid, &task); err != nil {
			return "", false, err
		}
		return task.Fields.OwnerPHID, task.Fields.OwnerPHID != "", nil

	case strings.HasPrefix(phid, "PHID-DREV-"):
		var diff struct {
			Fields struct {
				AuthorPHID string `json:"authorPHID"`
			} `json:"fields"`
		}
		if err := c.searchOne(ctx, "differential.revision.search", phid, &diff); err != nil {
			return "", false, err
		}
		return diff.Fields.AuthorPHID, diff.Fields.AuthorPHID != "", nil
	}

	return "", false, nil
}

type repoInfo struct {
	ID   int
	Name string
}

func (c *Client) repo(ctx context.Context, phid string) (repoInfo, error) {
	var repo struct {
		ID     int `json:"id"`
		Fields struct {
			Name string `json:"name"`
		} `json:"fields"`
	}
	if err := c.searchOne(ctx, "diffusion.repository.search", phid, &repo); err != nil {
		return repoInfo{}, err
	}
	return repoInfo{ID: repo.ID, Name: repo.Fields.Name}, nil
}

type commitInfo struct {
	Summary  string
	URI      string
	RepoPHID string
}

// commit resolves a commit PHID via diffusion.querycommits, which keys its
// results by PHID instead of returning a data array.
func (c *Client) commit(ctx context.Context, phid string) (commitInfo, error) {
	result, err := c.call(ctx, "diffusion.querycommits", map[string]any{
		"phids": []string{phid},
	})
	if err != nil {
		return commitInfo{}, err
	}
	var page struct {
		Data map[string]struct {
			Summary        string `json:"summary"`
			URI            string `json:"uri"`
			RepositoryPHID string `json:"repositoryPHID"`
		} `json:"data"`
	}
	if err := json.Unmarshal(result, &page); err != nil {
		return commitInfo{}, fmt.Errorf("decode diffusion.querycommits result: %w", err)
	}
	entry, ok := page.Data[phid]
	if !ok {
		return commitInfo{}, fmt.Errorf("diffusion.querycommits: no commit found for %s", phid)
	}
	return commitInfo{Summary: entry.Summary, URI: entry.URI, RepoPHID: entry.RepositoryPHID}, nil
}

// repoNameFor returns the name of the repository a diff or commit belongs to.
func (c *Client) repoNameFor(ctx context.Context, phid string) (string, error) {
	var repoPHID string
	switch {
	case strings.HasPrefix(phid, "PHID-DREV-"):
		var diff struct {
			Fields struct {
				RepositoryPHID string `json:"repositoryPHID"`
			} `json:"fields"`
		}
		if err := c.searchOne(ctx, "differential.revision.search", phid, &diff); err != nil {
			return "", err
		}
		repoPHID = diff.Fields.RepositoryPHID

	case strings.HasPrefix(phid, "PHID-CMIT-"):
		commit, err := c.commit(ctx, phid)
		if err != nil {
			return "", err
		}
		repoPHID = commit.RepoPHID

	default:
		return "", fmt.Errorf("object %q has no repository", phid)
	}

	repo, err := c.repo(ctx, repoPHID)
	if err != nil {
		return "", err
	}
	return repo.Name, nil
}
