package export

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/go-github/v68/github"
	"github.com/kwalsh/ticketyard/internal/models"
	"golang.org/x/oauth2"
)

// issuesService abstracts the go-github issue methods we use, enabling test mocks.
type issuesService interface {
	Create(ctx context.Context, owner, repo string, issue *github.IssueRequest) (*github.Issue, *github.Response, error)
	CreateComment(ctx context.Context, owner, repo string, number int, comment *github.IssueComment) (*github.IssueComment, *github.Response, error)
}

// GitHubExporter creates tickets as GitHub Issues, the alternate export
// target for repositories tracked on GitHub instead of Jira.
type GitHubExporter struct {
	Owner string
	Repo  string

	issues issuesService
}

// NewGitHubExporter builds an exporter authenticated with the given token.
func NewGitHubExporter(ctx context.Context, owner, repo, token string) *GitHubExporter {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	client := github.NewClient(oauth2.NewClient(ctx, ts))
	return &GitHubExporter{Owner: owner, Repo: repo, issues: client.Issues}
}

// CreateIssue creates the ticket as a GitHub issue. The entity group becomes
// a label so migrated issues stay filterable by source entity.
func (g *GitHubExporter) CreateIssue(ctx context.Context, t *models.Ticket) (string, string, error) {
	body := t.Description
	if t.NeedsLargeContent() {
		body = t.Description[:models.AttachmentThreshold] +
			"\n\n_Full content follows in a comment — body exceeds the inline limit._"
	}

	req := &github.IssueRequest{
		Title: github.String(t.Title),
		Body:  github.String(body),
	}
	if t.EntityGroup != "" {
		req.Labels = &[]string{t.EntityGroup}
	}
	if t.Assignee != "" {
		req.Assignee = github.String(t.Assignee)
	}

	issue, _, err := g.issues.Create(ctx, g.Owner, g.Repo, req)
	if err != nil {
		return "", "", fmt.Errorf("github: create issue for ticket %s: %w", t.ID, err)
	}
	key := fmt.Sprintf("%s/%s#%d", g.Owner, g.Repo, issue.GetNumber())
	return key, issue.GetHTMLURL(), nil
}

// UploadAttachment has no native equivalent on GitHub Issues; the oversized
// body is delivered as an issue comment instead.
func (g *GitHubExporter) UploadAttachment(ctx context.Context, issueKey string, a *models.Attachment) (string, error) {
	number, err := issueNumber(issueKey)
	if err != nil {
		return "", err
	}
	comment, _, err := g.issues.CreateComment(ctx, g.Owner, g.Repo, number, &github.IssueComment{
		Body: github.String(a.Content),
	})
	if err != nil {
		return "", fmt.Errorf("github: attach content to issue %s: %w", issueKey, err)
	}
	return fmt.Sprintf("%d", comment.GetID()), nil
}

// issueNumber extracts the issue number from an owner/repo#number key.
func issueNumber(key string) (int, error) {
	idx := strings.LastIndexByte(key, '#')
	if idx < 0 || idx == len(key)-1 {
		return 0, fmt.Errorf("github: issue key %q has no number", key)
	}
	number, err := strconv.Atoi(key[idx+1:])
	if err != nil {
		return 0, fmt.Errorf("github: parse issue key %q: %w", key, err)
	}
	return number, nil
}
