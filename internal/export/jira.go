package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/kwalsh/ticketyard/internal/models"
	"golang.org/x/oauth2"
)

// JiraExporter creates issues through the Jira Cloud REST API.
type JiraExporter struct {
	// BaseURL is the site root, e.g. https://example.atlassian.net.
	BaseURL    string
	ProjectKey string
	IssueType  string // defaults to "Task"

	client *http.Client
}

// NewJiraExporter builds an exporter whose HTTP client injects the given
// OAuth bearer token into every request.
func NewJiraExporter(ctx context.Context, baseURL, projectKey string, ts oauth2.TokenSource) *JiraExporter {
	return &JiraExporter{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		ProjectKey: projectKey,
		IssueType:  "Task",
		client:     oauth2.NewClient(ctx, ts),
	}
}

// StaticTokenExporter builds a JiraExporter from a raw API token, for the
// CLI path where the token was stored by ty login.
func StaticTokenExporter(ctx context.Context, baseURL, projectKey, token string) *JiraExporter {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return NewJiraExporter(ctx, baseURL, projectKey, ts)
}

type jiraIssueRequest struct {
	Fields jiraIssueFields `json:"fields"`
}

type jiraIssueFields struct {
	Project     jiraRef `json:"project"`
	IssueType   jiraRef `json:"issuetype"`
	Summary     string  `json:"summary"`
	Description string  `json:"description,omitempty"`
}

type jiraRef struct {
	Key  string `json:"key,omitempty"`
	Name string `json:"name,omitempty"`
}

type jiraIssueResponse struct {
	Key string `json:"key"`
}

// CreateIssue creates the ticket as a Jira issue. Descriptions over the
// inline threshold are truncated with a pointer to the attachment; the full
// body follows via UploadAttachment.
func (j *JiraExporter) CreateIssue(ctx context.Context, t *models.Ticket) (string, string, error) {
	description := t.Description
	if t.NeedsLargeContent() {
		description = t.Description[:models.AttachmentThreshold] +
			"\n\n[Full content attached — description exceeds the inline limit.]"
	}

	body, err := json.Marshal(jiraIssueRequest{
		Fields: jiraIssueFields{
			Project:     jiraRef{Key: j.ProjectKey},
			IssueType:   jiraRef{Name: j.issueType()},
			Summary:     t.Title,
			Description: description,
		},
	})
	if err != nil {
		return "", "", fmt.Errorf("jira: encode issue for ticket %s: %w", t.ID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.BaseURL+"/rest/api/2/issue", bytes.NewReader(body))
	if err != nil {
		return "", "", fmt.Errorf("jira: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := j.httpClient().Do(req)
	if err != nil {
		return "", "", fmt.Errorf("jira: create issue: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", "", fmt.Errorf("jira: create issue: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var issue jiraIssueResponse
	if err := json.NewDecoder(resp.Body).Decode(&issue); err != nil {
		return "", "", fmt.Errorf("jira: decode issue response: %w", err)
	}
	return issue.Key, j.BaseURL + "/browse/" + issue.Key, nil
}

// UploadAttachment posts the oversized body as a file attachment on the issue.
func (j *JiraExporter) UploadAttachment(ctx context.Context, issueKey string, a *models.Attachment) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", a.Filename)
	if err != nil {
		return "", fmt.Errorf("jira: build attachment form: %w", err)
	}
	if _, err := io.WriteString(part, a.Content); err != nil {
		return "", fmt.Errorf("jira: write attachment body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("jira: finish attachment form: %w", err)
	}

	url := fmt.Sprintf("%s/rest/api/2/issue/%s/attachments", j.BaseURL, issueKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return "", fmt.Errorf("jira: build attachment request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-Atlassian-Token", "no-check")

	resp, err := j.httpClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("jira: upload attachment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("jira: upload attachment: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var uploaded []struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return "", fmt.Errorf("jira: decode attachment response: %w", err)
	}
	if len(uploaded) == 0 {
		return "", fmt.Errorf("jira: attachment response is empty")
	}
	return uploaded[0].ID, nil
}

func (j *JiraExporter) issueType() string {
	if j.IssueType == "" {
		return "Task"
	}
	return j.IssueType
}

func (j *JiraExporter) httpClient() *http.Client {
	if j.client == nil {
		return http.DefaultClient
	}
	return j.client
}
