package tickets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/ops-tools/remedia/pkg/models/domain"
	"github.com/ops-tools/remedia/pkg/models/store"
)

const jiraPrefix = "JIRA-"

type JiraSettings struct {
	URL        string
	Username   string
	APIToken   string
	ProjectKey string
}

type jiraBackend struct {
	settings JiraSettings
	client   *retryablehttp.Client
}

func NewJiraBackend(settings JiraSettings) (*jiraBackend, error) {
	if settings.URL == "" || settings.Username == "" || settings.APIToken == "" || settings.ProjectKey == "" {
		return nil, fmt.Errorf("jira backend requires url, username, api token and project key")
	}
	settings.URL = strings.TrimRight(settings.URL, "/")

	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.Logger = nil

	return &jiraBackend{settings: settings, client: client}, nil
}

func (j *jiraBackend) Kind() string { return "jira" }

func (j *jiraBackend) Create(ctx context.Context, rec store.TicketRecord) (string, error) {
	payload := map[string]any{
		"fields": map[string]any{
			"project":     map[string]string{"key": j.settings.ProjectKey},
			"summary":     fmt.Sprintf("Security Finding: %s", rec.Title),
			"description": jiraDescription(rec),
			"issuetype":   map[string]string{"name": "Bug"},
			"priority":    map[string]string{"name": jiraPriority(rec.Severity)},
			"labels":      []string{"security-finding", "auto-remediation", rec.Service},
		},
	}

	var issue struct {
		Key string `json:"key"`
	}
	url := j.settings.URL + "/rest/api/2/issue"
	if err := j.post(ctx, url, payload, &issue); err != nil {
		return "", &UnavailableError{Backend: j.Kind(), Cause: err}
	}

	return jiraPrefix + issue.Key, nil
}

// Update appends a status comment. Workflow transitions are deployment
// specific, so status is carried in comments rather than issue state.
func (j *jiraBackend) Update(ctx context.Context, ticketID string, status domain.TicketStatus, comment string) error {
	key := strings.TrimPrefix(ticketID, jiraPrefix)

	body := fmt.Sprintf("*Status*: %s", status)
	if comment != "" {
		body += "\n" + comment
	}

	url := fmt.Sprintf("%s/rest/api/2/issue/%s/comment", j.settings.URL, key)
	if err := j.post(ctx, url, map[string]any{"body": body}, nil); err != nil {
		return &UnavailableError{Backend: j.Kind(), Cause: err}
	}
	return nil
}

func (j *jiraBackend) post(ctx context.Context, url string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.SetBasicAuth(j.settings.Username, j.settings.APIToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := j.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("POST %s: status %d: %s", url, resp.StatusCode, detail)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func jiraDescription(rec store.TicketRecord) string {
	return fmt.Sprintf(`*Finding ID*: %s
*Account*: %s
*Service*: %s
*Severity*: %s

%s

----
This ticket was created automatically by the remediation orchestrator.`,
		rec.FindingID, rec.AccountID, rec.Service, rec.Severity, rec.Description)
}

func jiraPriority(severity string) string {
	switch severity {
	case "CRITICAL":
		return "Highest"
	case "HIGH":
		return "High"
	case "LOW":
		return "Low"
	default:
		return "Medium"
	}
}
