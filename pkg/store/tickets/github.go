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

const githubPrefix = "GH-"

type GitHubSettings struct {
	// APIBaseURL defaults to the public GitHub API; override for GHE.
	APIBaseURL string
	// Repo in "owner/name" form.
	Repo  string
	Token string
}

type githubBackend struct {
	settings GitHubSettings
	client   *retryablehttp.Client
}

func NewGitHubBackend(settings GitHubSettings) (*githubBackend, error) {
	if settings.Repo == "" || settings.Token == "" {
		return nil, fmt.Errorf("github backend requires repo and token")
	}
	if settings.APIBaseURL == "" {
		settings.APIBaseURL = "https://api.github.com"
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.Logger = nil

	return &githubBackend{settings: settings, client: client}, nil
}

func (g *githubBackend) Kind() string { return "github" }

func (g *githubBackend) Create(ctx context.Context, rec store.TicketRecord) (string, error) {
	payload := map[string]any{
		"title":  fmt.Sprintf("Security Finding: %s", rec.Title),
		"body":   githubBody(rec),
		"labels": []string{"security-finding", "auto-remediation", rec.Service},
	}

	var issue struct {
		Number int `json:"number"`
	}
	url := fmt.Sprintf("%s/repos/%s/issues", g.settings.APIBaseURL, g.settings.Repo)
	if err := g.post(ctx, url, payload, &issue); err != nil {
		return "", &UnavailableError{Backend: g.Kind(), Cause: err}
	}

	return fmt.Sprintf("%s%d", githubPrefix, issue.Number), nil
}

func (g *githubBackend) Update(ctx context.Context, ticketID string, status domain.TicketStatus, comment string) error {
	number := strings.TrimPrefix(ticketID, githubPrefix)

	if comment != "" {
		url := fmt.Sprintf("%s/repos/%s/issues/%s/comments", g.settings.APIBaseURL, g.settings.Repo, number)
		body := fmt.Sprintf("**Status**: %s\n\n%s", status, comment)
		if err := g.post(ctx, url, map[string]any{"body": body}, nil); err != nil {
			return &UnavailableError{Backend: g.Kind(), Cause: err}
		}
	}

	label := "remediation-failed"
	if status == domain.TicketSucceeded {
		label = "remediation-succeeded"
	} else if status == domain.TicketCreated {
		label = "remediation-pending"
	}
	url := fmt.Sprintf("%s/repos/%s/issues/%s", g.settings.APIBaseURL, g.settings.Repo, number)
	payload := map[string]any{"labels": []string{"security-finding", "auto-remediation", label}}
	if err := g.patch(ctx, url, payload); err != nil {
		return &UnavailableError{Backend: g.Kind(), Cause: err}
	}
	return nil
}

func (g *githubBackend) post(ctx context.Context, url string, payload any, out any) error {
	return g.do(ctx, http.MethodPost, url, payload, out, http.StatusCreated)
}

func (g *githubBackend) patch(ctx context.Context, url string, payload any) error {
	return g.do(ctx, http.MethodPatch, url, payload, nil, http.StatusOK)
}

func (g *githubBackend) do(ctx context.Context, method, url string, payload any, out any, want int) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "token "+g.settings.Token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, url, resp.StatusCode, detail)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func githubBody(rec store.TicketRecord) string {
	return fmt.Sprintf(`## Security Finding Details

- **Finding ID**: %s
- **Account**: %s
- **Service**: %s
- **Severity**: %s

### Description

%s

---

*This issue was created automatically by the remediation orchestrator.*`,
		rec.FindingID, rec.AccountID, rec.Service, rec.Severity, rec.Description)
}
