package tickets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ops-tools/remedia/pkg/models/domain"
)

func newJiraTestServer(t *testing.T, handler http.HandlerFunc) *jiraBackend {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	backend, err := NewJiraBackend(JiraSettings{
		URL:        srv.URL,
		Username:   "bot@example.com",
		APIToken:   "jira-token",
		ProjectKey: "SEC",
	})
	require.NoError(t, err)
	return backend
}

func TestJiraBackendCreate(t *testing.T) {
	var gotPath string
	var gotPayload map[string]any

	backend := newJiraTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		user, _, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "bot@example.com", user)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"key": "SEC-17"}`))
	})

	ticketID, err := backend.Create(context.Background(), sampleTicketRecord())
	require.NoError(t, err)

	assert.Equal(t, "JIRA-SEC-17", ticketID)
	assert.Equal(t, "/rest/api/2/issue", gotPath)

	fields := gotPayload["fields"].(map[string]any)
	assert.Equal(t, "Security Finding: Root account has active access keys", fields["summary"])
	assert.Equal(t, map[string]any{"name": "High"}, fields["priority"])
}

func TestJiraBackendUpdateComments(t *testing.T) {
	var gotPath string
	var gotPayload map[string]any

	backend := newJiraTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{}`))
	})

	err := backend.Update(context.Background(), "JIRA-SEC-17", domain.TicketFailed, "handler error")
	require.NoError(t, err)

	assert.Equal(t, "/rest/api/2/issue/SEC-17/comment", gotPath)
	assert.Contains(t, gotPayload["body"], "FAILED")
	assert.Contains(t, gotPayload["body"], "handler error")
}

func TestJiraBackendCreateUnavailable(t *testing.T) {
	backend := newJiraTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := backend.Create(context.Background(), sampleTicketRecord())
	var unavailable *UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "jira", unavailable.Backend)
}
