package tickets

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ops-tools/remedia/pkg/models/domain"
	"github.com/ops-tools/remedia/pkg/models/store"
)

// fakeBackend scripts create failures and records every call.
type fakeBackend struct {
	kind      string
	createErr error
	updateErr error

	creates int
	updates []struct {
		TicketID string
		Status   domain.TicketStatus
		Comment  string
	}
}

func (b *fakeBackend) Kind() string { return b.kind }

func (b *fakeBackend) Create(_ context.Context, _ store.TicketRecord) (string, error) {
	b.creates++
	if b.createErr != nil {
		return "", b.createErr
	}
	return fmt.Sprintf("%s-%d", b.kind, b.creates), nil
}

func (b *fakeBackend) Update(_ context.Context, ticketID string, status domain.TicketStatus, comment string) error {
	b.updates = append(b.updates, struct {
		TicketID string
		Status   domain.TicketStatus
		Comment  string
	}{ticketID, status, comment})
	return b.updateErr
}

// memIndex is an in-memory stand-in for the DuckDB finding index.
type memIndex struct {
	entries map[string]store.IndexEntry
	err     error
}

func newMemIndex() *memIndex {
	return &memIndex{entries: make(map[string]store.IndexEntry)}
}

func (m *memIndex) Lookup(_ context.Context, findingKey string) (*store.IndexEntry, error) {
	if m.err != nil {
		return nil, m.err
	}
	e, ok := m.entries[findingKey]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *memIndex) Bind(_ context.Context, entry store.IndexEntry) error {
	if m.err != nil {
		return m.err
	}
	m.entries[entry.FindingKey] = entry
	return nil
}

func (m *memIndex) SetStatus(_ context.Context, findingKey string, status string) error {
	if m.err != nil {
		return m.err
	}
	e := m.entries[findingKey]
	e.Status = status
	m.entries[findingKey] = e
	return nil
}

func testFinding() domain.Finding {
	return domain.Finding{
		ID:        "f-1",
		AccountID: "111111111111",
		Service:   domain.ServiceIAM,
		Severity:  domain.SeverityHigh,
		Title:     "Root account has active access keys",
	}
}

func resultWith(outcome domain.Outcome) domain.RemediationResult {
	return domain.RemediationResult{
		FindingID: "f-1",
		Handler:   domain.ServiceIAM,
		Outcome:   outcome,
		Detail:    "detail",
		Timestamp: time.Now().UTC(),
	}
}

func TestNewChainValidation(t *testing.T) {
	_, err := NewChain(nil, ChainSettings{}, &fakeBackend{kind: "local"})
	assert.Error(t, err)

	_, err = NewChain(newMemIndex(), ChainSettings{})
	assert.Error(t, err)
}

func TestChainCreatesOnFirstBackend(t *testing.T) {
	primary := &fakeBackend{kind: "github"}
	local := &fakeBackend{kind: "local"}
	idx := newMemIndex()
	chain, err := NewChain(idx, ChainSettings{}, primary, local)
	require.NoError(t, err)

	ticket, err := chain.Record(context.Background(), testFinding(), resultWith(domain.OutcomeSucceeded))
	require.NoError(t, err)

	assert.Equal(t, "github-1", ticket.TicketID)
	assert.Equal(t, "github", ticket.Backend)
	assert.Equal(t, domain.TicketSucceeded, ticket.Status)
	assert.Equal(t, 0, local.creates)

	// Terminal outcome lands as an update after creation.
	require.Len(t, primary.updates, 1)
	assert.Equal(t, domain.TicketSucceeded, primary.updates[0].Status)

	entry := idx.entries["111111111111/f-1"]
	assert.Equal(t, "github-1", entry.TicketID)
	assert.Equal(t, string(domain.TicketSucceeded), entry.Status)
}

func TestChainFallsBackWhenBackendUnavailable(t *testing.T) {
	down := &fakeBackend{kind: "jira", createErr: &UnavailableError{Backend: "jira", Cause: errors.New("503")}}
	local := &fakeBackend{kind: "local"}
	chain, err := NewChain(newMemIndex(), ChainSettings{}, down, local)
	require.NoError(t, err)

	ticket, err := chain.Record(context.Background(), testFinding(), resultWith(domain.OutcomeFailed))
	require.NoError(t, err)

	assert.Equal(t, "local-1", ticket.TicketID)
	assert.Equal(t, "local", ticket.Backend)
	assert.Equal(t, domain.TicketFailed, ticket.Status)
	assert.Equal(t, 1, down.creates)
}

func TestChainLastResortFailureIsFatal(t *testing.T) {
	down := &fakeBackend{kind: "github", createErr: errors.New("401")}
	local := &fakeBackend{kind: "local", createErr: errors.New("disk full")}
	chain, err := NewChain(newMemIndex(), ChainSettings{}, down, local)
	require.NoError(t, err)

	_, err = chain.Record(context.Background(), testFinding(), resultWith(domain.OutcomeSucceeded))
	var fatal *FatalConfigurationError
	require.ErrorAs(t, err, &fatal)
}

func TestChainNonTerminalOutcomeLeavesTicketCreated(t *testing.T) {
	for _, outcome := range []domain.Outcome{domain.OutcomeSkipped, domain.OutcomeNotApplicable} {
		t.Run(string(outcome), func(t *testing.T) {
			backend := &fakeBackend{kind: "local"}
			chain, err := NewChain(newMemIndex(), ChainSettings{}, backend)
			require.NoError(t, err)

			ticket, err := chain.Record(context.Background(), testFinding(), resultWith(outcome))
			require.NoError(t, err)

			assert.Equal(t, domain.TicketCreated, ticket.Status)
			// Nothing was attempted, so no status update is sent.
			assert.Empty(t, backend.updates)
		})
	}
}

func TestChainResubmissionUpdatesExistingTicket(t *testing.T) {
	backend := &fakeBackend{kind: "github"}
	idx := newMemIndex()
	chain, err := NewChain(idx, ChainSettings{}, backend, &fakeBackend{kind: "local"})
	require.NoError(t, err)

	first, err := chain.Record(context.Background(), testFinding(), resultWith(domain.OutcomeFailed))
	require.NoError(t, err)

	second, err := chain.Record(context.Background(), testFinding(), resultWith(domain.OutcomeSucceeded))
	require.NoError(t, err)

	assert.Equal(t, first.TicketID, second.TicketID)
	assert.Equal(t, domain.TicketSucceeded, second.Status)
	assert.Equal(t, 1, backend.creates)

	// create update (FAILED), re-open, final update (SUCCEEDED).
	require.Len(t, backend.updates, 3)
	assert.Equal(t, domain.TicketFailed, backend.updates[0].Status)
	assert.Equal(t, domain.TicketCreated, backend.updates[1].Status)
	assert.Equal(t, domain.TicketSucceeded, backend.updates[2].Status)

	entry := idx.entries["111111111111/f-1"]
	assert.Equal(t, string(domain.TicketSucceeded), entry.Status)
}

func TestChainUpdateFailureIsNotFatal(t *testing.T) {
	backend := &fakeBackend{kind: "github"}
	idx := newMemIndex()
	chain, err := NewChain(idx, ChainSettings{}, backend)
	require.NoError(t, err)

	_, err = chain.Record(context.Background(), testFinding(), resultWith(domain.OutcomeFailed))
	require.NoError(t, err)

	// Tracker unreachable on the resubmission: the index still advances.
	backend.updateErr = errors.New("503")
	ticket, err := chain.Record(context.Background(), testFinding(), resultWith(domain.OutcomeSucceeded))
	require.NoError(t, err)

	assert.Equal(t, domain.TicketSucceeded, ticket.Status)
	assert.Equal(t, string(domain.TicketSucceeded), idx.entries["111111111111/f-1"].Status)
}

func TestChainIndexedBackendMissingIsFatal(t *testing.T) {
	idx := newMemIndex()
	idx.entries["111111111111/f-1"] = store.IndexEntry{
		FindingKey: "111111111111/f-1",
		TicketID:   "JIRA-9",
		Backend:    "jira",
		Status:     string(domain.TicketCreated),
	}
	chain, err := NewChain(idx, ChainSettings{}, &fakeBackend{kind: "local"})
	require.NoError(t, err)

	_, err = chain.Record(context.Background(), testFinding(), resultWith(domain.OutcomeSucceeded))
	var fatal *FatalConfigurationError
	require.ErrorAs(t, err, &fatal)
	assert.Contains(t, err.Error(), "unconfigured backend")
}
