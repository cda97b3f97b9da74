package tickets

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ops-tools/remedia/pkg/models/domain"
	"github.com/ops-tools/remedia/pkg/models/store"
)

// Index is the durable finding -> ticket dedup index. The DuckDB ticket
// store satisfies it.
type Index interface {
	Lookup(ctx context.Context, findingKey string) (*store.IndexEntry, error)
	Bind(ctx context.Context, entry store.IndexEntry) error
	SetStatus(ctx context.Context, findingKey string, status string) error
}

type ChainSettings struct {
	// AttemptTimeout bounds one create or update call against one backend.
	AttemptTimeout time.Duration
}

// Chain tries backends in priority order until one fully succeeds. The last
// backend is the durable local store; if it fails too, the error is fatal.
// One ticket per finding: a finding already indexed gets an update, never a
// second ticket.
type Chain struct {
	backends []Backend
	index    Index
	settings ChainSettings
}

func NewChain(index Index, settings ChainSettings, backends ...Backend) (*Chain, error) {
	if index == nil {
		return nil, fmt.Errorf("finding index is required")
	}
	if len(backends) == 0 {
		return nil, fmt.Errorf("at least one ticket backend must be configured")
	}
	if settings.AttemptTimeout <= 0 {
		settings.AttemptTimeout = 15 * time.Second
	}
	return &Chain{backends: backends, index: index, settings: settings}, nil
}

// Record creates or updates the ticket for a finding and returns it.
// Processing of one finding key is serialized by the orchestrator, so the
// first writer wins and every later submission lands here as an update.
func (c *Chain) Record(
	ctx context.Context,
	finding domain.Finding,
	result domain.RemediationResult,
) (domain.Ticket, error) {
	key := finding.Key()
	status := statusFor(result.Outcome)
	comment := fmt.Sprintf("Remediation outcome: %s. %s", result.Outcome, result.Detail)

	entry, err := c.index.Lookup(ctx, key)
	if err != nil {
		return domain.Ticket{}, &FatalConfigurationError{Cause: err}
	}
	if entry != nil {
		return c.update(ctx, finding, *entry, status, comment)
	}
	return c.create(ctx, finding, result, status, comment)
}

func (c *Chain) update(
	ctx context.Context,
	finding domain.Finding,
	entry store.IndexEntry,
	status domain.TicketStatus,
	comment string,
) (domain.Ticket, error) {
	backend, err := c.byKind(entry.Backend)
	if err != nil {
		return domain.Ticket{}, &FatalConfigurationError{Cause: err}
	}

	// A resubmitted finding re-enters CREATED before the new outcome lands,
	// so a watcher never sees a terminal status covering a pending attempt.
	if entry.Status != string(domain.TicketCreated) {
		if err := c.attemptUpdate(ctx, backend, entry.TicketID, domain.TicketCreated, "Finding observed again, re-opening."); err != nil {
			zerolog.Ctx(ctx).Warn().
				Str("ticket_id", entry.TicketID).
				Err(err).
				Msg("failed to re-open ticket")
		}
	}

	if err := c.attemptUpdate(ctx, backend, entry.TicketID, status, comment); err != nil {
		// The ticket exists; an unreachable tracker must not drop the
		// finding. The index still records the latest status.
		zerolog.Ctx(ctx).Warn().
			Str("ticket_id", entry.TicketID).
			Str("backend", entry.Backend).
			Err(err).
			Msg("ticket update failed, status recorded in index only")
	}

	if err := c.index.SetStatus(ctx, finding.Key(), string(status)); err != nil {
		return domain.Ticket{}, &FatalConfigurationError{Cause: err}
	}

	return domain.Ticket{
		TicketID:  entry.TicketID,
		FindingID: finding.ID,
		Status:    status,
		Backend:   entry.Backend,
		CreatedAt: entry.CreatedAt,
		UpdatedAt: time.Now().UTC(),
	}, nil
}

func (c *Chain) create(
	ctx context.Context,
	finding domain.Finding,
	result domain.RemediationResult,
	status domain.TicketStatus,
	comment string,
) (domain.Ticket, error) {
	logger := zerolog.Ctx(ctx)
	rec := renderRecord(finding)

	for i, backend := range c.backends {
		last := i == len(c.backends)-1

		ticketID, err := c.attemptCreate(ctx, backend, rec)
		if err != nil {
			if last {
				return domain.Ticket{}, &FatalConfigurationError{Cause: err}
			}
			logger.Warn().
				Str("backend", backend.Kind()).
				Str("finding_id", finding.ID).
				Err(err).
				Msg("ticket backend failed, advancing to next")
			continue
		}

		now := time.Now().UTC()
		err = c.index.Bind(ctx, store.IndexEntry{
			FindingKey: finding.Key(),
			TicketID:   ticketID,
			Backend:    backend.Kind(),
			Status:     string(status),
		})
		if err != nil {
			return domain.Ticket{}, &FatalConfigurationError{Cause: err}
		}

		// Transition out of CREATED once the remediation outcome is known.
		if status != domain.TicketCreated {
			if err := c.attemptUpdate(ctx, backend, ticketID, status, comment); err != nil {
				logger.Warn().
					Str("ticket_id", ticketID).
					Err(err).
					Msg("ticket created but status update failed")
			}
		}

		return domain.Ticket{
			TicketID:  ticketID,
			FindingID: finding.ID,
			Status:    status,
			Backend:   backend.Kind(),
			CreatedAt: now,
			UpdatedAt: now,
		}, nil
	}

	// Unreachable: the loop either returns a ticket or the fatal error.
	return domain.Ticket{}, &FatalConfigurationError{Cause: fmt.Errorf("no backend produced a ticket")}
}

func (c *Chain) attemptCreate(ctx context.Context, backend Backend, rec store.TicketRecord) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.settings.AttemptTimeout)
	defer cancel()
	return backend.Create(attemptCtx, rec)
}

func (c *Chain) attemptUpdate(
	ctx context.Context,
	backend Backend,
	ticketID string,
	status domain.TicketStatus,
	comment string,
) error {
	attemptCtx, cancel := context.WithTimeout(ctx, c.settings.AttemptTimeout)
	defer cancel()
	return backend.Update(attemptCtx, ticketID, status, comment)
}

func (c *Chain) byKind(kind string) (Backend, error) {
	for _, b := range c.backends {
		if b.Kind() == kind {
			return b, nil
		}
	}
	return nil, fmt.Errorf("indexed ticket references unconfigured backend %q", kind)
}

// statusFor maps a remediation outcome onto the ticket state machine. A
// skipped or not-applicable dispatch leaves the ticket CREATED: nothing was
// attempted, so neither terminal state applies.
func statusFor(outcome domain.Outcome) domain.TicketStatus {
	switch outcome {
	case domain.OutcomeSucceeded:
		return domain.TicketSucceeded
	case domain.OutcomeFailed:
		return domain.TicketFailed
	default:
		return domain.TicketCreated
	}
}

func renderRecord(finding domain.Finding) store.TicketRecord {
	now := time.Now().UTC()
	return store.TicketRecord{
		FindingID:   finding.ID,
		FindingKey:  finding.Key(),
		AccountID:   finding.AccountID,
		Title:       finding.Title,
		Description: finding.Description,
		Severity:    finding.Severity.String(),
		Service:     string(finding.Service),
		Status:      string(domain.TicketCreated),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
